/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"fmt"
	"strings"
	"time"

	"github.com/acronis/go-ratelimitd/config"
)

const cfgDefaultKeyPrefix = "ratelimit"

const (
	cfgKeyPolicies                 = "policies"
	cfgKeyStorageBackend           = "storage.backend"
	cfgKeyStorageMaxKeys           = "storage.maxKeys"
	cfgKeyStorageSweepInterval     = "storage.sweepInterval"
	cfgKeyStorageRedisAddress      = "storage.redis.address"
	cfgKeyStorageRedisDB           = "storage.redis.db"
	cfgKeyStorageRedisPassword     = "storage.redis.password"
	cfgKeyStorageRedisKeyPrefix    = "storage.redis.keyPrefix"
	cfgKeyStorageRedisDialTimeout  = "storage.redis.dialTimeout"
	cfgKeyStorageRedisPingAttempts = "storage.redis.pingAttempts"
	cfgKeyTrustedAddrs             = "trustedAddrs"
	cfgKeyDryRun                   = "dryRun"
	cfgKeyMaxCustomPolicies        = "maxCustomPolicies"
)

// Default values.
const (
	DefaultSweepInterval      = time.Minute
	DefaultRedisKeyPrefix     = "ratelimitd:"
	DefaultRedisDialTimeout   = 5 * time.Second
	DefaultRedisPingAttempts  = 5
	DefaultPolicyMessage      = "Too many requests, please try again later."
	defaultStorageBackendName = StorageBackendMemory
)

// StorageBackend defines where client state is stored.
type StorageBackend string

// Storage backends.
const (
	StorageBackendMemory StorageBackend = "memory"
	StorageBackendRedis  StorageBackend = "redis"
)

// PolicyConfig is a configuration for a single named policy.
// Either Window and MaxRequests, or Rate should be specified.
// For a built-in policy, unspecified values are taken from the built-in one.
type PolicyConfig struct {
	Name        string              `mapstructure:"name" yaml:"name" json:"name"`
	Window      config.TimeDuration `mapstructure:"window" yaml:"window" json:"window"`
	MaxRequests int                 `mapstructure:"maxRequests" yaml:"maxRequests" json:"maxRequests"`
	Rate        Rate                `mapstructure:"rate" yaml:"rate" json:"rate"`
	Message     string              `mapstructure:"message" yaml:"message" json:"message"`
	Algorithm   Algorithm           `mapstructure:"algorithm" yaml:"algorithm" json:"algorithm"`
}

// RedisConfig is a configuration for the Redis storage backend.
type RedisConfig struct {
	Address      string              `mapstructure:"address" yaml:"address" json:"address"`
	DB           int                 `mapstructure:"db" yaml:"db" json:"db"`
	Password     string              `mapstructure:"password" yaml:"password" json:"password"`
	KeyPrefix    string              `mapstructure:"keyPrefix" yaml:"keyPrefix" json:"keyPrefix"`
	DialTimeout  config.TimeDuration `mapstructure:"dialTimeout" yaml:"dialTimeout" json:"dialTimeout"`
	PingAttempts int                 `mapstructure:"pingAttempts" yaml:"pingAttempts" json:"pingAttempts"`
}

// StorageConfig is a configuration for client state storage.
type StorageConfig struct {
	Backend       StorageBackend      `mapstructure:"backend" yaml:"backend" json:"backend"`
	MaxKeys       int                 `mapstructure:"maxKeys" yaml:"maxKeys" json:"maxKeys"`
	SweepInterval config.TimeDuration `mapstructure:"sweepInterval" yaml:"sweepInterval" json:"sweepInterval"`
	Redis         RedisConfig         `mapstructure:"redis" yaml:"redis" json:"redis"`
}

// Config represents a set of configuration parameters for rate limiting.
type Config struct {
	Policies []PolicyConfig `mapstructure:"policies" yaml:"policies" json:"policies"`
	Storage  StorageConfig  `mapstructure:"storage" yaml:"storage" json:"storage"`

	// TrustedAddrs is a list of glob patterns of client addresses that bypass rate limiting in middleware.
	// Only these clients may drop the state of other clients.
	TrustedAddrs []string `mapstructure:"trustedAddrs" yaml:"trustedAddrs" json:"trustedAddrs"`

	// MaxCustomPolicies limits the number of custom policies registered at the same time.
	MaxCustomPolicies int `mapstructure:"maxCustomPolicies" yaml:"maxCustomPolicies" json:"maxCustomPolicies"`

	// DryRun makes middleware log rejections and serve requests anyway.
	DryRun bool `mapstructure:"dryRun" yaml:"dryRun" json:"dryRun"`

	keyPrefix string
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// NewConfig creates a new instance of the Config.
func NewConfig() *Config {
	return &Config{keyPrefix: cfgDefaultKeyPrefix}
}

// NewDefaultConfig creates a new instance of the Config with default values.
func NewDefaultConfig() *Config {
	return &Config{
		keyPrefix:         cfgDefaultKeyPrefix,
		MaxCustomPolicies: DefaultMaxCustomPolicies,
		Storage: StorageConfig{
			Backend:       defaultStorageBackendName,
			MaxKeys:       DefaultMaxKeys,
			SweepInterval: config.TimeDuration(DefaultSweepInterval),
			Redis: RedisConfig{
				KeyPrefix:    DefaultRedisKeyPrefix,
				DialTimeout:  config.TimeDuration(DefaultRedisDialTimeout),
				PingAttempts: DefaultRedisPingAttempts,
			},
		},
	}
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
// Implements config.KeyPrefixProvider interface.
func (c *Config) KeyPrefix() string {
	if c.keyPrefix == "" {
		return cfgDefaultKeyPrefix
	}
	return c.keyPrefix
}

// SetProviderDefaults sets default configuration values for rate limiting in config.DataProvider.
// Implements config.Config interface.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyStorageBackend, string(defaultStorageBackendName))
	dp.SetDefault(cfgKeyStorageMaxKeys, DefaultMaxKeys)
	dp.SetDefault(cfgKeyStorageSweepInterval, DefaultSweepInterval.String())
	dp.SetDefault(cfgKeyStorageRedisKeyPrefix, DefaultRedisKeyPrefix)
	dp.SetDefault(cfgKeyStorageRedisDialTimeout, DefaultRedisDialTimeout.String())
	dp.SetDefault(cfgKeyStorageRedisPingAttempts, DefaultRedisPingAttempts)
	dp.SetDefault(cfgKeyMaxCustomPolicies, DefaultMaxCustomPolicies)
}

// Set sets rate limiting configuration values from config.DataProvider.
// Implements config.Config interface.
func (c *Config) Set(dp config.DataProvider) error {
	if err := dp.UnmarshalKey(cfgKeyPolicies, &c.Policies, config.WithTextUnmarshalHooks()); err != nil {
		return err
	}
	for i := range c.Policies {
		if _, err := c.Policies[i].toPolicy(); err != nil {
			return dp.WrapKeyErr(fmt.Sprintf("%s[%d]", cfgKeyPolicies, i), err)
		}
	}
	if err := c.setStorageConfig(dp); err != nil {
		return err
	}

	var err error
	if c.TrustedAddrs, err = dp.GetStringSlice(cfgKeyTrustedAddrs); err != nil {
		return err
	}
	if c.DryRun, err = dp.GetBool(cfgKeyDryRun); err != nil {
		return err
	}
	if c.MaxCustomPolicies, err = dp.GetInt(cfgKeyMaxCustomPolicies); err != nil {
		return err
	}
	if c.MaxCustomPolicies <= 0 {
		return dp.WrapKeyErr(cfgKeyMaxCustomPolicies, fmt.Errorf("should be > 0"))
	}
	return nil
}

func (c *Config) setStorageConfig(dp config.DataProvider) error {
	backendStr, err := dp.GetStringFromSet(
		cfgKeyStorageBackend, []string{string(StorageBackendMemory), string(StorageBackendRedis)}, true)
	if err != nil {
		return err
	}
	c.Storage.Backend = StorageBackend(strings.ToLower(backendStr))

	if c.Storage.MaxKeys, err = dp.GetInt(cfgKeyStorageMaxKeys); err != nil {
		return err
	}
	if c.Storage.MaxKeys <= 0 {
		return dp.WrapKeyErr(cfgKeyStorageMaxKeys, fmt.Errorf("should be > 0"))
	}

	sweepInterval, err := dp.GetDuration(cfgKeyStorageSweepInterval)
	if err != nil {
		return err
	}
	if sweepInterval <= 0 {
		return dp.WrapKeyErr(cfgKeyStorageSweepInterval, fmt.Errorf("should be > 0"))
	}
	c.Storage.SweepInterval = config.TimeDuration(sweepInterval)

	if c.Storage.Redis.Address, err = dp.GetString(cfgKeyStorageRedisAddress); err != nil {
		return err
	}
	if c.Storage.Backend == StorageBackendRedis && c.Storage.Redis.Address == "" {
		return dp.WrapKeyErr(cfgKeyStorageRedisAddress,
			fmt.Errorf("cannot be empty when %q storage backend is used", StorageBackendRedis))
	}
	if c.Storage.Redis.DB, err = dp.GetInt(cfgKeyStorageRedisDB); err != nil {
		return err
	}
	if c.Storage.Redis.Password, err = dp.GetString(cfgKeyStorageRedisPassword); err != nil {
		return err
	}
	if c.Storage.Redis.KeyPrefix, err = dp.GetString(cfgKeyStorageRedisKeyPrefix); err != nil {
		return err
	}
	dialTimeout, err := dp.GetDuration(cfgKeyStorageRedisDialTimeout)
	if err != nil {
		return err
	}
	c.Storage.Redis.DialTimeout = config.TimeDuration(dialTimeout)
	if c.Storage.Redis.PingAttempts, err = dp.GetInt(cfgKeyStorageRedisPingAttempts); err != nil {
		return err
	}
	return nil
}

// EffectivePolicies returns the built-in policies with configured overrides applied,
// followed by the additional configured policies in configuration order.
func (c *Config) EffectivePolicies() ([]Policy, error) {
	policies := BuiltinPolicies()
	byName := make(map[string]int, len(policies))
	for i, p := range policies {
		byName[p.Name] = i
	}
	for _, pc := range c.Policies {
		p, err := pc.toPolicy()
		if err != nil {
			return nil, err
		}
		i, ok := byName[p.Name]
		if !ok {
			if p.Message == "" {
				p.Message = DefaultPolicyMessage
			}
			if err = p.Validate(); err != nil {
				return nil, err
			}
			byName[p.Name] = len(policies)
			policies = append(policies, p)
			continue
		}
		if p.Window != 0 {
			policies[i].Window = p.Window
		}
		if p.MaxRequests != 0 {
			policies[i].MaxRequests = p.MaxRequests
		}
		if p.Message != "" {
			policies[i].Message = p.Message
		}
		if p.Algorithm != "" {
			policies[i].Algorithm = p.Algorithm
		}
	}
	return policies, nil
}

func (pc PolicyConfig) toPolicy() (Policy, error) {
	p := Policy{
		Name:        strings.TrimSpace(pc.Name),
		Window:      time.Duration(pc.Window),
		MaxRequests: pc.MaxRequests,
		Message:     pc.Message,
		Algorithm:   Algorithm(strings.ToLower(string(pc.Algorithm))),
	}
	if p.Name == "" {
		return Policy{}, fmt.Errorf("%w: name is empty", ErrInvalidPolicy)
	}
	if !pc.Rate.IsZero() {
		if p.Window != 0 || p.MaxRequests != 0 {
			return Policy{}, fmt.Errorf("%w: rate cannot be used together with window and maxRequests", ErrInvalidPolicy)
		}
		p.Window, p.MaxRequests = pc.Rate.Duration, pc.Rate.Count
	}
	if p.Window < 0 || p.MaxRequests < 0 {
		return Policy{}, fmt.Errorf("%w: window and maxRequests should be positive", ErrInvalidPolicy)
	}
	switch p.Algorithm {
	case "", AlgorithmSlidingLog, AlgorithmLeakyBucket, AlgorithmSlidingWindow:
	default:
		return Policy{}, fmt.Errorf("%w: unknown algorithm %q", ErrInvalidPolicy, p.Algorithm)
	}
	return p, nil
}
