/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package client

import (
	"errors"
	"time"

	"github.com/acronis/go-ratelimitd/config"
	"github.com/acronis/go-ratelimitd/retry"
)

const cfgDefaultKeyPrefix = "client"

const (
	cfgKeyURL                        = "url"
	cfgKeyTimeout                    = "timeout"
	cfgKeyRateLimitsEnabled          = "rateLimits.enabled"
	cfgKeyRateLimitsLimit            = "rateLimits.limit"
	cfgKeyRateLimitsBurst            = "rateLimits.burst"
	cfgKeyRateLimitsWaitTimeout      = "rateLimits.waitTimeout"
	cfgKeyRateLimitsPauseOnExhausted = "rateLimits.pauseOnExhaustedQuota"
	cfgKeyRetriesEnabled             = "retries.enabled"
	cfgKeyRetriesMaxAttempts         = "retries.maxAttempts"
	cfgKeyRetriesInitialInterval     = "retries.initialInterval"
	cfgKeyRetriesMaxRetryAfter       = "retries.maxRetryAfter"
	cfgKeyLogMode                    = "log.mode"
	cfgKeyLogSlowRequestThreshold    = "log.slowRequestThreshold"
)

// Default configuration values.
const (
	DefaultURL                    = "http://localhost:3000"
	DefaultTimeout                = 30 * time.Second
	DefaultRetriesMaxAttempts     = 3
	DefaultRetriesInitialInterval = 500 * time.Millisecond
	DefaultRetriesMaxRetryAfter   = time.Minute
)

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// Config represents configuration of the service client.
type Config struct {
	URL        string              `mapstructure:"url" yaml:"url" json:"url"`
	Timeout    config.TimeDuration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
	RateLimits RateLimitsConfig    `mapstructure:"rateLimits" yaml:"rateLimits" json:"rateLimits"`
	Retries    RetriesConfig       `mapstructure:"retries" yaml:"retries" json:"retries"`
	Log        LogConfig           `mapstructure:"log" yaml:"log" json:"log"`

	keyPrefix string
}

// RateLimitsConfig configures pacing of outgoing calls.
type RateLimitsConfig struct {
	Enabled               bool                `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Limit                 int                 `mapstructure:"limit" yaml:"limit" json:"limit"`
	Burst                 int                 `mapstructure:"burst" yaml:"burst" json:"burst"`
	WaitTimeout           config.TimeDuration `mapstructure:"waitTimeout" yaml:"waitTimeout" json:"waitTimeout"`
	PauseOnExhaustedQuota bool                `mapstructure:"pauseOnExhaustedQuota" yaml:"pauseOnExhaustedQuota" json:"pauseOnExhaustedQuota"`
}

// RetriesConfig configures retrying of rejected and failed calls.
type RetriesConfig struct {
	Enabled         bool                `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	MaxAttempts     int                 `mapstructure:"maxAttempts" yaml:"maxAttempts" json:"maxAttempts"`
	InitialInterval config.TimeDuration `mapstructure:"initialInterval" yaml:"initialInterval" json:"initialInterval"`
	// MaxRetryAfter is the longest hinted delay the client agrees to wait. Zero means no limit.
	MaxRetryAfter config.TimeDuration `mapstructure:"maxRetryAfter" yaml:"maxRetryAfter" json:"maxRetryAfter"`
}

// LogConfig configures logging of outgoing calls.
type LogConfig struct {
	Mode                 LoggingMode         `mapstructure:"mode" yaml:"mode" json:"mode"`
	SlowRequestThreshold config.TimeDuration `mapstructure:"slowRequestThreshold" yaml:"slowRequestThreshold" json:"slowRequestThreshold"`
}

// ConfigOption is a type for functional options for the Config.
type ConfigOption func(*Config)

// WithKeyPrefix returns a ConfigOption that sets a key prefix for parsing configuration parameters.
func WithKeyPrefix(keyPrefix string) ConfigOption {
	return func(c *Config) {
		c.keyPrefix = keyPrefix
	}
}

// NewConfig creates a new instance of the Config.
func NewConfig(options ...ConfigOption) *Config {
	cfg := &Config{keyPrefix: cfgDefaultKeyPrefix}
	for _, opt := range options {
		opt(cfg)
	}
	return cfg
}

// NewDefaultConfig creates a new instance of the Config with default values.
func NewDefaultConfig(options ...ConfigOption) *Config {
	cfg := NewConfig(options...)
	cfg.URL = DefaultURL
	cfg.Timeout = config.TimeDuration(DefaultTimeout)
	cfg.RateLimits.WaitTimeout = config.TimeDuration(DefaultRateLimitingWaitTimeout)
	cfg.Retries = RetriesConfig{
		Enabled:         true,
		MaxAttempts:     DefaultRetriesMaxAttempts,
		InitialInterval: config.TimeDuration(DefaultRetriesInitialInterval),
		MaxRetryAfter:   config.TimeDuration(DefaultRetriesMaxRetryAfter),
	}
	cfg.Log.Mode = LoggingModeFailed
	return cfg
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
func (c *Config) KeyPrefix() string {
	if c.keyPrefix == "" {
		return cfgDefaultKeyPrefix
	}
	return c.keyPrefix
}

// SetProviderDefaults sets default configuration values in config.DataProvider.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyURL, DefaultURL)
	dp.SetDefault(cfgKeyTimeout, DefaultTimeout)
	dp.SetDefault(cfgKeyRateLimitsEnabled, false)
	dp.SetDefault(cfgKeyRateLimitsWaitTimeout, DefaultRateLimitingWaitTimeout)
	dp.SetDefault(cfgKeyRateLimitsPauseOnExhausted, false)
	dp.SetDefault(cfgKeyRetriesEnabled, true)
	dp.SetDefault(cfgKeyRetriesMaxAttempts, DefaultRetriesMaxAttempts)
	dp.SetDefault(cfgKeyRetriesInitialInterval, DefaultRetriesInitialInterval)
	dp.SetDefault(cfgKeyRetriesMaxRetryAfter, DefaultRetriesMaxRetryAfter)
	dp.SetDefault(cfgKeyLogMode, string(LoggingModeFailed))
}

// Set sets configuration values from config.DataProvider.
func (c *Config) Set(dp config.DataProvider) error {
	var err error
	if c.URL, err = dp.GetString(cfgKeyURL); err != nil {
		return err
	}
	if c.URL == "" {
		return dp.WrapKeyErr(cfgKeyURL, errors.New("cannot be empty"))
	}
	if c.Timeout, err = getNonNegativeDuration(dp, cfgKeyTimeout); err != nil {
		return err
	}
	if err = c.setRateLimits(dp); err != nil {
		return err
	}
	if err = c.setRetries(dp); err != nil {
		return err
	}
	return c.setLog(dp)
}

func (c *Config) setRateLimits(dp config.DataProvider) error {
	var err error
	if c.RateLimits.Enabled, err = dp.GetBool(cfgKeyRateLimitsEnabled); err != nil {
		return err
	}
	if c.RateLimits.PauseOnExhaustedQuota, err = dp.GetBool(cfgKeyRateLimitsPauseOnExhausted); err != nil {
		return err
	}
	if c.RateLimits.WaitTimeout, err = getNonNegativeDuration(dp, cfgKeyRateLimitsWaitTimeout); err != nil {
		return err
	}
	if !c.RateLimits.Enabled {
		return nil
	}
	if c.RateLimits.Limit, err = dp.GetInt(cfgKeyRateLimitsLimit); err != nil {
		return err
	}
	if c.RateLimits.Limit <= 0 {
		return dp.WrapKeyErr(cfgKeyRateLimitsLimit, errors.New("must be positive"))
	}
	if c.RateLimits.Burst, err = dp.GetInt(cfgKeyRateLimitsBurst); err != nil {
		return err
	}
	if c.RateLimits.Burst < 0 {
		return dp.WrapKeyErr(cfgKeyRateLimitsBurst, errors.New("cannot be negative"))
	}
	return nil
}

func (c *Config) setRetries(dp config.DataProvider) error {
	var err error
	if c.Retries.Enabled, err = dp.GetBool(cfgKeyRetriesEnabled); err != nil {
		return err
	}
	if c.Retries.MaxAttempts, err = dp.GetInt(cfgKeyRetriesMaxAttempts); err != nil {
		return err
	}
	if c.Retries.MaxAttempts < 0 {
		return dp.WrapKeyErr(cfgKeyRetriesMaxAttempts, errors.New("cannot be negative"))
	}
	if c.Retries.InitialInterval, err = getNonNegativeDuration(dp, cfgKeyRetriesInitialInterval); err != nil {
		return err
	}
	if c.Retries.MaxRetryAfter, err = getNonNegativeDuration(dp, cfgKeyRetriesMaxRetryAfter); err != nil {
		return err
	}
	return nil
}

func (c *Config) setLog(dp config.DataProvider) error {
	mode, err := dp.GetStringFromSet(cfgKeyLogMode,
		[]string{string(LoggingModeNone), string(LoggingModeAll), string(LoggingModeFailed)}, true)
	if err != nil {
		return err
	}
	c.Log.Mode = LoggingMode(mode)
	c.Log.SlowRequestThreshold, err = getNonNegativeDuration(dp, cfgKeyLogSlowRequestThreshold)
	return err
}

// BackoffPolicy returns an exponential backoff policy used when the service gives no Retry-After hint.
// The number of attempts is bounded by the retryable round tripper.
func (c *RetriesConfig) BackoffPolicy() retry.Policy {
	return retry.NewExponentialBackoffPolicy(time.Duration(c.InitialInterval), 0)
}

func getNonNegativeDuration(dp config.DataProvider, key string) (config.TimeDuration, error) {
	dur, err := dp.GetDuration(key)
	if err != nil {
		return 0, err
	}
	if dur < 0 {
		return 0, dp.WrapKeyErr(key, errors.New("cannot be negative"))
	}
	return config.TimeDuration(dur), nil
}
