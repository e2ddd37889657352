/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package log

import (
	"fmt"
	"strings"

	"code.cloudfoundry.org/bytefmt"

	"github.com/acronis/go-ratelimitd/config"
)

const cfgDefaultKeyPrefix = "log"

const (
	cfgKeyLevel          = "level"
	cfgKeyFormat         = "format"
	cfgKeyOutput         = "output"
	cfgKeyNoColor        = "nocolor"
	cfgKeyAddCaller      = "addCaller"
	cfgKeyFilePath       = "file.path"
	cfgKeyRotation       = "file.rotation."
	cfgKeyErrorNoVerbose = "error.noVerbose"
	cfgKeyErrorSuffix    = "error.verboseSuffix"
	cfgKeyRejectionLevel = "rejections.level"
)

// Rotation limits of the file output.
const (
	DefaultFileRotationMaxSizeBytes = 250 * bytefmt.MEGABYTE
	MinFileRotationMaxSizeBytes     = bytefmt.MEGABYTE
	DefaultFileRotationMaxBackups   = 10
)

const defaultErrorVerboseSuffix = "_verbose"

// Level is a logging level.
type Level string

// Logging levels, from the most to the least severe.
const (
	LevelError Level = "error"
	LevelWarn  Level = "warn"
	LevelInfo  Level = "info"
	LevelDebug Level = "debug"
)

// Format is an encoding of log records.
type Format string

// Log record encodings.
const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Output is where log records are written.
type Output string

// Log destinations.
const (
	OutputStdout Output = "stdout"
	OutputStderr Output = "stderr"
	OutputFile   Output = "file"
)

var (
	knownLevels  = []string{string(LevelError), string(LevelWarn), string(LevelInfo), string(LevelDebug)}
	knownFormats = []string{string(FormatJSON), string(FormatText)}
	knownOutputs = []string{string(OutputStdout), string(OutputStderr), string(OutputFile)}
)

// Config is the "log" section of the service configuration.
type Config struct {
	Level     Level       `mapstructure:"level" yaml:"level" json:"level"`
	Format    Format      `mapstructure:"format" yaml:"format" json:"format"`
	Output    Output      `mapstructure:"output" yaml:"output" json:"output"`
	NoColor   bool        `mapstructure:"nocolor" yaml:"nocolor" json:"nocolor"`
	AddCaller bool        `mapstructure:"addCaller" yaml:"addCaller" json:"addCaller"`
	File      FileConfig  `mapstructure:"file" yaml:"file" json:"file"`
	Error     ErrorConfig `mapstructure:"error" yaml:"error" json:"error"`

	// Rejections controls how requests refused by a rate limiting policy are logged.
	Rejections RejectionsConfig `mapstructure:"rejections" yaml:"rejections" json:"rejections"`

	keyPrefix string
}

// FileConfig configures the "file" output. Path may contain {{pid}} and {{starttime}} placeholders.
type FileConfig struct {
	Path     string         `mapstructure:"path" yaml:"path" json:"path"`
	Rotation RotationConfig `mapstructure:"rotation" yaml:"rotation" json:"rotation"`
}

// RotationConfig is passed to lumberjack as is.
type RotationConfig struct {
	Compress         bool            `mapstructure:"compress" yaml:"compress" json:"compress"`
	MaxSize          config.ByteSize `mapstructure:"maxSize" yaml:"maxSize" json:"maxSize"`
	MaxBackups       int             `mapstructure:"maxBackups" yaml:"maxBackups" json:"maxBackups"`
	MaxAgeDays       int             `mapstructure:"maxAgeDays" yaml:"maxAgeDays" json:"maxAgeDays"`
	LocalTimeInNames bool            `mapstructure:"localTimeInNames" yaml:"localTimeInNames" json:"localTimeInNames"`
}

// ErrorConfig configures the encoding of error fields.
// Unless NoVerbose is set, errors implementing fmt.Formatter get an extra "error"+VerboseSuffix field.
type ErrorConfig struct {
	NoVerbose     bool   `mapstructure:"noVerbose" yaml:"noVerbose" json:"noVerbose"`
	VerboseSuffix string `mapstructure:"verboseSuffix" yaml:"verboseSuffix" json:"verboseSuffix"`
}

// RejectionsConfig configures records about rate limited requests.
// They carry the "policy" and "client_key" fields.
type RejectionsConfig struct {
	// Level of "rate limit exceeded" records. Busy services may lower it to debug.
	Level Level `mapstructure:"level" yaml:"level" json:"level"`
}

var (
	_ config.Config            = (*Config)(nil)
	_ config.KeyPrefixProvider = (*Config)(nil)
)

// ConfigOption customizes a Config created by NewConfig or NewDefaultConfig.
type ConfigOption func(c *Config)

// WithKeyPrefix makes the config read its values under keyPrefix instead of "log".
func WithKeyPrefix(keyPrefix string) ConfigOption {
	return func(c *Config) {
		c.keyPrefix = keyPrefix
	}
}

// NewConfig returns an empty Config to be filled by config.Loader.
func NewConfig(options ...ConfigOption) *Config {
	c := &Config{keyPrefix: cfgDefaultKeyPrefix}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// NewDefaultConfig returns a Config holding the values the loader uses when nothing is set.
func NewDefaultConfig(options ...ConfigOption) *Config {
	c := NewConfig(options...)
	c.Level = LevelInfo
	c.Format = FormatJSON
	c.Output = OutputStdout
	c.File.Rotation.MaxSize = DefaultFileRotationMaxSizeBytes
	c.File.Rotation.MaxBackups = DefaultFileRotationMaxBackups
	c.Error.VerboseSuffix = defaultErrorVerboseSuffix
	c.Rejections.Level = LevelWarn
	return c
}

// KeyPrefix implements config.KeyPrefixProvider.
func (c *Config) KeyPrefix() string {
	if c.keyPrefix == "" {
		return cfgDefaultKeyPrefix
	}
	return c.keyPrefix
}

// SetProviderDefaults implements config.Config.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyLevel, string(LevelInfo))
	dp.SetDefault(cfgKeyFormat, string(FormatJSON))
	dp.SetDefault(cfgKeyOutput, string(OutputStdout))
	dp.SetDefault(cfgKeyRotation+"maxSize", bytefmt.ByteSize(DefaultFileRotationMaxSizeBytes))
	dp.SetDefault(cfgKeyRotation+"maxBackups", DefaultFileRotationMaxBackups)
	dp.SetDefault(cfgKeyErrorSuffix, defaultErrorVerboseSuffix)
	dp.SetDefault(cfgKeyRejectionLevel, string(LevelWarn))
}

// Set implements config.Config.
func (c *Config) Set(dp config.DataProvider) (err error) {
	var level, format, output, rejectionLevel string
	for _, enum := range []struct {
		key   string
		known []string
		dst   *string
	}{
		{cfgKeyLevel, knownLevels, &level},
		{cfgKeyFormat, knownFormats, &format},
		{cfgKeyOutput, knownOutputs, &output},
		{cfgKeyRejectionLevel, knownLevels, &rejectionLevel},
	} {
		if *enum.dst, err = dp.GetStringFromSet(enum.key, enum.known, true); err != nil {
			return err
		}
	}
	c.Level = Level(strings.ToLower(level))
	c.Format = Format(strings.ToLower(format))
	c.Output = Output(strings.ToLower(output))
	c.Rejections.Level = Level(strings.ToLower(rejectionLevel))

	for key, dst := range map[string]*bool{
		cfgKeyNoColor:        &c.NoColor,
		cfgKeyAddCaller:      &c.AddCaller,
		cfgKeyErrorNoVerbose: &c.Error.NoVerbose,
	} {
		if *dst, err = dp.GetBool(key); err != nil {
			return err
		}
	}
	if c.Error.VerboseSuffix, err = dp.GetString(cfgKeyErrorSuffix); err != nil {
		return err
	}
	return c.setFile(dp)
}

func (c *Config) setFile(dp config.DataProvider) (err error) {
	if c.File.Path, err = dp.GetString(cfgKeyFilePath); err != nil {
		return err
	}
	if c.Output == OutputFile && c.File.Path == "" {
		return dp.WrapKeyErr(cfgKeyFilePath, fmt.Errorf("cannot be empty when %q output is used", OutputFile))
	}

	rot := &c.File.Rotation
	if rot.MaxSize, err = dp.GetByteSize(cfgKeyRotation + "maxSize"); err != nil {
		return err
	}
	if rot.MaxSize < MinFileRotationMaxSizeBytes {
		return dp.WrapKeyErr(cfgKeyRotation+"maxSize",
			fmt.Errorf("should be >= %s", bytefmt.ByteSize(MinFileRotationMaxSizeBytes)))
	}
	if rot.MaxBackups, err = dp.GetInt(cfgKeyRotation + "maxBackups"); err != nil {
		return err
	}
	if rot.MaxBackups < 1 {
		return dp.WrapKeyErr(cfgKeyRotation+"maxBackups", fmt.Errorf("should be >= 1"))
	}
	if rot.MaxAgeDays, err = dp.GetInt(cfgKeyRotation + "maxAgeDays"); err != nil {
		return err
	}
	if rot.MaxAgeDays < 0 {
		return dp.WrapKeyErr(cfgKeyRotation+"maxAgeDays", fmt.Errorf("should be >= 0"))
	}
	if rot.Compress, err = dp.GetBool(cfgKeyRotation + "compress"); err != nil {
		return err
	}
	rot.LocalTimeInNames, err = dp.GetBool(cfgKeyRotation + "localTimeInNames")
	return err
}
