/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/acronis/go-ratelimitd/config"
	"github.com/acronis/go-ratelimitd/httpserver"
	"github.com/acronis/go-ratelimitd/log"
	"github.com/acronis/go-ratelimitd/profserver"
	"github.com/acronis/go-ratelimitd/ratelimit"
)

// envVarsPrefix is a prefix of environment variables that override configuration values
// (e.g. RATELIMITD_SERVER_ADDRESS overrides server.address).
const envVarsPrefix = "RATELIMITD"

// AppConfig is the configuration of the service.
type AppConfig struct {
	Log        *log.Config
	Server     *httpserver.Config
	RateLimit  *ratelimit.Config
	ProfServer *profserver.Config
}

// NewAppConfig creates a new instance of the AppConfig.
func NewAppConfig() *AppConfig {
	return &AppConfig{
		Log:        log.NewConfig(),
		Server:     httpserver.NewConfig(),
		RateLimit:  ratelimit.NewConfig(),
		ProfServer: profserver.NewConfig(),
	}
}

func (c *AppConfig) sections() []config.Config {
	return []config.Config{c.Log, c.Server, c.RateLimit, c.ProfServer}
}

// loadAppConfig loads the configuration from the file (if the path is not empty) and environment variables.
func loadAppConfig(path string) (*AppConfig, error) {
	cfg := NewAppConfig()
	sections := cfg.sections()
	loader := config.NewDefaultLoader(envVarsPrefix)
	if path == "" {
		if err := loader.LoadDefaults(sections[0], sections[1:]...); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	dataType, err := dataTypeFromPath(path)
	if err != nil {
		return nil, err
	}
	if err = loader.LoadFromFile(path, dataType, sections[0], sections[1:]...); err != nil {
		return nil, fmt.Errorf("load config from %s: %w", path, err)
	}
	return cfg, nil
}

func dataTypeFromPath(path string) (config.DataType, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		return config.DataTypeYAML, nil
	case ".json":
		return config.DataTypeJSON, nil
	}
	return "", fmt.Errorf("unsupported config file extension %q, yaml or json is expected", filepath.Ext(path))
}

// resolveConfigPath returns the explicitly passed path or the default one if such file exists.
func resolveConfigPath(flagValue string, flagSet bool) (string, error) {
	if flagSet {
		return flagValue, nil
	}
	if _, err := os.Stat(flagValue); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", err
	}
	return flagValue, nil
}
