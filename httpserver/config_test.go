/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/acronis/go-ratelimitd/config"
)

type appConfig struct {
	Server *Config `mapstructure:"server" json:"server" yaml:"server"`
}

func TestConfig(t *testing.T) {
	expectedCfg := func() *Config {
		cfg := NewDefaultConfig()
		cfg.Address = "127.0.0.1:3000"
		cfg.Timeouts.Write = config.TimeDuration(time.Hour)
		cfg.Timeouts.Read = config.TimeDuration(7 * time.Minute)
		cfg.Timeouts.ReadHeader = config.TimeDuration(time.Minute)
		cfg.Timeouts.Idle = config.TimeDuration(20 * time.Minute)
		cfg.Timeouts.Shutdown = config.TimeDuration(30 * time.Second)
		cfg.Limits.MaxBodySize = 1024 * 1024
		cfg.Log.RequestStart = true
		cfg.Log.ExcludedEndpoints = []string{"/healthz"}
		cfg.Log.SlowRequestThreshold = config.TimeDuration(2 * time.Second)
		return cfg
	}

	tests := []struct {
		name        string
		cfgDataType config.DataType
		cfgData     string
	}{
		{
			name:        "yaml config",
			cfgDataType: config.DataTypeYAML,
			cfgData: `
server:
  address: "127.0.0.1:3000"
  timeouts:
    write: 1h
    read: 7m
    readHeader: 1m
    idle: 20m
    shutdown: 30s
  limits:
    maxBodySize: 1M
  log:
    requestStart: true
    excludedEndpoints: ["/healthz"]
    slowRequestThreshold: 2s
`,
		},
		{
			name:        "json config",
			cfgDataType: config.DataTypeJSON,
			cfgData: `
{
  "server": {
    "address": "127.0.0.1:3000",
    "timeouts": {"write": "1h", "read": "7m", "readHeader": "1m", "idle": "20m", "shutdown": "30s"},
    "limits": {"maxBodySize": "1M"},
    "log": {"requestStart": true, "excludedEndpoints": ["/healthz"], "slowRequestThreshold": "2s"}
  }
}
`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// config.Loader
			appCfg := appConfig{Server: NewDefaultConfig()}
			err := config.NewLoader(config.NewViperAdapter()).LoadFromReader(
				bytes.NewBufferString(tt.cfgData), tt.cfgDataType, appCfg.Server)
			require.NoError(t, err)
			require.Equal(t, appConfig{Server: expectedCfg()}, appCfg)

			// viper.Unmarshal
			appCfg = appConfig{Server: NewDefaultConfig()}
			vpr := viper.New()
			vpr.SetConfigType(string(tt.cfgDataType))
			require.NoError(t, vpr.ReadConfig(bytes.NewBufferString(tt.cfgData)))
			require.NoError(t, vpr.Unmarshal(&appCfg, func(c *mapstructure.DecoderConfig) {
				c.DecodeHook = mapstructure.TextUnmarshallerHookFunc()
			}))
			require.Equal(t, appConfig{Server: expectedCfg()}, appCfg)

			// yaml/json unmarshal
			appCfg = appConfig{Server: NewDefaultConfig()}
			if tt.cfgDataType == config.DataTypeYAML {
				require.NoError(t, yaml.Unmarshal([]byte(tt.cfgData), &appCfg))
			} else {
				require.NoError(t, json.Unmarshal([]byte(tt.cfgData), &appCfg))
			}
			require.Equal(t, appConfig{Server: expectedCfg()}, appCfg)
		})
	}
}

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewConfig()
	require.NoError(t, config.NewDefaultLoader("").LoadFromReader(bytes.NewBuffer(nil), config.DataTypeYAML, cfg))
	require.Equal(t, NewDefaultConfig(), cfg)
	require.EqualValues(t, 64*1024, cfg.Limits.MaxBodySize)
}

func TestWithKeyPrefix(t *testing.T) {
	cfgData := `
api:
  address: "127.0.0.1:9999"
`
	expectedCfg := NewDefaultConfig(WithKeyPrefix("api"))
	expectedCfg.Address = "127.0.0.1:9999"

	cfg := NewConfig(WithKeyPrefix("api"))
	err := config.NewLoader(config.NewViperAdapter()).LoadFromReader(bytes.NewBufferString(cfgData), config.DataTypeYAML, cfg)
	require.NoError(t, err)
	require.Equal(t, expectedCfg, cfg)
}

func TestConfigValidationErrors(t *testing.T) {
	tests := []struct {
		name           string
		yamlData       string
		expectedErrMsg string
	}{
		{
			name:           "invalid address",
			yamlData:       "server:\n  address: []\n",
			expectedErrMsg: "server.address: unable to cast",
		},
		{
			name:           "negative timeout",
			yamlData:       "server:\n  timeouts:\n    read: -1s\n",
			expectedErrMsg: "server.timeouts.read: cannot be negative",
		},
		{
			name:           "invalid body size",
			yamlData:       "server:\n  limits:\n    maxBodySize: lots\n",
			expectedErrMsg: "server.limits.maxBodySize",
		},
		{
			name:           "tls without certificate",
			yamlData:       "server:\n  tls:\n    enabled: true\n",
			expectedErrMsg: "server.tls",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := config.NewLoader(config.NewViperAdapter()).LoadFromReader(
				bytes.NewBufferString(tt.yamlData), config.DataTypeYAML, NewConfig())
			require.ErrorContains(t, err, tt.expectedErrMsg)
		})
	}
}
