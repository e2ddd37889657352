/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package client

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-ratelimitd/config"
)

func TestConfig(t *testing.T) {
	cfgData := `
client:
  url: "https://ratelimiter.example.com"
  timeout: 5s
  rateLimits:
    enabled: true
    limit: 50
    burst: 10
    waitTimeout: 2s
    pauseOnExhaustedQuota: true
  retries:
    enabled: true
    maxAttempts: 5
    initialInterval: 100ms
    maxRetryAfter: 30s
  log:
    mode: all
    slowRequestThreshold: 1s
`
	cfg := NewConfig()
	err := config.NewLoader(config.NewViperAdapter()).LoadFromReader(bytes.NewBufferString(cfgData), config.DataTypeYAML, cfg)
	require.NoError(t, err)

	want := NewConfig()
	want.URL = "https://ratelimiter.example.com"
	want.Timeout = config.TimeDuration(5 * time.Second)
	want.RateLimits = RateLimitsConfig{
		Enabled:               true,
		Limit:                 50,
		Burst:                 10,
		WaitTimeout:           config.TimeDuration(2 * time.Second),
		PauseOnExhaustedQuota: true,
	}
	want.Retries = RetriesConfig{
		Enabled:         true,
		MaxAttempts:     5,
		InitialInterval: config.TimeDuration(100 * time.Millisecond),
		MaxRetryAfter:   config.TimeDuration(30 * time.Second),
	}
	want.Log = LogConfig{Mode: LoggingModeAll, SlowRequestThreshold: config.TimeDuration(time.Second)}
	require.Equal(t, want, cfg)
}

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewConfig()
	require.NoError(t, config.NewDefaultLoader("").LoadFromReader(bytes.NewBuffer(nil), config.DataTypeYAML, cfg))
	require.Equal(t, NewDefaultConfig(), cfg)
	require.Equal(t, DefaultURL, cfg.URL)
	require.True(t, cfg.Retries.Enabled)
	require.False(t, cfg.RateLimits.Enabled)
}

func TestWithKeyPrefix(t *testing.T) {
	cfg := NewConfig(WithKeyPrefix("ratelimiter"))
	err := config.NewLoader(config.NewViperAdapter()).LoadFromReader(
		bytes.NewBufferString("ratelimiter:\n  url: http://10.0.0.1:3000\n"), config.DataTypeYAML, cfg)
	require.NoError(t, err)
	require.Equal(t, "ratelimiter", cfg.KeyPrefix())
	require.Equal(t, "http://10.0.0.1:3000", cfg.URL)
}

func TestConfigValidationErrors(t *testing.T) {
	tests := []struct {
		name           string
		yamlData       string
		expectedErrMsg string
	}{
		{
			name:           "empty url",
			yamlData:       "client:\n  url: \"\"\n",
			expectedErrMsg: "client.url: cannot be empty",
		},
		{
			name:           "negative timeout",
			yamlData:       "client:\n  timeout: -1s\n",
			expectedErrMsg: "client.timeout: cannot be negative",
		},
		{
			name:           "zero pacing limit",
			yamlData:       "client:\n  rateLimits:\n    enabled: true\n    limit: 0\n",
			expectedErrMsg: "client.rateLimits.limit: must be positive",
		},
		{
			name:           "negative burst",
			yamlData:       "client:\n  rateLimits:\n    enabled: true\n    limit: 1\n    burst: -1\n",
			expectedErrMsg: "client.rateLimits.burst: cannot be negative",
		},
		{
			name:           "negative max attempts",
			yamlData:       "client:\n  retries:\n    maxAttempts: -1\n",
			expectedErrMsg: "client.retries.maxAttempts: cannot be negative",
		},
		{
			name:           "unknown log mode",
			yamlData:       "client:\n  log:\n    mode: verbose\n",
			expectedErrMsg: "client.log.mode",
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
