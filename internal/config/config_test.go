package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{})
	require.NoError(t, err)

	assert.Equal(t, "https://ec.europa.eu/taxation_customs/vies/rest-api", cfg.VIESBaseURL)
	assert.Equal(t, 15*time.Second, cfg.VIESTimeout)
	assert.Equal(t, 2, cfg.VIESMaxConcurrent)
	assert.Equal(t, 24*time.Hour, cfg.CacheTTL)
	assert.Equal(t, 10000, cfg.CacheSize)
	assert.Equal(t, 60, cfg.HTTPRateLimit)
	assert.Equal(t, int64(1<<20), cfg.HTTPMaxBodyBytes)
	assert.Empty(t, cfg.RedisURL)
	assert.Empty(t, cfg.HTTPAddr)
	assert.False(t, cfg.JSONLogs())
	assert.NoError(t, cfg.Validate())
}

func TestLoadFrom_Overrides(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{
		"VIES_BASE_URL":       "http://localhost:8080/vies",
		"VIES_TIMEOUT":        "3s",
		"VIES_MAX_CONCURRENT": "4",
		"VAT_CACHE_TTL":       "1h",
		"REDIS_URL":           "redis://localhost:6379/0",
		"LOG_LEVEL":           "debug",
		"LOG_FORMAT":          "JSON",
		"HTTP_ADDR":           ":8080",
		"MCP_AUTH_TOKEN":      "secret",
	})
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "http://localhost:8080/vies", cfg.VIESBaseURL)
	assert.Equal(t, 3*time.Second, cfg.VIESTimeout)
	assert.Equal(t, 4, cfg.VIESMaxConcurrent)
	assert.Equal(t, time.Hour, cfg.CacheTTL)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "secret", cfg.AuthToken)
	assert.True(t, cfg.JSONLogs())

	level, err := cfg.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestLoadFrom_ParseError(t *testing.T) {
	_, err := LoadFrom(map[string]string{"VIES_TIMEOUT": "soon"})
	assert.ErrorIs(t, err, ErrParsingConfig)
}

func TestValidate(t *testing.T) {
	base, err := LoadFrom(map[string]string{})
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"relative base url", func(c *Config) { c.VIESBaseURL = "/vies" }, "VIES_BASE_URL"},
		{"bad redis scheme", func(c *Config) { c.RedisURL = "http://localhost:6379" }, "REDIS_URL"},
		{"zero timeout", func(c *Config) { c.VIESTimeout = 0 }, "VIES_TIMEOUT"},
		{"zero concurrency", func(c *Config) { c.VIESMaxConcurrent = 0 }, "VIES_MAX_CONCURRENT"},
		{"negative ttl", func(c *Config) { c.CacheTTL = -time.Second }, "VAT_CACHE_TTL"},
		{"zero cache size", func(c *Config) { c.CacheSize = 0 }, "VAT_CACHE_SIZE"},
		{"zero rate", func(c *Config) { c.HTTPRateLimit = 0 }, "HTTP_RATE_LIMIT"},
		{"zero body limit", func(c *Config) { c.HTTPMaxBodyBytes = 0 }, "HTTP_MAX_BODY_BYTES"},
		{"unknown level", func(c *Config) { c.LogLevel = "loud" }, "LOG_LEVEL"},
		{"unknown format", func(c *Config) { c.LogFormat = "xml" }, "LOG_FORMAT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}
