// Package config loads server settings from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// ErrParsingConfig wraps failures to read the environment.
var ErrParsingConfig = errors.New("failed to parse configuration")

// Config holds every environment-tunable setting.
type Config struct {
	VIESBaseURL       string        `env:"VIES_BASE_URL" envDefault:"https://ec.europa.eu/taxation_customs/vies/rest-api"`
	VIESTimeout       time.Duration `env:"VIES_TIMEOUT" envDefault:"15s"`
	VIESMaxConcurrent int           `env:"VIES_MAX_CONCURRENT" envDefault:"2"`
	VIESUserAgent     string        `env:"VIES_USER_AGENT" envDefault:"vat-eu-mcp-server/1.0"`

	CacheTTL  time.Duration `env:"VAT_CACHE_TTL" envDefault:"24h"`
	CacheSize int           `env:"VAT_CACHE_SIZE" envDefault:"10000"`
	RedisURL  string        `env:"REDIS_URL"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`

	HTTPAddr         string `env:"HTTP_ADDR"`
	HTTPRateLimit    int    `env:"HTTP_RATE_LIMIT" envDefault:"60"` // requests per minute per client IP
	HTTPMaxBodyBytes int64  `env:"HTTP_MAX_BODY_BYTES" envDefault:"1048576"`
	AuthToken        string `env:"MCP_AUTH_TOKEN"`
	MetricsAddr      string `env:"METRICS_ADDR"`
}

// Load reads an optional .env file, then the process environment.
func Load() (Config, error) {
	// A missing .env file is normal.
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, errors.Join(ErrParsingConfig, err)
	}
	return cfg, nil
}

// LoadFrom parses environ instead of the process environment.
func LoadFrom(environ map[string]string) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environ}); err != nil {
		return Config{}, errors.Join(ErrParsingConfig, err)
	}
	return cfg, nil
}

// Validate rejects settings the server cannot run with.
func (c Config) Validate() error {
	var errs []error

	if u, err := url.Parse(c.VIESBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("VIES_BASE_URL %q is not an absolute URL", c.VIESBaseURL))
	}
	if c.RedisURL != "" {
		if u, err := url.Parse(c.RedisURL); err != nil || (u.Scheme != "redis" && u.Scheme != "rediss") {
			errs = append(errs, fmt.Errorf("REDIS_URL %q must use redis:// or rediss://", c.RedisURL))
		}
	}
	if c.VIESTimeout <= 0 {
		errs = append(errs, errors.New("VIES_TIMEOUT must be positive"))
	}
	if c.VIESMaxConcurrent <= 0 {
		errs = append(errs, errors.New("VIES_MAX_CONCURRENT must be positive"))
	}
	if c.CacheTTL <= 0 {
		errs = append(errs, errors.New("VAT_CACHE_TTL must be positive"))
	}
	if c.CacheSize <= 0 {
		errs = append(errs, errors.New("VAT_CACHE_SIZE must be positive"))
	}
	if c.HTTPRateLimit <= 0 {
		errs = append(errs, errors.New("HTTP_RATE_LIMIT must be positive"))
	}
	if c.HTTPMaxBodyBytes <= 0 {
		errs = append(errs, errors.New("HTTP_MAX_BODY_BYTES must be positive"))
	}
	if _, err := c.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	if f := strings.ToLower(c.LogFormat); f != "text" && f != "json" {
		errs = append(errs, fmt.Errorf("LOG_FORMAT %q must be text or json", c.LogFormat))
	}

	return errors.Join(errs...)
}

// SlogLevel maps LOG_LEVEL to a slog level.
func (c Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("LOG_LEVEL %q: %w", c.LogLevel, err)
	}
	return level, nil
}

// JSONLogs reports whether logs should be written as JSON.
func (c Config) JSONLogs() bool {
	return strings.EqualFold(c.LogFormat, "json")
}
