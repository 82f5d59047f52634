// Package config loads runtime settings for the snippetbox server.
//
// Settings come from an optional YAML file named by CONFIG_PATH, overlaid
// with environment variables. Every field has a default, so the server runs
// with no configuration at all.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config is the full server configuration.
type Config struct {
	HTTP struct {
		Host string `yaml:"host" env:"HTTP_HOST" env-default:""`
		Port int    `yaml:"port" env:"PORT" env-default:"3000"`
	} `yaml:"http"`

	Database struct {
		Path string `yaml:"path" env:"DB_PATH" env-default:"data/snippetbox.db"`
	} `yaml:"database"`

	Session struct {
		Secret        string        `yaml:"secret" env:"SESSION_SECRET"`
		TTL           time.Duration `yaml:"ttl" env:"SESSION_TTL" env-default:"24h"`
		Store         string        `yaml:"store" env:"SESSION_STORE" env-default:"sqlite"`
		RedisAddr     string        `yaml:"redis_addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
		RedisPassword string        `yaml:"redis_password" env:"REDIS_PASSWORD"`
		RedisDB       int           `yaml:"redis_db" env:"REDIS_DB" env-default:"0"`
		CookieSecure  bool          `yaml:"cookie_secure" env:"COOKIE_SECURE" env-default:"false"`
		PurgeInterval time.Duration `yaml:"purge_interval" env:"SESSION_PURGE_INTERVAL" env-default:"1h"`
	} `yaml:"session"`

	GitHub struct {
		ClientID     string `yaml:"client_id" env:"GITHUB_CLIENT_ID"`
		ClientSecret string `yaml:"client_secret" env:"GITHUB_CLIENT_SECRET"`
		CallbackURL  string `yaml:"callback_url" env:"GITHUB_CALLBACK_URL"`
	} `yaml:"github"`

	RateLimit struct {
		PerMinute int `yaml:"per_minute" env:"LOGIN_RATE_PER_MINUTE" env-default:"10"`
		Burst     int `yaml:"burst" env:"LOGIN_RATE_BURST" env-default:"5"`
	} `yaml:"rate_limit"`

	Runner struct {
		Enabled  bool          `yaml:"enabled" env:"RUNNER_ENABLED" env-default:"false"`
		Language string        `yaml:"language" env:"RUNNER_LANGUAGE" env-default:"python"`
		Image    string        `yaml:"image" env:"RUNNER_IMAGE" env-default:"python:3.12-alpine"`
		Timeout  time.Duration `yaml:"timeout" env:"RUNNER_TIMEOUT" env-default:"10s"`
		PoolSize int           `yaml:"pool_size" env:"RUNNER_POOL_SIZE" env-default:"2"`
		MemoryMB int64         `yaml:"memory_mb" env:"RUNNER_MEMORY_MB" env-default:"128"`
		CPUs     float64       `yaml:"cpus" env:"RUNNER_CPUS" env-default:"0.5"`
	} `yaml:"runner"`

	Log struct {
		Level string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	} `yaml:"log"`
}

// Load reads the file at path (if non-empty) and then the environment.
// An empty path means environment and defaults only.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromEnv loads from CONFIG_PATH, or the environment alone when unset.
func FromEnv() (*Config, error) {
	return Load(os.Getenv("CONFIG_PATH"))
}

func (c *Config) validate() error {
	if c.HTTP.Port < 1 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http port %d out of range", c.HTTP.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("session ttl must be positive")
	}
	switch c.Session.Store {
	case "sqlite", "redis":
	default:
		return fmt.Errorf("unknown session store %q (want sqlite or redis)", c.Session.Store)
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	return nil
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.HTTP.Host, c.HTTP.Port)
}

// GitHubEnabled reports whether GitHub login is configured.
func (c *Config) GitHubEnabled() bool {
	return c.GitHub.ClientID != "" && c.GitHub.ClientSecret != ""
}

// GitHubCallback returns the configured callback URL, or one derived from
// the listen port.
func (c *Config) GitHubCallback() string {
	if c.GitHub.CallbackURL != "" {
		return c.GitHub.CallbackURL
	}
	return fmt.Sprintf("http://localhost:%d/auth/github/callback", c.HTTP.Port)
}

// LogLevel parses the configured level name.
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(c.Log.Level))); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", c.Log.Level, err)
	}
	return level, nil
}
