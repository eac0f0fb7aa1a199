// Package config loads shelfctl configuration from a YAML file with
// SHELFCTL_* environment variable overrides.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// DefaultBaseURL is the API endpoint used when none is configured.
	DefaultBaseURL = "http://localhost:3000/api/v1"

	// DefaultLogLevel is the default logging level.
	DefaultLogLevel = "info"

	// DefaultTimeout is the per-request HTTP timeout.
	DefaultTimeout = 10 * time.Second

	// DefaultStaleTime is how long cached query data is served without
	// a refetch.
	DefaultStaleTime = 5 * time.Minute

	// DefaultDashboardInterval is the dashboard polling period.
	DefaultDashboardInterval = 30 * time.Second

	// DefaultGCGrace is how long unused cache entries survive before
	// the sweeper evicts them.
	DefaultGCGrace = 10 * time.Minute

	// DefaultRequestsPerSecond caps outbound request rate.
	DefaultRequestsPerSecond = 10

	// DefaultReadRetries bounds retry attempts for idempotent reads.
	DefaultReadRetries = 2

	envPrefix = "SHELFCTL"
)

// Config is the root configuration for shelfctl.
type Config struct {
	API   APIConfig   `yaml:"api" mapstructure:"api"`
	Log   LogConfig   `yaml:"log" mapstructure:"log"`
	Cache CacheConfig `yaml:"cache" mapstructure:"cache"`
	Mock  MockConfig  `yaml:"mock,omitempty" mapstructure:"mock"`
}

// APIConfig describes how to reach the remote library service.
type APIConfig struct {
	BaseURL           string        `yaml:"base_url" mapstructure:"base_url"`
	Timeout           time.Duration `yaml:"timeout,omitempty" mapstructure:"timeout"`
	RequestsPerSecond int           `yaml:"requests_per_second,omitempty" mapstructure:"requests_per_second"`
	ReadRetries       int           `yaml:"read_retries,omitempty" mapstructure:"read_retries"`
	CredentialsDir    string        `yaml:"credentials_dir,omitempty" mapstructure:"credentials_dir"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level string `yaml:"level" mapstructure:"level"`
}

// CacheConfig tunes the server-state cache.
type CacheConfig struct {
	StaleTime         time.Duration `yaml:"stale_time,omitempty" mapstructure:"stale_time"`
	DashboardInterval time.Duration `yaml:"dashboard_interval,omitempty" mapstructure:"dashboard_interval"`
	GCGrace           time.Duration `yaml:"gc_grace,omitempty" mapstructure:"gc_grace"`
}

// MockConfig configures the bundled mock API server.
type MockConfig struct {
	Listen      string             `yaml:"listen,omitempty" mapstructure:"listen"`
	CORSOrigins []string           `yaml:"cors_origins,omitempty" mapstructure:"cors_origins"`
	Database    MockDatabaseConfig `yaml:"database,omitempty" mapstructure:"database"`
	Seed        bool               `yaml:"seed,omitempty" mapstructure:"seed"`
}

// MockDatabaseConfig selects the mock server's database backend.
type MockDatabaseConfig struct {
	Driver   string             `yaml:"driver,omitempty" mapstructure:"driver"`
	SQLite   SQLiteConfig       `yaml:"sqlite,omitempty" mapstructure:"sqlite"`
	Postgres MockPostgresConfig `yaml:"postgres,omitempty" mapstructure:"postgres"`
}

// SQLiteConfig contains SQLite settings.
type SQLiteConfig struct {
	Path string `yaml:"path,omitempty" mapstructure:"path"`
}

// MockPostgresConfig contains PostgreSQL connection settings.
type MockPostgresConfig struct {
	Host     string `yaml:"host,omitempty" mapstructure:"host"`
	Port     int    `yaml:"port,omitempty" mapstructure:"port"`
	User     string `yaml:"user,omitempty" mapstructure:"user"`
	Password string `yaml:"password,omitempty" mapstructure:"password"`
	Database string `yaml:"database,omitempty" mapstructure:"database"`
	SSLMode  string `yaml:"sslmode,omitempty" mapstructure:"sslmode"`
}

// Load reads configuration from the given path, if any, applies
// SHELFCTL_* environment overrides, and fills in defaults. A missing
// path yields a default configuration, so the CLI works out of the box.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)

		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	// Bind keys so AutomaticEnv sees them even without a config file.
	for _, key := range []string{
		"api.base_url", "api.timeout", "api.requests_per_second",
		"api.read_retries", "api.credentials_dir",
		"log.level",
		"cache.stale_time", "cache.dashboard_interval", "cache.gc_grace",
		"mock.listen", "mock.seed", "mock.database.driver",
		"mock.database.sqlite.path",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("binding env for %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// applyDefaults sets default values for unspecified options.
func (c *Config) applyDefaults() {
	if c.API.BaseURL == "" {
		c.API.BaseURL = DefaultBaseURL
	}

	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultTimeout
	}

	if c.API.RequestsPerSecond == 0 {
		c.API.RequestsPerSecond = DefaultRequestsPerSecond
	}

	if c.API.ReadRetries == 0 {
		c.API.ReadRetries = DefaultReadRetries
	}

	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}

	if c.Cache.StaleTime == 0 {
		c.Cache.StaleTime = DefaultStaleTime
	}

	if c.Cache.DashboardInterval == 0 {
		c.Cache.DashboardInterval = DefaultDashboardInterval
	}

	if c.Cache.GCGrace == 0 {
		c.Cache.GCGrace = DefaultGCGrace
	}

	if c.Mock.Listen == "" {
		c.Mock.Listen = ":3000"
	}

	if c.Mock.Database.Driver == "" {
		c.Mock.Database.Driver = "sqlite"
	}

	if c.Mock.Database.SQLite.Path == "" {
		c.Mock.Database.SQLite.Path = "shelfctl-mock.db"
	}

	if c.Mock.Database.Postgres.SSLMode == "" {
		c.Mock.Database.Postgres.SSLMode = "disable"
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("api.base_url %q is not a valid URL", c.API.BaseURL)
	}

	if c.API.Timeout < 0 {
		return fmt.Errorf("api.timeout must not be negative")
	}

	switch c.Mock.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported mock database driver: %s", c.Mock.Database.Driver)
	}

	return nil
}

// CredentialsDir returns the directory used to persist session
// credentials, creating the default location lazily when unset.
func (c *Config) CredentialsDir() (string, error) {
	if c.API.CredentialsDir != "" {
		return c.API.CredentialsDir, nil
	}

	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolving user config dir: %w", err)
	}

	return filepath.Join(base, "shelfctl"), nil
}
