package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, DefaultBaseURL, cfg.API.BaseURL)
	assert.Equal(t, DefaultTimeout, cfg.API.Timeout)
	assert.Equal(t, DefaultLogLevel, cfg.Log.Level)
	assert.Equal(t, DefaultStaleTime, cfg.Cache.StaleTime)
	assert.Equal(t, DefaultDashboardInterval, cfg.Cache.DashboardInterval)
	assert.Equal(t, "sqlite", cfg.Mock.Database.Driver)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_File(t *testing.T) {
	configContent := `
api:
  base_url: https://library.example.com/api/v1
  timeout: 5s
  read_retries: 3
log:
  level: debug
cache:
  stale_time: 2m
  dashboard_interval: 10s
mock:
  listen: ":4000"
  database:
    driver: postgres
    postgres:
      host: localhost
      port: 5432
      user: shelf
      database: shelf
`

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0o644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "https://library.example.com/api/v1", cfg.API.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.API.Timeout)
	assert.Equal(t, 3, cfg.API.ReadRetries)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 2*time.Minute, cfg.Cache.StaleTime)
	assert.Equal(t, 10*time.Second, cfg.Cache.DashboardInterval)
	assert.Equal(t, ":4000", cfg.Mock.Listen)
	assert.Equal(t, "postgres", cfg.Mock.Database.Driver)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SHELFCTL_API_BASE_URL", "https://env.example.com/api/v1")
	t.Setenv("SHELFCTL_LOG_LEVEL", "warn")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "https://env.example.com/api/v1", cfg.API.BaseURL)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "bad base url",
			mutate:  func(c *Config) { c.API.BaseURL = "not a url" },
			wantErr: "base_url",
		},
		{
			name:    "unknown mock driver",
			mutate:  func(c *Config) { c.Mock.Database.Driver = "oracle" },
			wantErr: "driver",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("")
			require.NoError(t, err)

			tt.mutate(cfg)

			err = cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)

				return
			}

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
