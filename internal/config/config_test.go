// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML and TOML loading, env var expansion, defaults and validation

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_YAML(t *testing.T) {
	t.Setenv("TEST_HUB_TOKEN", "tok-123")

	path := writeConfig(t, "config.yaml", `
hub:
  base_url: "https://hub.example.com"
  token: "${TEST_HUB_TOKEN}"

reconnect:
  base_delay: "500ms"
  max_delay: "10s"
  max_attempts: 5

bootstrap:
  concurrency: 8

dedupe:
  window: "30s"
  max_size: 256

cache:
  enabled: true
  path: "/tmp/agency/events.db"

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://hub.example.com", cfg.Hub.BaseURL)
	assert.Equal(t, "tok-123", cfg.Hub.Token)
	assert.Equal(t, "/agency/{agency}/events", cfg.Hub.WebSocketPath)
	assert.Equal(t, 500*time.Millisecond, cfg.Reconnect.BaseDelay)
	assert.Equal(t, 10*time.Second, cfg.Reconnect.MaxDelay)
	assert.Equal(t, 5, cfg.Reconnect.MaxAttempts)
	assert.Equal(t, 8, cfg.Bootstrap.Concurrency)
	assert.Equal(t, 30*time.Second, cfg.Dedupe.Window)
	assert.Equal(t, 256, cfg.Dedupe.MaxSize)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, "/tmp/agency/events.db", cfg.Cache.Path)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_TOML(t *testing.T) {
	path := writeConfig(t, "config.toml", `
[hub]
base_url = "http://localhost:8787"
websocket_path = "/ws/{agency}"

[reconnect]
max_delay = "1m"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8787", cfg.Hub.BaseURL)
	assert.Equal(t, "/ws/{agency}", cfg.Hub.WebSocketPath)
	assert.Equal(t, time.Second, cfg.Reconnect.BaseDelay)
	assert.Equal(t, time.Minute, cfg.Reconnect.MaxDelay)
	assert.Equal(t, 10, cfg.Reconnect.MaxAttempts)
}

func TestLoad_DefaultsFillGaps(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
hub:
  base_url: "https://hub.example.com"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	def := Default()
	assert.Equal(t, def.Reconnect, cfg.Reconnect)
	assert.Equal(t, def.Bootstrap, cfg.Bootstrap)
	assert.Equal(t, def.Dedupe, cfg.Dedupe)
	assert.False(t, cfg.Cache.Enabled)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "reading config file")
}

func TestLoad_InvalidDuration(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
hub:
  base_url: "https://hub.example.com"
reconnect:
  base_delay: "soon"
`)

	_, err := Load(path)
	assert.ErrorContains(t, err, "base_delay")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing base url", func(c *Config) { c.Hub.BaseURL = "" }, "hub.base_url is required"},
		{"bad scheme", func(c *Config) { c.Hub.BaseURL = "ftp://hub" }, "http or https"},
		{"no host", func(c *Config) { c.Hub.BaseURL = "http://" }, "host"},
		{"ws path without agency", func(c *Config) { c.Hub.WebSocketPath = "/events" }, "{agency}"},
		{"zero base delay", func(c *Config) { c.Reconnect.BaseDelay = 0 }, "base_delay"},
		{"max below base", func(c *Config) { c.Reconnect.MaxDelay = 500 * time.Millisecond }, "max_delay"},
		{"zero attempts", func(c *Config) { c.Reconnect.MaxAttempts = 0 }, "max_attempts"},
		{"zero concurrency", func(c *Config) { c.Bootstrap.Concurrency = 0 }, "concurrency"},
		{"dedupe without window", func(c *Config) { c.Dedupe.Window = 0 }, "dedupe.window"},
		{"dedupe disabled", func(c *Config) { c.Dedupe.Window = 0; c.Dedupe.MaxSize = 0 }, ""},
		{"cache without path", func(c *Config) { c.Cache.Enabled = true; c.Cache.Path = "" }, "cache.path"},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Hub.BaseURL = "https://hub.example.com"
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("TEST_A", "alpha")

	assert.Equal(t, "x-alpha-", expandEnvVars("x-${TEST_A}-${TEST_UNSET_VAR_XYZ}"))
	assert.Equal(t, "no vars", expandEnvVars("no vars"))
}

func TestPath(t *testing.T) {
	t.Setenv("AGENCY_CONFIG", "")
	t.Setenv("XDG_CONFIG_HOME", "/xdg")

	assert.Equal(t, "/flag.yaml", Path("/flag.yaml"))
	assert.Equal(t, filepath.Join("/xdg", "agency", "config.yaml"), Path(""))

	t.Setenv("AGENCY_CONFIG", "/env.toml")
	assert.Equal(t, "/env.toml", Path(""))
}

func TestDataDir(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/data")
	assert.Equal(t, filepath.Join("/data", "agency"), DataDir())
}
