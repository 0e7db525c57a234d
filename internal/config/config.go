// ABOUTME: Configuration loading and parsing for the agency sync client
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config represents the complete client configuration
type Config struct {
	Hub       HubConfig       `yaml:"hub" toml:"hub"`
	Reconnect ReconnectConfig `yaml:"reconnect" toml:"reconnect"`
	Bootstrap BootstrapConfig `yaml:"bootstrap" toml:"bootstrap"`
	Dedupe    DedupeConfig    `yaml:"dedupe" toml:"dedupe"`
	Cache     CacheConfig     `yaml:"cache" toml:"cache"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
}

// HubConfig holds the agent-hub endpoint
type HubConfig struct {
	BaseURL       string `yaml:"base_url" toml:"base_url"`
	Token         string `yaml:"token" toml:"token"`
	WebSocketPath string `yaml:"websocket_path" toml:"websocket_path"`
}

// ReconnectConfig holds the live connection retry policy
type ReconnectConfig struct {
	BaseDelay   time.Duration `yaml:"-" toml:"-"`
	MaxDelay    time.Duration `yaml:"-" toml:"-"`
	MaxAttempts int           `yaml:"max_attempts" toml:"max_attempts"`

	// Raw string values for unmarshaling
	BaseDelayRaw string `yaml:"base_delay" toml:"base_delay"`
	MaxDelayRaw  string `yaml:"max_delay" toml:"max_delay"`
}

// BootstrapConfig holds history loading settings
type BootstrapConfig struct {
	Concurrency int `yaml:"concurrency" toml:"concurrency"`
}

// DedupeConfig bounds the per-agency memory of delivered event ids
type DedupeConfig struct {
	Window    time.Duration `yaml:"-" toml:"-"`
	WindowRaw string        `yaml:"window" toml:"window"`
	MaxSize   int           `yaml:"max_size" toml:"max_size"`
}

// CacheConfig holds the local event cache settings
type CacheConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Path    string `yaml:"path" toml:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Default returns the configuration used when a file leaves a field unset.
func Default() *Config {
	return &Config{
		Hub: HubConfig{
			WebSocketPath: "/agency/{agency}/events",
		},
		Reconnect: ReconnectConfig{
			BaseDelay:   1 * time.Second,
			MaxDelay:    30 * time.Second,
			MaxAttempts: 10,
		},
		Bootstrap: BootstrapConfig{Concurrency: 4},
		Dedupe: DedupeConfig{
			Window:  2 * time.Minute,
			MaxSize: 1024,
		},
		Cache: CacheConfig{
			Enabled: false,
			Path:    filepath.Join(DataDir(), "events.db"),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are parsed as TOML, anything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg, err := Parse(data, strings.EqualFold(filepath.Ext(path), ".toml"))
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes raw configuration on top of Default.
func Parse(data []byte, isTOML bool) (*Config, error) {
	expanded := expandEnvVars(string(data))

	cfg := Default()
	if isTOML {
		if _, err := toml.Decode(expanded, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Hub.BaseURL == "" {
		return fmt.Errorf("hub.base_url is required")
	}
	u, err := url.Parse(c.Hub.BaseURL)
	if err != nil {
		return fmt.Errorf("hub.base_url is invalid: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("hub.base_url must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("hub.base_url must include a host")
	}
	if !strings.Contains(c.Hub.WebSocketPath, "{agency}") {
		return fmt.Errorf("hub.websocket_path must contain {agency}")
	}

	if c.Reconnect.BaseDelay <= 0 {
		return fmt.Errorf("reconnect.base_delay must be positive")
	}
	if c.Reconnect.MaxDelay < c.Reconnect.BaseDelay {
		return fmt.Errorf("reconnect.max_delay must be at least reconnect.base_delay")
	}
	if c.Reconnect.MaxAttempts < 1 {
		return fmt.Errorf("reconnect.max_attempts must be at least 1")
	}

	if c.Bootstrap.Concurrency < 1 {
		return fmt.Errorf("bootstrap.concurrency must be at least 1")
	}

	if c.Dedupe.MaxSize < 0 {
		return fmt.Errorf("dedupe.max_size must not be negative")
	}
	if c.Dedupe.MaxSize > 0 && c.Dedupe.Window <= 0 {
		return fmt.Errorf("dedupe.window must be positive when dedupe is enabled")
	}

	if c.Cache.Enabled && c.Cache.Path == "" {
		return fmt.Errorf("cache.path is required when cache is enabled")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Reconnect.BaseDelayRaw != "" {
		cfg.Reconnect.BaseDelay, err = time.ParseDuration(cfg.Reconnect.BaseDelayRaw)
		if err != nil {
			return fmt.Errorf("parsing base_delay %q: %w", cfg.Reconnect.BaseDelayRaw, err)
		}
	}

	if cfg.Reconnect.MaxDelayRaw != "" {
		cfg.Reconnect.MaxDelay, err = time.ParseDuration(cfg.Reconnect.MaxDelayRaw)
		if err != nil {
			return fmt.Errorf("parsing max_delay %q: %w", cfg.Reconnect.MaxDelayRaw, err)
		}
	}

	if cfg.Dedupe.WindowRaw != "" {
		cfg.Dedupe.Window, err = time.ParseDuration(cfg.Dedupe.WindowRaw)
		if err != nil {
			return fmt.Errorf("parsing window %q: %w", cfg.Dedupe.WindowRaw, err)
		}
	}

	return nil
}
