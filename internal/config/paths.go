// ABOUTME: Default file locations for config and cached data
// ABOUTME: Follows XDG base directories with home-directory fallbacks

package config

import (
	"os"
	"path/filepath"
)

// Path returns the config file to load.
// Priority: flagPath > AGENCY_CONFIG > XDG_CONFIG_HOME/agency/config.yaml > ~/.config/agency/config.yaml
func Path(flagPath string) string {
	if flagPath != "" {
		return flagPath
	}
	if envPath := os.Getenv("AGENCY_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "agency", "config.yaml")
}

// DataDir returns the directory for cached data.
// Priority: XDG_DATA_HOME/agency > ~/.local/share/agency
func DataDir() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "agency")
}
