// Package config handles configuration loading for the agency sync client.
//
// # Overview
//
// Configuration is loaded from a YAML or TOML file with environment variable
// expansion. Unset fields keep the values from Default.
//
// # Configuration File
//
// Locations (in order):
//
//  1. The --config flag
//  2. Path from AGENCY_CONFIG environment variable
//  3. $XDG_CONFIG_HOME/agency/config.yaml
//  4. ~/.config/agency/config.yaml
//
// A file ending in .toml is parsed as TOML; anything else as YAML.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	hub:
//	  token: "${AGENT_HUB_TOKEN}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	reconnect:
//	  base_delay: "1s"
//	  max_delay: "30s"
//	  max_attempts: 10
//
// # Configuration Sections
//
//	hub:
//	  base_url: "https://hub.example.com"   # required
//	  token: "${AGENT_HUB_TOKEN}"
//	  websocket_path: "/agency/{agency}/events"
//
//	bootstrap:
//	  concurrency: 4                        # parallel history fetches
//
//	dedupe:
//	  window: "2m"
//	  max_size: 1024                        # 0 disables duplicate suppression
//
//	cache:
//	  enabled: false
//	  path: "~/.local/share/agency/events.db"
//
//	logging:
//	  level: "info"                         # debug, info, warn, error
//	  format: "text"                        # text or json
package config
