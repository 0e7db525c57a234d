// ABOUTME: The init command writes a starter config file interactively
// ABOUTME: Prompts for the hub endpoint, token variable, cache and logging

package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/deathbyknowledge/agent-hub-sub000/internal/config"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create a config file interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

func runInit(in io.Reader, out io.Writer) error {
	reader := bufio.NewReader(in)

	fmt.Fprintln(out, "agency-watch configuration setup")
	fmt.Fprintln(out, "================================")
	fmt.Fprintln(out)

	defaults := config.Default()

	outputFile := prompt(reader, out, "Config file path", config.Path(cfgFile))
	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, out, "File exists. Overwrite?", "no")
		if !isYes(overwrite) {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	fmt.Fprintln(out, "\n--- Hub ---")
	baseURL := prompt(reader, out, "Hub base URL", "http://localhost:8787")
	tokenVar := prompt(reader, out, "Environment variable holding the token (empty for none)", "AGENT_HUB_TOKEN")

	fmt.Fprintln(out, "\n--- Local Cache ---")
	cacheEnabled := isYes(prompt(reader, out, "Record events locally?", "no"))
	cachePath := defaults.Cache.Path
	if cacheEnabled {
		cachePath = prompt(reader, out, "SQLite cache path", defaults.Cache.Path)
	}

	fmt.Fprintln(out, "\n--- Logging ---")
	level := prompt(reader, out, "Log level (debug/info/warn/error)", defaults.Logging.Level)
	format := prompt(reader, out, "Log format (text/json)", defaults.Logging.Format)

	var cfg strings.Builder
	cfg.WriteString("# agency-watch configuration\n")
	cfg.WriteString("# Generated by agency-watch init\n\n")

	cfg.WriteString("hub:\n")
	cfg.WriteString(fmt.Sprintf("  base_url: %q\n", baseURL))
	if tokenVar != "" {
		cfg.WriteString(fmt.Sprintf("  token: \"${%s}\"\n", tokenVar))
	}
	cfg.WriteString(fmt.Sprintf("  websocket_path: %q\n", defaults.Hub.WebSocketPath))
	cfg.WriteString("\n")

	cfg.WriteString("reconnect:\n")
	cfg.WriteString(fmt.Sprintf("  base_delay: %q\n", defaults.Reconnect.BaseDelay))
	cfg.WriteString(fmt.Sprintf("  max_delay: %q\n", defaults.Reconnect.MaxDelay))
	cfg.WriteString(fmt.Sprintf("  max_attempts: %d\n", defaults.Reconnect.MaxAttempts))
	cfg.WriteString("\n")

	cfg.WriteString("cache:\n")
	cfg.WriteString(fmt.Sprintf("  enabled: %t\n", cacheEnabled))
	cfg.WriteString(fmt.Sprintf("  path: %q\n", cachePath))
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: %q\n", level))
	cfg.WriteString(fmt.Sprintf("  format: %q\n", format))

	if _, err := config.Parse([]byte(cfg.String()), false); err != nil {
		return fmt.Errorf("generated config is invalid: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(outputFile), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(outputFile, []byte(cfg.String()), 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	color.New(color.FgGreen).Fprintf(out, "\n✓ Config written to %s\n", outputFile)
	fmt.Fprintln(out, "\nTo follow an agency:")
	fmt.Fprintln(out, "  agency-watch watch <agency>")
	return nil
}

func isYes(s string) bool {
	s = strings.ToLower(s)
	return s == "yes" || s == "y"
}

func prompt(reader *bufio.Reader, out io.Writer, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Fprintf(out, "%s [%s]: ", question, defaultVal)
	} else {
		fmt.Fprintf(out, "%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Fprintln(out)
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
