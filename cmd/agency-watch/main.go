// ABOUTME: Entry point for agency-watch, a terminal client for agent-hub agencies
// ABOUTME: Lists agents, follows live runs, sends messages and replays cached history

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/deathbyknowledge/agent-hub-sub000/internal/config"
	"github.com/deathbyknowledge/agent-hub-sub000/internal/logging"
)

// Version is set by goreleaser at build time.
var version = "dev"

var (
	cfgFile  string
	logLevel string
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "agency-watch",
		Short: "Follow agent runs in an agent-hub agency",
		Long: `agency-watch keeps one live connection per agency, rebuilds each agent's
conversation from its event history, and prints changes as they arrive.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/agency/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level")

	rootCmd.AddCommand(
		newAgentsCmd(),
		newWatchCmd(),
		newSendCmd(),
		newReplayCmd(),
		newInitCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version number",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "agency-watch version %s\n", version)
			},
		},
	)
	return rootCmd
}

// loadConfig reads the config file and builds the logger from it. Logs go
// to stderr so command output stays clean.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(config.Path(cfgFile))
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	logger := logging.New(cfg.Logging, os.Stderr)
	slog.SetDefault(logger)
	return cfg, logger, nil
}
