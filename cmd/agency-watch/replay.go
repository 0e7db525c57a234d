// ABOUTME: The replay command rebuilds a projection purely from the local event cache
// ABOUTME: Needs no hub; the cache is filled by watch --record or by cache.enabled

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/deathbyknowledge/agent-hub-sub000/internal/bootstrap"
	"github.com/deathbyknowledge/agent-hub-sub000/internal/config"
	"github.com/deathbyknowledge/agent-hub-sub000/internal/logging"
	"github.com/deathbyknowledge/agent-hub-sub000/internal/projector"
	"github.com/deathbyknowledge/agent-hub-sub000/internal/store"
)

func newReplayCmd() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "replay <agency> [agent]",
		Short: "Print an agent's conversation from the local cache",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			// The hub settings may be absent here; only the cache matters.
			cfg, err := config.Load(config.Path(cfgFile))
			if err != nil {
				cfg = config.Default()
			}
			if logLevel != "" {
				cfg.Logging.Level = logLevel
			}
			logger := logging.New(cfg.Logging, os.Stderr)

			if dbPath == "" {
				dbPath = cfg.Cache.Path
			}
			if _, err := os.Stat(dbPath); err != nil {
				return fmt.Errorf("no event cache at %s (run watch --record first): %w", dbPath, err)
			}

			cache, err := store.NewSQLiteStore(dbPath, logger)
			if err != nil {
				return fmt.Errorf("opening event cache: %w", err)
			}
			defer cache.Close()

			agencyID := args[0]
			fetcher := bootstrap.New(bootstrap.NewStoreSource(cache), cfg.Bootstrap.Concurrency, logger)

			var res *bootstrap.Result
			if len(args) == 2 {
				res, err = fetcher.Load(cmd.Context(), agencyID, args[1])
			} else {
				res, err = fetcher.LoadAgency(cmd.Context(), agencyID)
			}
			if err != nil {
				return fmt.Errorf("replaying %s: %w", agencyID, err)
			}

			proj := projector.New(logger)
			applied := res.ApplyTo(proj)

			p := newPrinter(cmd.OutOrStdout())
			for _, id := range proj.Entities() {
				if state, ok := proj.Snapshot(id); ok {
					p.entity(state)
				}
			}
			for id, skipErr := range res.Skipped {
				p.note("%s: not in cache (%v)", id, skipErr)
			}
			p.note("replayed %d events across %d entities", applied, len(proj.Entities()))
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "event cache path (default is cache.path from config)")
	return cmd
}
