// ABOUTME: The watch command follows an agent (or a whole agency) live
// ABOUTME: With --record every fetched and live event is also written to the local cache

package main

import (
	"github.com/spf13/cobra"

	"github.com/deathbyknowledge/agent-hub-sub000/internal/agency"
)

func newWatchCmd() *cobra.Command {
	var record bool

	cmd := &cobra.Command{
		Use:   "watch <agency> [agent]",
		Short: "Follow live events for an agent, or every agent in the agency",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			if record {
				cfg.Cache.Enabled = true
			}

			agencyID, agentID := args[0], ""
			if len(args) == 2 {
				agentID = args[1]
			}

			client, err := agency.NewFromConfig(cfg, logger)
			if err != nil {
				return err
			}
			defer client.Close()

			view, err := client.Open(cmd.Context(), agencyID, agentID)
			if err != nil {
				return err
			}
			defer view.Close()

			p := newPrinter(cmd.OutOrStdout())
			if err := view.BootstrapErr(); err != nil {
				p.note("history not available yet: %v", err)
			}
			if record {
				p.note("recording to %s", cfg.Cache.Path)
			}
			stop := follow(view, p)
			defer stop()

			<-cmd.Context().Done()
			return nil
		},
	}

	cmd.Flags().BoolVar(&record, "record", false, "write events to the local cache for replay")
	return cmd
}

// follow prints the view's current state, then every change and every
// connection status transition. The returned function stops following.
func follow(view *agency.View, p *printer) (stop func()) {
	for _, id := range view.Entities() {
		if state, ok := view.Entity(id); ok {
			p.entity(state)
		}
	}

	cancelWatch := view.Watch(func(id string) {
		if state, ok := view.Entity(id); ok {
			p.entity(state)
		}
	})
	cancelStatus := view.SubscribeStatus(p.connection)

	return func() {
		cancelWatch()
		cancelStatus()
	}
}
