// ABOUTME: The send command posts a user message to an agent
// ABOUTME: The message shows as pending until the hub confirms it; --follow streams the run

package main

import (
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/deathbyknowledge/agent-hub-sub000/internal/agency"
	"github.com/deathbyknowledge/agent-hub-sub000/internal/projector"
)

func newSendCmd() *cobra.Command {
	var followRun bool

	cmd := &cobra.Command{
		Use:   "send <agency> <agent> <message...>",
		Short: "Send a message to an agent",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}

			agencyID, agentID := args[0], args[1]
			message := strings.Join(args[2:], " ")

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

			out := cmd.OutOrStdout()
			var p *printer
			done := make(chan struct{})
			if followRun {
				p = newPrinter(out)
				stop := follow(view, p)
				defer stop()

				// The agent may still show the previous run's final status, so
				// wait until it has been active before accepting a terminal one.
				var (
					mu        sync.Mutex
					sawActive bool
					finished  bool
				)
				cancel := view.Watch(func(id string) {
					if id != agentID {
						return
					}
					state, ok := view.Entity(id)
					if !ok {
						return
					}
					mu.Lock()
					defer mu.Unlock()
					switch {
					case finished:
					case !state.Status.Terminal() && state.Status != projector.StatusIdle:
						sawActive = true
					case state.Status.Terminal() && sawActive:
						finished = true
						close(done)
					}
				})
				defer cancel()
			}

			if err := view.Send(cmd.Context(), message); err != nil {
				return err
			}

			if !followRun {
				color.New(color.FgGreen).Fprintf(out, "✓ Sent to %s/%s\n", agencyID, agentID)
				return nil
			}

			p.note("sent, waiting for the run to finish (Ctrl-C to stop)")
			select {
			case <-done:
			case <-cmd.Context().Done():
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&followRun, "follow", "f", false, "stream the run until it finishes")
	return cmd
}
