// ABOUTME: The agents command lists the entities an agency knows about
// ABOUTME: Falls back to the local cache when the hub is unreachable and caching is on

package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/deathbyknowledge/agent-hub-sub000/internal/agency"
)

func newAgentsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "agents <agency>",
		Short: "List agents in an agency",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}

			client, err := agency.NewFromConfig(cfg, logger)
			if err != nil {
				return err
			}
			defer client.Close()

			agents, err := client.ListAgents(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("listing agents: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(agents) == 0 {
				color.New(color.FgYellow).Fprintln(out, "No agents.")
				return nil
			}

			cyan := color.New(color.FgCyan)
			cyan.Fprintf(out, "Agents in %s (%d):\n\n", args[0], len(agents))

			tw := tabwriter.NewWriter(out, 0, 2, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tKIND\tNAME\tPARENT\tCREATED")
			for _, a := range agents {
				created := "-"
				if !a.CreatedAt.IsZero() {
					created = a.CreatedAt.Local().Format("2006-01-02 15:04")
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					a.ID, orDash(a.Kind), orDash(a.Name), orDash(a.ParentID), created)
			}
			return tw.Flush()
		},
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
