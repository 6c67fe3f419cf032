package main

import (
	"errors"
	"fmt"

	"fedicaption/pkg/ui"

	"github.com/spf13/cobra"
)

func newStatsCmd(a *app) *cobra.Command {
	var (
		limit  int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "stats [user]",
		Short: "Probe the instance and report API usage",
		Long: `Verify the token, optionally fetch a user's posts, and print the
resulting API usage: rate limiter admissions and waits, retry outcomes per
endpoint and status code, and the limits the server advertised.

Combine with --metrics-out to also save the counters in Prometheus text
format.`,
		Example: `  fedicaption stats
  fedicaption stats alice --limit 80 --metrics-out fedicaption.prom`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.openClient(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			ok, err := client.Authenticate(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to verify token: %w", err)
			}
			if !ok {
				return errors.New("the instance rejected the token")
			}

			if len(args) == 1 {
				// Failures are part of the report.
				if _, err := fetchPosts(cmd, client, args[0], limit); err != nil {
					ui.PrintWarning("Fetching posts failed", err)
				}
			}

			report := client.APIUsageReport()
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), report)
			}
			ui.Print(ui.RenderUsageReport(report))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 40, "posts to fetch when a user is given")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}
