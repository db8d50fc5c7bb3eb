package main

import (
	"github.com/spf13/cobra"

	"blobd/internal/api"
	"blobd/internal/config"
)

func newAdminCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Administrative commands",
	}

	cmd.AddCommand(newAdminSweepCmd(cfg, jsonOutput))
	return cmd
}

func newAdminSweepCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run every retention sweep once, now",
		Args:  requireExactlyArgs(0, "admin sweep takes no arguments"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), cfg, func(client *api.Client) error {
				resp, err := client.AdminSweep(cmd.Context())
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(resp)
				}

				if err := writePlain("expired=%d orphaned=%d backfilled=%d backfill_skipped=%d failed=%d\n",
					resp.Expired, resp.Orphaned, resp.Backfilled, resp.BackfillSkipped, resp.Failed); err != nil {
					return err
				}
				for _, id := range resp.ExpiredIDs {
					if err := writePlain("  %s\n", id); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}
