package main

import (
	"github.com/spf13/cobra"

	"blobd/internal/api"
	"blobd/internal/config"
)

func newStatsCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show aggregate storage usage",
		Args:  requireExactlyArgs(0, "stats takes no arguments"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), cfg, func(client *api.Client) error {
				stats, err := client.Stats(cmd.Context())
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(stats)
				}

				if err := writePlain("objects: %d\nstored: %s\n", stats.ObjectCount, formatSize(stats.TotalSizeBytes)); err != nil {
					return err
				}
				if stats.MaxTotalBytes != nil {
					return writePlain("limit: %s\n", formatSize(*stats.MaxTotalBytes))
				}
				return writePlain("limit: none\n")
			})
		},
	}
}
