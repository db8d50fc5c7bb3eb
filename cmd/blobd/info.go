package main

import (
	"github.com/spf13/cobra"

	"blobd/internal/api"
	"blobd/internal/config"
)

func newInfoCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var key string

	cmd := &cobra.Command{
		Use:   "info <id>",
		Short: "Show object metadata",
		Args:  requireBlobID,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), cfg, func(client *api.Client) error {
				info, err := client.BlobInfo(cmd.Context(), args[0], key)
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(info)
				}
				return writeBlobInfo(info)
			})
		},
	}

	cmd.Flags().StringVar(&key, "key", "", "decryption key for encrypted objects")
	return cmd
}
