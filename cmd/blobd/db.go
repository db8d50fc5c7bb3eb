package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"blobd/internal/config"
	"blobd/internal/store"
)

func newDBCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Inspect the local index database",
	}

	cmd.AddCommand(newDBInfoCmd(cfg, jsonOutput))
	return cmd
}

func newDBInfoCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show index counts and schema version",
		Args:  requireExactlyArgs(0, "db info takes no arguments"),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.DBPath == "" {
				return fmt.Errorf("db path is required")
			}
			st, err := store.Open(cfg.DBPath)
			if err != nil {
				return err
			}
			defer st.Close()

			info, err := st.StoreInfo(cmd.Context(), time.Now().UTC())
			if err != nil {
				return err
			}
			if *jsonOutput {
				return writeJSON(info)
			}

			return writePlain("db: %s\nschema_version: %d\nobjects: %d\nstored: %s\nplaintext: %s\nencrypted: %d\nexpiring: %d\nexpired: %d\nmissing_hash: %d\n",
				cfg.DBPath,
				info.SchemaVersion,
				info.ObjectCount,
				formatSize(info.TotalSizeBytes),
				formatSize(info.PlainSizeBytes),
				info.EncryptedCount,
				info.ExpiringCount,
				info.ExpiredCount,
				info.MissingHashCount,
			)
		},
	}
}
