package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"blobd/internal/config"
	"blobd/internal/format"
)

func newRootCmd(cfg *config.Config) *cobra.Command {
	var (
		jsonOutput bool
		outputName string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:           "blobd",
		Short:         "blobd is a single-tenant blob storage service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			warning, err := configureLoggerForCLI(logLevel, cfg.LogLevel)
			if err != nil {
				return err
			}
			if warning != "" {
				fmt.Fprintln(os.Stderr, warning)
			}

			if strings.TrimSpace(outputName) != "" {
				formatter, err := format.ForName(outputName)
				if err != nil {
					return err
				}
				outputFormatter = formatter
				jsonOutput = true
			}
			return nil
		},
	}

	cmd.Version = version
	cmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output JSON")
	cmd.PersistentFlags().StringVar(&outputName, "output", "", "structured output format (json|yaml)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug|info|warn|error)")

	cmd.AddCommand(
		newSrvCmd(cfg),
		newMigrateCmd(cfg, &jsonOutput),
		newDBCmd(cfg, &jsonOutput),
		newConfigCmd(cfg, &jsonOutput),
		newPutCmd(cfg, &jsonOutput),
		newGetCmd(cfg),
		newRmCmd(cfg, &jsonOutput),
		newInfoCmd(cfg, &jsonOutput),
		newStatsCmd(cfg, &jsonOutput),
		newAdminCmd(cfg, &jsonOutput),
	)

	return cmd
}
