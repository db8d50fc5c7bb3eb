package main

import (
	"errors"

	"github.com/spf13/cobra"
)

func requireAtMostArgs(max int, message string) cobra.PositionalArgs {
	return func(_ *cobra.Command, args []string) error {
		if len(args) > max {
			return errors.New(message)
		}
		return nil
	}
}

func requireExactlyArgs(count int, message string) cobra.PositionalArgs {
	return func(_ *cobra.Command, args []string) error {
		if len(args) != count {
			return errors.New(message)
		}
		return nil
	}
}

func requireBlobID(cmd *cobra.Command, args []string) error {
	return requireExactlyArgs(1, "blob id is required")(cmd, args)
}
