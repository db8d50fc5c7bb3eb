package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"blobd/internal/api"
	"blobd/internal/config"
)

func newPutCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var (
		sourceURL string
		expiresIn time.Duration
		expiresAt string
		encrypt   bool
	)

	cmd := &cobra.Command{
		Use:   "put [file|-]",
		Short: "Upload a file, stdin, or a remote URL",
		Args:  requireAtMostArgs(1, "put takes at most one file argument"),
		RunE: func(cmd *cobra.Command, args []string) error {
			expiry, err := resolveExpiry(expiresIn, expiresAt, time.Now())
			if err != nil {
				return err
			}

			var body io.Reader
			switch {
			case sourceURL != "" && len(args) > 0:
				return fmt.Errorf("use either a file argument or --url, not both")
			case sourceURL != "":
			case len(args) == 0 || args[0] == "-":
				body = cmd.InOrStdin()
			default:
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				body = f
			}

			return withClient(cmd.Context(), cfg, func(client *api.Client) error {
				resp, err := client.PutBlob(cmd.Context(), body, api.PutOptions{
					SourceURL: sourceURL,
					ExpiresAt: expiry,
					Encrypt:   encrypt,
				})
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(resp)
				}
				return writePutResult(resp)
			})
		},
	}

	cmd.Flags().StringVar(&sourceURL, "url", "", "fetch content from this http(s) URL on the server")
	cmd.Flags().DurationVar(&expiresIn, "expires-in", 0, "expire the object after this duration (e.g. 24h)")
	cmd.Flags().StringVar(&expiresAt, "expires-at", "", "expire the object at this RFC3339 time")
	cmd.Flags().BoolVar(&encrypt, "encrypt", false, "encrypt at rest with a fresh per-object key")
	return cmd
}

func writePutResult(resp api.BlobCreateResponse) error {
	if err := writePlain("%s\n", resp.ID); err != nil {
		return err
	}
	if resp.EncryptionKey != "" {
		if err := writePlain("encryption_key: %s\n", resp.EncryptionKey); err != nil {
			return err
		}
	}
	if resp.Deduplicated {
		return writePlain("deduplicated: matched existing content %s\n", resp.ContentHash)
	}
	return nil
}
