package main

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"blobd/internal/api"
	"blobd/internal/config"
)

func newGetCmd(cfg *config.Config) *cobra.Command {
	var (
		key      string
		file     string
		noVerify bool
	)

	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Download an object to stdout or a file",
		Args:  requireBlobID,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), cfg, func(client *api.Client) error {
				blob, err := client.GetBlob(cmd.Context(), args[0], key)
				if err != nil {
					return err
				}
				defer blob.Close()

				if file == "" || file == "-" {
					return copyVerified(stdout, blob, !noVerify)
				}
				return writeFileVerified(file, blob, !noVerify)
			})
		},
	}

	cmd.Flags().StringVar(&key, "key", "", "decryption key for encrypted objects")
	cmd.Flags().StringVarP(&file, "file", "f", "", "write to this path instead of stdout")
	cmd.Flags().BoolVar(&noVerify, "no-verify", false, "skip checking the content hash after download")
	return cmd
}

// copyVerified streams blob into w and, when verify is set and the server
// sent a hash, checks the plaintext hash once the copy is done.
func copyVerified(w io.Writer, blob *api.BlobReader, verify bool) error {
	hasher := sha256.New()
	if _, err := io.Copy(io.MultiWriter(w, hasher), blob); err != nil {
		return err
	}
	if !verify || blob.ContentHash == "" {
		return nil
	}
	got := hex.EncodeToString(hasher.Sum(nil))
	if !strings.EqualFold(got, blob.ContentHash) {
		return fmt.Errorf("content hash mismatch: expected %s, got %s", blob.ContentHash, got)
	}
	return nil
}

// writeFileVerified writes through a temp file in the target directory so a
// failed or mismatched download never leaves a partial file at path.
func writeFileVerified(path string, blob *api.BlobReader, verify bool) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".blobd-get-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := copyVerified(tmp, blob, verify); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
