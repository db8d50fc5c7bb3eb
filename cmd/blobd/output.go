package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"blobd/internal/api"
	"blobd/internal/format"
)

var (
	outputFormatter format.Formatter = format.JSONFormatter{}
	stdout          io.Writer        = os.Stdout
)

func writeJSON(payload any) error {
	return outputFormatter.Write(stdout, payload)
}

func writePlain(format string, args ...any) error {
	_, err := fmt.Fprintf(stdout, format, args...)
	return err
}

func writeBlobInfo(info api.BlobInfoResponse) error {
	lines := []string{
		fmt.Sprintf("id: %s", info.ID),
		fmt.Sprintf("size: %s", formatSize(info.SizeBytes)),
		fmt.Sprintf("compression: %s", info.Compression),
		fmt.Sprintf("encrypted: %t", info.Encrypted),
		fmt.Sprintf("created_at: %s", formatMillis(info.CreatedAt)),
	}
	if info.ContentHash != "" {
		lines = append(lines, fmt.Sprintf("content_hash: %s", info.ContentHash))
	}
	if info.PlainSizeBytes != nil {
		lines = append(lines, fmt.Sprintf("plain_size: %s", formatSize(*info.PlainSizeBytes)))
	}
	if info.ExpiresAt != nil {
		lines = append(lines, fmt.Sprintf("expires_at: %s", formatMillis(*info.ExpiresAt)))
	}
	if info.LastAccessedAt != nil {
		lines = append(lines, fmt.Sprintf("last_accessed_at: %s", formatMillis(*info.LastAccessedAt)))
	}
	return writePlain("%s\n", strings.Join(lines, "\n"))
}

func formatSize(n int64) string {
	if n < 0 {
		n = 0
	}
	return fmt.Sprintf("%s (%d bytes)", humanize.IBytes(uint64(n)), n)
}

func formatMillis(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}
