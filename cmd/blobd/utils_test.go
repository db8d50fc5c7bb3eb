package main

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"blobd/internal/api"
)

func TestResolveExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		expiresIn time.Duration
		expiresAt string
		want      *time.Time
		wantErr   bool
	}{
		{name: "none"},
		{name: "relative", expiresIn: 90 * time.Minute, want: ptrTime(now.Add(90 * time.Minute))},
		{name: "absolute", expiresAt: "2026-03-02T00:00:00+02:00", want: ptrTime(time.Date(2026, 3, 1, 22, 0, 0, 0, time.UTC))},
		{name: "both", expiresIn: time.Hour, expiresAt: "2026-03-02T00:00:00Z", wantErr: true},
		{name: "negative", expiresIn: -time.Second, wantErr: true},
		{name: "bad layout", expiresAt: "tomorrow", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveExpiry(tt.expiresIn, tt.expiresAt, now)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("resolve: %v", err)
			}
			if (got == nil) != (tt.want == nil) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
			if got != nil && !got.Equal(*tt.want) {
				t.Fatalf("expected %v, got %v", *tt.want, *got)
			}
		})
	}
}

func TestCopyVerified(t *testing.T) {
	const sum = "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824" // sha256("hello")

	var out strings.Builder
	blob := &api.BlobReader{ReadCloser: io.NopCloser(strings.NewReader("hello")), ContentHash: strings.ToUpper(sum)}
	if err := copyVerified(&out, blob, true); err != nil {
		t.Fatalf("copy: %v", err)
	}
	if out.String() != "hello" {
		t.Fatalf("unexpected output %q", out.String())
	}

	bad := &api.BlobReader{ReadCloser: io.NopCloser(strings.NewReader("hullo")), ContentHash: sum}
	if err := copyVerified(io.Discard, bad, true); err == nil || !strings.Contains(err.Error(), "mismatch") {
		t.Fatalf("expected mismatch, got %v", err)
	}

	skipped := &api.BlobReader{ReadCloser: io.NopCloser(strings.NewReader("hullo")), ContentHash: sum}
	if err := copyVerified(io.Discard, skipped, false); err != nil {
		t.Fatalf("expected verification to be skipped, got %v", err)
	}
}

func TestWriteFileVerifiedLeavesNothingOnMismatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.bin")

	blob := &api.BlobReader{ReadCloser: io.NopCloser(strings.NewReader("hullo")), ContentHash: strings.Repeat("0", 64)}
	if err := writeFileVerified(path, blob, true); err == nil {
		t.Fatal("expected mismatch error")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no files left behind, got %d", len(entries))
	}
}

func ptrTime(t time.Time) *time.Time {
	return &t
}
