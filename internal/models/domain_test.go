package models

import (
	"testing"
	"time"
)

func TestParseCompressionAlgorithm(t *testing.T) {
	got, err := ParseCompressionAlgorithm(" GZIP ")
	if err != nil {
		t.Fatalf("parse compression: %v", err)
	}
	if got != CompressionGzip {
		t.Fatalf("expected %q, got %q", CompressionGzip, got)
	}

	got, err = ParseCompressionAlgorithm("")
	if err != nil {
		t.Fatalf("parse empty compression: %v", err)
	}
	if got != CompressionNone {
		t.Fatalf("expected empty value to mean %q, got %q", CompressionNone, got)
	}

	if _, err := ParseCompressionAlgorithm("zstd"); err == nil {
		t.Fatal("expected invalid compression error")
	}
}

func TestIsValidCompressionLevel(t *testing.T) {
	if !IsValidCompressionLevel(CompressionLevelDefault) {
		t.Fatal("expected default level to be valid")
	}
	if IsValidCompressionLevel(CompressionLevelMax + 1) {
		t.Fatalf("expected %d to be invalid", CompressionLevelMax+1)
	}
	if IsValidCompressionLevel(0) {
		t.Fatal("expected level 0 to be rejected")
	}
}

func TestBlobExpiredAt(t *testing.T) {
	now := time.Now().UTC()
	blob := &Blob{}
	if blob.ExpiredAt(now) {
		t.Fatal("blob without expiry should never be expired")
	}

	past := now.Add(-time.Second)
	blob.ExpiresAt = &past
	if !blob.ExpiredAt(now) {
		t.Fatal("expected blob to be expired")
	}

	future := now.Add(time.Second)
	blob.ExpiresAt = &future
	if blob.ExpiredAt(now) {
		t.Fatal("expected blob to be live")
	}
}
