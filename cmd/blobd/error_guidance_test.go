package main

import (
	"net"
	"testing"

	"blobd/internal/api"
)

func TestFormatCLIError_NetworkGuidance(t *testing.T) {
	err := &net.DNSError{Err: "dial tcp: connection refused", Name: "127.0.0.1", IsTemporary: true}
	lines := formatCLIError(err)
	if !containsLine(lines, "hint: ensure a blobd server is running at BLOBD_API_URL.") {
		t.Fatalf("expected connectivity guidance, got %v", lines)
	}
	if !containsLine(lines, "hint: start local server manually with: blobd srv") {
		t.Fatalf("expected manual-start guidance, got %v", lines)
	}
}

func TestFormatCLIError_APIUnknownServiceGuidance(t *testing.T) {
	err := &api.APIError{Status: 404, Message: "api error: 404 Not Found"}
	lines := formatCLIError(err)
	if !containsLine(lines, "hint: verify BLOBD_API_URL points to a blobd server.") {
		t.Fatalf("expected api-url guidance, got %v", lines)
	}
}

func TestFormatCLIError_APIAuthGuidance(t *testing.T) {
	err := &api.APIError{Status: 401, Code: "unauthorized", Message: "decryption key required"}
	lines := formatCLIError(err)
	if !containsLine(lines, "hint: verify BLOBD_API_TOKEN and BLOBD_ADMIN_TOKEN configuration.") {
		t.Fatalf("expected auth guidance, got %v", lines)
	}
	if !containsLine(lines, "hint: encrypted objects also need --key with the key returned at upload.") {
		t.Fatalf("expected key guidance, got %v", lines)
	}
}

func TestFormatCLIError_CapacityGuidance(t *testing.T) {
	err := &api.APIError{Status: 413, Code: "capacity_exceeded", Message: "storage capacity exceeded"}
	lines := formatCLIError(err)
	if !containsLine(lines, "hint: remove objects with blobd rm or raise storage.max_total_bytes (BLOBD_MAX_TOTAL_BYTES).") {
		t.Fatalf("expected capacity guidance, got %v", lines)
	}
}

func TestFormatCLIError_UpstreamIsNotInternal(t *testing.T) {
	err := &api.APIError{Status: 502, Code: "upstream_fetch_failed", Message: "upstream fetch failed"}
	lines := formatCLIError(err)
	if containsLine(lines, "hint: server returned an internal error; check server logs for details.") {
		t.Fatalf("did not expect internal-error guidance for 502, got %v", lines)
	}
	if len(lines) != 2 {
		t.Fatalf("expected message plus one hint, got %v", lines)
	}
}

func TestFormatCLIError_APIInternalGuidance(t *testing.T) {
	err := &api.APIError{Status: 500, Code: "internal", Message: "internal error"}
	lines := formatCLIError(err)
	if !containsLine(lines, "hint: server returned an internal error; check server logs for details.") {
		t.Fatalf("expected internal-error guidance, got %v", lines)
	}
}

func containsLine(lines []string, expected string) bool {
	for _, line := range lines {
		if line == expected {
			return true
		}
	}
	return false
}
