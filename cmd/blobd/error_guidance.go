package main

import (
	"context"
	"errors"
	"net"

	"blobd/internal/api"
)

func formatCLIError(err error) []string {
	if err == nil {
		return nil
	}

	lines := []string{err.Error()}

	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case "unauthorized", "forbidden":
			lines = append(lines, "hint: verify BLOBD_API_TOKEN and BLOBD_ADMIN_TOKEN configuration.")
			lines = append(lines, "hint: encrypted objects also need --key with the key returned at upload.")
		case "resource_exhausted":
			lines = append(lines, "hint: rate limit reached; retry after the window resets.")
		case "capacity_exceeded":
			lines = append(lines, "hint: remove objects with blobd rm or raise storage.max_total_bytes (BLOBD_MAX_TOTAL_BYTES).")
		case "upstream_fetch_failed":
			lines = append(lines, "hint: the server could not fetch the source URL; check it is reachable from the server.")
		}
		if apiErr.Code == "" {
			lines = append(lines, "hint: verify BLOBD_API_URL points to a blobd server.")
		}
		if apiErr.Status >= 500 && apiErr.Status != 502 {
			lines = append(lines, "hint: server returned an internal error; check server logs for details.")
		}
		return uniqueLines(lines)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		lines = append(lines, "hint: request timed out; check server health or increase BLOBD_HTTP_TIMEOUT.")
		return uniqueLines(lines)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		lines = append(lines,
			"hint: ensure a blobd server is running at BLOBD_API_URL.",
			"hint: start local server manually with: blobd srv",
			"hint: you can increase BLOBD_HTTP_TIMEOUT for slower environments.",
		)
		return uniqueLines(lines)
	}

	return uniqueLines(lines)
}

func uniqueLines(lines []string) []string {
	seen := make(map[string]struct{}, len(lines))
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if line == "" {
			continue
		}
		if _, ok := seen[line]; ok {
			continue
		}
		seen[line] = struct{}{}
		out = append(out, line)
	}
	return out
}
