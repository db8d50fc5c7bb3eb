package main

import (
	"fmt"
	"strings"
	"time"
)

// resolveExpiry turns --expires-in / --expires-at into an absolute time.
// At most one may be set; neither means no explicit expiry.
func resolveExpiry(expiresIn time.Duration, expiresAt string, now time.Time) (*time.Time, error) {
	expiresAt = strings.TrimSpace(expiresAt)
	if expiresIn != 0 && expiresAt != "" {
		return nil, fmt.Errorf("use only one of --expires-in and --expires-at")
	}
	if expiresIn < 0 {
		return nil, fmt.Errorf("--expires-in must be positive")
	}
	if expiresIn > 0 {
		at := now.Add(expiresIn).UTC()
		return &at, nil
	}
	if expiresAt == "" {
		return nil, nil
	}

	at, err := time.Parse(time.RFC3339, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("invalid --expires-at %q (want RFC3339)", expiresAt)
	}
	at = at.UTC()
	return &at, nil
}
