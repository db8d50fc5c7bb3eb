package server

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"
)

var (
	blobIDRegex      = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)
	blobIDStripRegex = regexp.MustCompile(`[^0-9a-fA-F-]`)
)

// sanitizeBlobID drops every character that cannot appear in an
// identifier and lowercases the rest.
func sanitizeBlobID(raw string) string {
	return strings.ToLower(blobIDStripRegex.ReplaceAllString(raw, ""))
}

func validateBlobID(id string) bool {
	return blobIDRegex.MatchString(id)
}

func validateSourceURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return nil, badRequestCode(fmt.Errorf("source_url must be an absolute http or https URL"), ErrCodeInvalidSourceURL)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return nil, badRequestCode(fmt.Errorf("source_url must be an absolute http or https URL"), ErrCodeInvalidSourceURL)
	}
	return u, nil
}

func validateExpiresAt(expiresAt *time.Time, now time.Time) error {
	if expiresAt == nil {
		return nil
	}
	if !expiresAt.After(now) {
		return badRequestCode(fmt.Errorf("expires_at must be in the future"), ErrCodeInvalidExpiry)
	}
	return nil
}
