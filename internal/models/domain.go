package models

import (
	"fmt"
	"strings"
)

// CompressionAlgorithm names the transform applied to stored bytes.
type CompressionAlgorithm string

const (
	CompressionNone    CompressionAlgorithm = "none"
	CompressionDeflate CompressionAlgorithm = "deflate"
	CompressionGzip    CompressionAlgorithm = "gzip"
)

const (
	// CompressionLevelDefault mirrors flate.DefaultCompression.
	CompressionLevelDefault = -1
	CompressionLevelMin     = -2
	CompressionLevelMax     = 9
)

var validCompressionAlgorithms = map[CompressionAlgorithm]struct{}{
	CompressionNone:    {},
	CompressionDeflate: {},
	CompressionGzip:    {},
}

// ParseCompressionAlgorithm normalizes a configured algorithm name.
// An empty value means no compression.
func ParseCompressionAlgorithm(raw string) (CompressionAlgorithm, error) {
	value := CompressionAlgorithm(strings.ToLower(strings.TrimSpace(raw)))
	if value == "" {
		return CompressionNone, nil
	}
	if _, ok := validCompressionAlgorithms[value]; !ok {
		return "", fmt.Errorf("invalid compression algorithm: %s", value)
	}
	return value, nil
}

// IsValidCompressionLevel checks a deflate/gzip level. Zero is rejected:
// flate treats it as store-only, and an unset level must never silently
// disable compression.
func IsValidCompressionLevel(level int) bool {
	return level != 0 && level >= CompressionLevelMin && level <= CompressionLevelMax
}

// CompressionLevelRange describes the accepted levels for error messages.
func CompressionLevelRange() string {
	return fmt.Sprintf("between %d and %d, excluding 0", CompressionLevelMin, CompressionLevelMax)
}
