package models

import "time"

// Blob is the index record for one stored object.
//
// ContentHash is computed over the plaintext as received, so it does not
// depend on the compression or encryption applied at ingest. It is empty
// only for legacy rows waiting on the hash backfill sweep.
type Blob struct {
	ID             string     `json:"id"`
	ContentHash    string     `json:"content_hash,omitempty"`
	StoredHash     string     `json:"stored_hash,omitempty"`
	SizeBytes      int64      `json:"size_bytes"`
	PlainSizeBytes *int64     `json:"plain_size_bytes,omitempty"`
	Compression    string     `json:"compression"`
	KeyDigest      string     `json:"-"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	LastAccessedAt *time.Time `json:"last_accessed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Encrypted reports whether the object was encrypted at ingest.
func (b *Blob) Encrypted() bool {
	return b != nil && b.KeyDigest != ""
}

// ExpiredAt reports whether the explicit expiry has passed at now.
func (b *Blob) ExpiredAt(now time.Time) bool {
	if b == nil || b.ExpiresAt == nil {
		return false
	}
	return !now.Before(*b.ExpiresAt)
}

// BlobStats aggregates the index.
type BlobStats struct {
	ObjectCount    int64 `json:"object_count"`
	TotalSizeBytes int64 `json:"total_size_bytes"`
}
