package api

// ErrorResponse is a generic JSON error wrapper.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	ErrorCode int    `json:"error_code,omitempty"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status string `json:"status" yaml:"status"`
}

// BlobCreateRequest is the JSON form of an upload. Exactly one of Content
// (base64) and SourceURL must be set. ExpiresAt is epoch milliseconds.
type BlobCreateRequest struct {
	Content   *string `json:"content,omitempty"`
	SourceURL string  `json:"source_url,omitempty"`
	ExpiresAt *int64  `json:"expires_at,omitempty"`
	Encrypt   bool    `json:"encrypt,omitempty"`
}

// BlobCreateResponse is returned after an upload. EncryptionKey is only
// ever returned here; the server does not keep it.
type BlobCreateResponse struct {
	ID            string `json:"id" yaml:"id"`
	ContentHash   string `json:"content_hash" yaml:"content_hash"`
	EncryptionKey string `json:"encryption_key,omitempty" yaml:"encryption_key,omitempty"`
	Deduplicated  bool   `json:"deduplicated" yaml:"deduplicated"`
}

// BlobInfoResponse describes one stored object. Timestamps are epoch ms.
type BlobInfoResponse struct {
	ID             string `json:"id" yaml:"id"`
	ContentHash    string `json:"content_hash,omitempty" yaml:"content_hash,omitempty"`
	SizeBytes      int64  `json:"size_bytes" yaml:"size_bytes"`
	PlainSizeBytes *int64 `json:"plain_size_bytes,omitempty" yaml:"plain_size_bytes,omitempty"`
	Compression    string `json:"compression" yaml:"compression"`
	Encrypted      bool   `json:"encrypted" yaml:"encrypted"`
	ExpiresAt      *int64 `json:"expires_at,omitempty" yaml:"expires_at,omitempty"`
	LastAccessedAt *int64 `json:"last_accessed_at,omitempty" yaml:"last_accessed_at,omitempty"`
	CreatedAt      int64  `json:"created_at" yaml:"created_at"`
}

// BlobDeleteResponse confirms a delete.
type BlobDeleteResponse struct {
	ID string `json:"id" yaml:"id"`
}

// StatsResponse reports aggregate storage usage.
type StatsResponse struct {
	ObjectCount    int64  `json:"object_count" yaml:"object_count"`
	TotalSizeBytes int64  `json:"total_size_bytes" yaml:"total_size_bytes"`
	MaxTotalBytes  *int64 `json:"max_total_bytes,omitempty" yaml:"max_total_bytes,omitempty"`
}

// SweepResponse reports one synchronous retention sweep.
type SweepResponse struct {
	Expired         int      `json:"expired" yaml:"expired"`
	ExpiredIDs      []string `json:"expired_ids" yaml:"expired_ids"`
	Orphaned        int      `json:"orphaned" yaml:"orphaned"`
	Backfilled      int      `json:"backfilled" yaml:"backfilled"`
	BackfillSkipped int      `json:"backfill_skipped" yaml:"backfill_skipped"`
	Failed          int      `json:"failed" yaml:"failed"`
}
