package store

import (
	"context"
	"time"
)

// StoreInfo summarizes the index for operators.
type StoreInfo struct {
	SchemaVersion    int   `json:"schema_version" yaml:"schema_version"`
	ObjectCount      int64 `json:"object_count" yaml:"object_count"`
	TotalSizeBytes   int64 `json:"total_size_bytes" yaml:"total_size_bytes"`
	PlainSizeBytes   int64 `json:"plain_size_bytes" yaml:"plain_size_bytes"`
	EncryptedCount   int64 `json:"encrypted_count" yaml:"encrypted_count"`
	ExpiringCount    int64 `json:"expiring_count" yaml:"expiring_count"`
	ExpiredCount     int64 `json:"expired_count" yaml:"expired_count"`
	MissingHashCount int64 `json:"missing_hash_count" yaml:"missing_hash_count"`
}

// StoreInfo reads aggregate counts in one pass. Expired rows are those a
// sweep at now would reclaim by explicit expiry.
func (s *Store) StoreInfo(ctx context.Context, now time.Time) (StoreInfo, error) {
	var info StoreInfo

	version, err := currentVersion(s.db)
	if err != nil {
		return info, err
	}
	info.SchemaVersion = version

	err = s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(size_bytes), 0),
			COALESCE(SUM(plain_size_bytes), 0),
			COALESCE(SUM(CASE WHEN key_digest IS NOT NULL THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN expires_at IS NOT NULL AND expires_at > ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN expires_at IS NOT NULL AND expires_at <= ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN content_hash IS NULL THEN 1 ELSE 0 END), 0)
		FROM blobs`, toMillis(now), toMillis(now)).Scan(
		&info.ObjectCount,
		&info.TotalSizeBytes,
		&info.PlainSizeBytes,
		&info.EncryptedCount,
		&info.ExpiringCount,
		&info.ExpiredCount,
		&info.MissingHashCount,
	)
	return info, err
}
