package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"blobd/internal/models"
)

const blobColumns = "id, content_hash, stored_hash, size_bytes, plain_size_bytes, compression, key_digest, expires_at, last_accessed_at, created_at"

// CreateBlob inserts one blob record.
func (s *Store) CreateBlob(ctx context.Context, blob *models.Blob) error {
	if blob == nil {
		return fmt.Errorf("blob is required")
	}
	blob.ID = strings.TrimSpace(blob.ID)
	if blob.ID == "" {
		return fmt.Errorf("blob id is required")
	}
	if blob.SizeBytes < 0 {
		return fmt.Errorf("size_bytes must be >= 0")
	}
	if strings.TrimSpace(blob.Compression) == "" {
		blob.Compression = string(models.CompressionNone)
	}
	if blob.CreatedAt.IsZero() {
		blob.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO blobs (`+blobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		blob.ID,
		nullIfEmpty(strings.ToLower(strings.TrimSpace(blob.ContentHash))),
		nullIfEmpty(strings.ToLower(strings.TrimSpace(blob.StoredHash))),
		blob.SizeBytes,
		nullInt64(blob.PlainSizeBytes),
		blob.Compression,
		nullIfEmpty(blob.KeyDigest),
		nullMillis(blob.ExpiresAt),
		nullMillis(blob.LastAccessedAt),
		toMillis(blob.CreatedAt),
	)
	return err
}

// GetBlob returns one blob by id, or nil when absent.
func (s *Store) GetBlob(ctx context.Context, id string) (*models.Blob, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+blobColumns+` FROM blobs WHERE id = ?`, id)
	return scanBlob(row)
}

// ClaimDuplicate finds the most recently created unencrypted, unexpired
// blob whose plaintext hash matches and, in the same statement, records
// now as its last access so an inactivity sweep cannot reclaim it. A nil
// expiresAt only matches rows without an expiry; otherwise rows expiring
// before expiresAt are skipped.
func (s *Store) ClaimDuplicate(ctx context.Context, hash string, now time.Time, expiresAt *time.Time) (*models.Blob, error) {
	hash = strings.ToLower(strings.TrimSpace(hash))
	if hash == "" {
		return nil, nil
	}

	expiryFilter := "expires_at IS NULL"
	args := []any{toMillis(now), hash, toMillis(now)}
	if expiresAt != nil {
		expiryFilter = "(expires_at IS NULL OR expires_at >= ?)"
		args = append(args, toMillis(*expiresAt))
	}

	row := s.db.QueryRowContext(ctx, `
		UPDATE blobs SET last_accessed_at = ?
		WHERE id = (
			SELECT id FROM blobs
			WHERE content_hash = ?
			  AND key_digest IS NULL
			  AND (expires_at IS NULL OR expires_at > ?)
			  AND `+expiryFilter+`
			ORDER BY created_at DESC
			LIMIT 1
		)
		RETURNING `+blobColumns, args...)
	return scanBlob(row)
}

// TouchBlob records a successful read.
func (s *Store) TouchBlob(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, "UPDATE blobs SET last_accessed_at = ? WHERE id = ?", toMillis(at), id)
	return err
}

// DeleteBlob deletes one blob row and reports whether it existed.
func (s *Store) DeleteBlob(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM blobs WHERE id = ?", id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DeleteExpiredBlobs removes, in one statement, every row whose explicit
// expiry has passed and, when inactiveBefore is set, every row whose last
// access (or creation, if never read) is older than inactiveBefore. It
// returns the deleted ids so the caller can unlink their files.
func (s *Store) DeleteExpiredBlobs(ctx context.Context, now time.Time, inactiveBefore *time.Time) ([]string, error) {
	query := `DELETE FROM blobs WHERE (expires_at IS NOT NULL AND expires_at <= ?)`
	args := []any{toMillis(now)}
	if inactiveBefore != nil {
		query += ` OR COALESCE(last_accessed_at, created_at) < ?`
		args = append(args, toMillis(*inactiveBefore))
	}
	query += ` RETURNING id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListBlobIDs pages through blob ids in ascending order.
func (s *Store) ListBlobIDs(ctx context.Context, afterID string, limit int) ([]string, error) {
	query := "SELECT id FROM blobs WHERE id > ? ORDER BY id ASC"
	args := []any{afterID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListBlobsMissingContentHash pages through rows that still need a
// plaintext hash.
func (s *Store) ListBlobsMissingContentHash(ctx context.Context, afterID string, limit int) ([]models.Blob, error) {
	query := `SELECT ` + blobColumns + ` FROM blobs WHERE content_hash IS NULL AND id > ? ORDER BY id ASC`
	args := []any{afterID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	blobs := []models.Blob{}
	for rows.Next() {
		blob, err := scanBlob(rows)
		if err != nil {
			return nil, err
		}
		if blob != nil {
			blobs = append(blobs, *blob)
		}
	}
	return blobs, rows.Err()
}

// SetContentHash fills in a missing plaintext hash. Rows that already
// carry a hash are left untouched.
func (s *Store) SetContentHash(ctx context.Context, id, hash string) error {
	hash = strings.ToLower(strings.TrimSpace(hash))
	if hash == "" {
		return fmt.Errorf("content hash is required")
	}
	_, err := s.db.ExecContext(ctx, "UPDATE blobs SET content_hash = ? WHERE id = ? AND content_hash IS NULL", hash, id)
	return err
}

// BlobStats returns the object count and total persisted bytes.
func (s *Store) BlobStats(ctx context.Context) (models.BlobStats, error) {
	var stats models.BlobStats
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*), COALESCE(SUM(size_bytes), 0) FROM blobs").Scan(&stats.ObjectCount, &stats.TotalSizeBytes)
	return stats, err
}

func scanBlob(scanner interface {
	Scan(dest ...any) error
}) (*models.Blob, error) {
	blob := models.Blob{}

	var contentHash, storedHash, keyDigest sql.NullString
	var plainSize, expiresAt, lastAccessedAt sql.NullInt64
	var createdAt int64

	err := scanner.Scan(
		&blob.ID,
		&contentHash,
		&storedHash,
		&blob.SizeBytes,
		&plainSize,
		&blob.Compression,
		&keyDigest,
		&expiresAt,
		&lastAccessedAt,
		&createdAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	blob.ContentHash = contentHash.String
	blob.StoredHash = storedHash.String
	blob.KeyDigest = keyDigest.String
	blob.CreatedAt = fromMillis(createdAt)
	if plainSize.Valid {
		size := plainSize.Int64
		blob.PlainSizeBytes = &size
	}
	if expiresAt.Valid {
		t := fromMillis(expiresAt.Int64)
		blob.ExpiresAt = &t
	}
	if lastAccessedAt.Valid {
		t := fromMillis(lastAccessedAt.Int64)
		blob.LastAccessedAt = &t
	}

	return &blob, nil
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullInt64(value *int64) any {
	if value == nil {
		return nil
	}
	return *value
}

func nullMillis(value *time.Time) any {
	if value == nil || value.IsZero() {
		return nil
	}
	return toMillis(*value)
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
