package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"blobd/internal/blobstore"
	"blobd/internal/models"
	"blobd/internal/transform"
)

// BlobContent is an open plaintext stream plus the metadata needed to
// serve it. Reader must be closed.
type BlobContent struct {
	Reader      io.ReadCloser
	Record      models.Blob
	CacheMaxAge time.Duration
}

// Open resolves id and returns a plaintext stream. The stream is pulled
// by the caller, so a slow consumer only slows the file reads.
func (s *BlobService) Open(ctx context.Context, id, rawKey string) (*BlobContent, error) {
	record, key, now, err := s.resolve(ctx, id, rawKey)
	if err != nil {
		return nil, err
	}

	f, err := s.blobs.Open(ctx, record.ID)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			s.removeRecord(ctx, record.ID, "missing_file")
			return nil, notFound(fmt.Errorf("blob not found"))
		}
		return nil, contentStoreFailure(fmt.Errorf("open object: %w", err))
	}

	dec, err := transform.NewDecoder(ctxReader{ctx: ctx, r: f}, models.CompressionAlgorithm(record.Compression), key)
	if err != nil {
		f.Close()
		return nil, internalError(fmt.Errorf("open transform: %w", err))
	}

	if err := s.index.TouchBlob(ctx, record.ID, now); err != nil {
		s.logger.Warn("record blob access", "id", record.ID, "error", err)
	}

	return &BlobContent{
		Reader:      &decodedReader{ReadCloser: dec, file: f},
		Record:      *record,
		CacheMaxAge: s.cacheLifetime(record, now),
	}, nil
}

// Inspect runs the same checks as Open without reading content or
// recording an access.
func (s *BlobService) Inspect(ctx context.Context, id, rawKey string) (models.Blob, error) {
	record, _, _, err := s.resolve(ctx, id, rawKey)
	if err != nil {
		return models.Blob{}, err
	}
	return *record, nil
}

// Delete removes the row and then the file. A file that is already gone
// is not an error.
func (s *BlobService) Delete(ctx context.Context, id string) (string, error) {
	if err := s.ready(); err != nil {
		return "", err
	}
	record, err := s.index.GetBlob(ctx, id)
	if err != nil {
		return "", storeFailure(err)
	}
	if record == nil {
		return "", notFound(fmt.Errorf("blob not found"))
	}
	if _, err := s.index.DeleteBlob(ctx, id); err != nil {
		return "", storeFailure(err)
	}
	if err := s.blobs.Delete(ctx, id); err != nil {
		return "", contentStoreFailure(fmt.Errorf("delete object: %w", err))
	}
	s.logger.Debug("deleted blob", "id", id)
	return id, nil
}

// resolve looks up id and applies, in order: existence, key check,
// file presence, and lazy expiry.
func (s *BlobService) resolve(ctx context.Context, id, rawKey string) (*models.Blob, []byte, time.Time, error) {
	if err := s.ready(); err != nil {
		return nil, nil, time.Time{}, err
	}
	record, err := s.index.GetBlob(ctx, id)
	if err != nil {
		return nil, nil, time.Time{}, storeFailure(err)
	}
	if record == nil {
		return nil, nil, time.Time{}, notFound(fmt.Errorf("blob not found"))
	}

	var key []byte
	if record.Encrypted() {
		parsed, err := transform.ParseKey(rawKey)
		if err != nil || !transform.KeyMatchesDigest(parsed, record.KeyDigest) {
			return nil, nil, time.Time{}, unauthorized(fmt.Errorf("a valid decryption key is required"))
		}
		key = parsed
	}

	exists, err := s.blobs.Exists(ctx, record.ID)
	if err != nil {
		return nil, nil, time.Time{}, contentStoreFailure(err)
	}
	if !exists {
		s.removeRecord(ctx, record.ID, "missing_file")
		return nil, nil, time.Time{}, notFound(fmt.Errorf("blob not found"))
	}

	now := s.now()
	if record.ExpiredAt(now) {
		s.reclaimExpired(ctx, record.ID)
		return nil, nil, time.Time{}, notFound(fmt.Errorf("blob not found"))
	}

	return record, key, now, nil
}

func (s *BlobService) reclaimExpired(ctx context.Context, id string) {
	if err := s.blobs.Delete(ctx, id); err != nil {
		s.logger.Warn("delete expired object", "id", id, "error", err)
	}
	if _, err := s.index.DeleteBlob(ctx, id); err != nil {
		s.logger.Warn("delete expired record", "id", id, "error", err)
		return
	}
	s.metrics.RecordReclaimed("lazy", 1)
	s.logger.Info("reclaimed expired blob", "id", id)
}

func (s *BlobService) cacheLifetime(record *models.Blob, now time.Time) time.Duration {
	if record.ExpiresAt == nil {
		return s.cacheMaxAge
	}
	remaining := record.ExpiresAt.Sub(now).Truncate(time.Second)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// decodedReader closes the transform chain and then the file under it.
type decodedReader struct {
	io.ReadCloser
	file io.Closer
}

func (d *decodedReader) Close() error {
	err := d.ReadCloser.Close()
	if ferr := d.file.Close(); err == nil {
		err = ferr
	}
	return err
}
