package server

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"blobd/internal/blobstore"
	"blobd/internal/models"
	"blobd/internal/transform"
)

// IngestInput describes one upload. Exactly one of Content and SourceURL
// must be set.
type IngestInput struct {
	Content   io.Reader
	SourceURL string
	ExpiresAt *time.Time
	Encrypt   bool
}

// IngestResult is returned for every accepted upload. EncryptionKey is
// set only for encrypted uploads and is never stored.
type IngestResult struct {
	ID            string
	ContentHash   string
	EncryptionKey string
	Deduplicated  bool
}

// spooled is plaintext staged on disk together with its digest.
type spooled struct {
	file *blobstore.StagedBlob
	hash string
	size int64
}

// sourceReadError marks a failure reading the client's content, as
// opposed to a failure writing the staged copy.
type sourceReadError struct {
	err error
}

func (e sourceReadError) Error() string { return e.err.Error() }
func (e sourceReadError) Unwrap() error { return e.err }

type sourceReader struct {
	r io.Reader
}

func (s sourceReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		return n, sourceReadError{err: err}
	}
	return n, err
}

// Ingest validates, spools, deduplicates, transforms and persists one
// upload. Unencrypted uploads of identical plaintext are collapsed: the
// most recent live record is returned and nothing new is written.
func (s *BlobService) Ingest(ctx context.Context, in IngestInput) (IngestResult, error) {
	if err := s.ready(); err != nil {
		return IngestResult{}, err
	}
	now := s.now()
	if err := validateIngestInput(in, now); err != nil {
		return IngestResult{}, err
	}

	src := in.Content
	fromURL := in.Content == nil
	if fromURL {
		body, err := s.fetcher.Fetch(ctx, strings.TrimSpace(in.SourceURL))
		if err != nil {
			return IngestResult{}, err
		}
		defer body.Close()
		src = body
	}

	plain, err := s.spool(ctx, src, fromURL)
	if err != nil {
		return IngestResult{}, err
	}
	defer func() {
		if err := plain.file.Discard(); err != nil {
			s.logger.Warn("discard staged plaintext", "error", err)
		}
	}()

	if in.Encrypt {
		// The key is generated here and never stored, so an encrypted
		// upload can never be answered with an existing object.
		return s.persist(ctx, plain, in, now)
	}

	// Concurrent identical uploads share this work, so one client
	// disconnecting must not fail the others.
	work := context.WithoutCancel(ctx)
	leader := false
	value, err, _ := s.ingests.Do(ingestKey(plain.hash, in.ExpiresAt), func() (any, error) {
		leader = true
		if existing, err := s.findDuplicate(work, plain.hash, now, in.ExpiresAt); err != nil {
			return IngestResult{}, err
		} else if existing != nil {
			return IngestResult{ID: existing.ID, ContentHash: plain.hash, Deduplicated: true}, nil
		}
		return s.persist(work, plain, in, now)
	})
	if err != nil {
		return IngestResult{}, err
	}
	result := value.(IngestResult)
	if !leader {
		// Shared the object written by a concurrent identical upload.
		result.Deduplicated = true
	}
	if result.Deduplicated {
		s.metrics.RecordDedupHit()
	}
	return result, nil
}

// ingestKey groups concurrent uploads that may share one result: the
// same plaintext with the same requested expiry.
func ingestKey(hash string, expiresAt *time.Time) string {
	if expiresAt == nil {
		return hash
	}
	return hash + "@" + strconv.FormatInt(expiresAt.UnixMilli(), 10)
}

func validateIngestInput(in IngestInput, now time.Time) error {
	hasURL := strings.TrimSpace(in.SourceURL) != ""
	switch {
	case in.Content == nil && !hasURL:
		return badRequestCode(fmt.Errorf("content or source_url is required"), ErrCodeMissingRequired)
	case in.Content != nil && hasURL:
		return badRequestCode(fmt.Errorf("content and source_url are mutually exclusive"), ErrCodeConflictingSource)
	}
	if hasURL {
		if _, err := validateSourceURL(in.SourceURL); err != nil {
			return err
		}
	}
	return validateExpiresAt(in.ExpiresAt, now)
}

// spool copies plaintext into a staged file while hashing it.
func (s *BlobService) spool(ctx context.Context, src io.Reader, fromURL bool) (*spooled, error) {
	staged, err := s.blobs.Stage(ctx)
	if err != nil {
		return nil, contentStoreFailure(fmt.Errorf("stage plaintext: %w", err))
	}

	var reader io.Reader = ctxReader{ctx: ctx, r: sourceReader{r: src}}
	var limited *io.LimitedReader
	if s.maxUploadBytes > 0 {
		limited = &io.LimitedReader{R: reader, N: s.maxUploadBytes + 1}
		reader = limited
	}

	hasher := sha256.New()
	n, err := io.Copy(io.MultiWriter(staged, hasher), reader)
	if err != nil {
		_ = staged.Discard()
		var readErr sourceReadError
		switch {
		case errors.As(err, &readErr) && fromURL:
			return nil, upstreamFetchFailed(fmt.Errorf("read source body: %w", readErr.err))
		case errors.As(err, &readErr):
			return nil, classifyContentReadError(readErr.err)
		case ctx.Err() != nil:
			return nil, internalError(fmt.Errorf("ingest canceled: %w", ctx.Err()))
		default:
			return nil, contentStoreFailure(fmt.Errorf("write staged plaintext: %w", err))
		}
	}
	if limited != nil && n > s.maxUploadBytes {
		_ = staged.Discard()
		return nil, capacityExceeded(fmt.Errorf("upload exceeds %d bytes", s.maxUploadBytes))
	}
	if err := staged.Close(); err != nil {
		_ = staged.Discard()
		return nil, contentStoreFailure(fmt.Errorf("close staged plaintext: %w", err))
	}

	return &spooled{file: staged, hash: hex.EncodeToString(hasher.Sum(nil)), size: n}, nil
}

// findDuplicate returns the authoritative live record for hash, dropping
// a matching row whose file has gone missing. The match counts as an
// access, and it never expires before the requested expiry.
func (s *BlobService) findDuplicate(ctx context.Context, hash string, now time.Time, expiresAt *time.Time) (*models.Blob, error) {
	existing, err := s.index.ClaimDuplicate(ctx, hash, now, expiresAt)
	if err != nil {
		return nil, storeFailure(err)
	}
	if existing == nil {
		return nil, nil
	}
	exists, err := s.blobs.Exists(ctx, existing.ID)
	if err != nil {
		return nil, contentStoreFailure(err)
	}
	if !exists {
		s.removeRecord(ctx, existing.ID, "dedup_missing_file")
		return nil, nil
	}
	return existing, nil
}

// persist transforms staged plaintext into its stored form, enforces the
// storage ceiling, moves the file into place and indexes it. The file is
// written before the row; if the insert fails the file stays behind.
func (s *BlobService) persist(ctx context.Context, plain *spooled, in IngestInput, now time.Time) (IngestResult, error) {
	var key []byte
	if in.Encrypt {
		generated, err := transform.GenerateKey()
		if err != nil {
			return IngestResult{}, internalError(err)
		}
		key = generated
	}

	src, err := plain.file.Reader()
	if err != nil {
		return IngestResult{}, contentStoreFailure(fmt.Errorf("reopen staged plaintext: %w", err))
	}
	defer src.Close()

	out, err := s.blobs.Stage(ctx)
	if err != nil {
		return IngestResult{}, contentStoreFailure(fmt.Errorf("stage object: %w", err))
	}
	defer func() {
		if err := out.Discard(); err != nil {
			s.logger.Warn("discard staged object", "error", err)
		}
	}()

	storedHasher := sha256.New()
	enc, err := transform.NewEncoder(io.MultiWriter(out, storedHasher), transform.Options{
		Compression: s.compression,
		Level:       s.compressionLevel,
		Key:         key,
	})
	if err != nil {
		return IngestResult{}, internalError(fmt.Errorf("build transform: %w", err))
	}
	if _, err := io.Copy(enc, ctxReader{ctx: ctx, r: src}); err != nil {
		_ = enc.Close()
		return IngestResult{}, internalError(fmt.Errorf("transform content: %w", err))
	}
	if err := enc.Close(); err != nil {
		return IngestResult{}, internalError(fmt.Errorf("finish transform: %w", err))
	}
	size := out.Size()

	if s.maxTotalBytes > 0 {
		// Usage is read here and grown by the insert below.
		s.capacityMu.Lock()
		defer s.capacityMu.Unlock()
	}
	if err := s.checkCapacity(ctx, size); err != nil {
		return IngestResult{}, err
	}

	id := uuid.NewString()
	if err := out.Commit(id); err != nil {
		return IngestResult{}, contentStoreFailure(fmt.Errorf("commit object: %w", err))
	}

	plainSize := plain.size
	record := &models.Blob{
		ID:             id,
		ContentHash:    plain.hash,
		StoredHash:     hex.EncodeToString(storedHasher.Sum(nil)),
		SizeBytes:      size,
		PlainSizeBytes: &plainSize,
		Compression:    string(s.compression),
		ExpiresAt:      in.ExpiresAt,
		CreatedAt:      now,
	}
	if len(key) > 0 {
		record.KeyDigest = transform.KeyDigest(key)
	}
	if err := s.index.CreateBlob(ctx, record); err != nil {
		s.logger.Error("index insert failed after object write", "id", id, "error", err)
		return IngestResult{}, storeFailure(err)
	}

	s.metrics.RecordIngest(plain.size)
	s.logger.Debug("stored blob", "id", id, "size_bytes", size, "plain_size_bytes", plain.size, "compression", record.Compression, "encrypted", record.Encrypted())

	result := IngestResult{ID: id, ContentHash: plain.hash}
	if len(key) > 0 {
		result.EncryptionKey = transform.EncodeKey(key)
	}
	return result, nil
}

func (s *BlobService) checkCapacity(ctx context.Context, size int64) error {
	if s.maxTotalBytes <= 0 {
		return nil
	}
	stats, err := s.index.BlobStats(ctx)
	if err != nil {
		return storeFailure(err)
	}
	if stats.TotalSizeBytes+size > s.maxTotalBytes {
		return capacityExceeded(fmt.Errorf("storage capacity exceeded: %d of %d bytes used", stats.TotalSizeBytes, s.maxTotalBytes))
	}
	return nil
}

func classifyContentReadError(err error) error {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return capacityExceeded(fmt.Errorf("upload exceeds %d bytes", maxBytesErr.Limit))
	}
	return badRequestCode(fmt.Errorf("read content: %w", err), ErrCodeInvalidContent)
}
