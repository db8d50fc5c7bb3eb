package server

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"blobd/internal/blobstore"
	"blobd/internal/models"
	"blobd/internal/transform"
)

const defaultSweepBatchSize = 500

// SweepPolicy configures the retention sweeper. A zero interval disables
// that sweep's ticker; SweepOnce still runs it.
type SweepPolicy struct {
	ExpiryInterval   time.Duration
	OrphanInterval   time.Duration
	BackfillInterval time.Duration
	// Inactivity removes objects not read for this long; zero disables.
	Inactivity time.Duration
	BatchSize  int

	LimiterCleanupInterval time.Duration
}

// SweepResult reports one synchronous pass.
type SweepResult struct {
	Expired         int
	ExpiredIDs      []string
	Orphaned        int
	Backfilled      int
	BackfillSkipped int
	Failed          int
}

// RetentionSweeper keeps the index and the content store consistent over
// time. It takes no locks against request handling; a read racing a sweep
// either finishes on its open descriptor or sees not found.
type RetentionSweeper struct {
	service *BlobService
	policy  SweepPolicy
	limiter *rateLimiter
	logger  *slog.Logger
}

// NewRetentionSweeper builds a sweeper over the service's stores.
func NewRetentionSweeper(service *BlobService, policy SweepPolicy) *RetentionSweeper {
	if policy.BatchSize <= 0 {
		policy.BatchSize = defaultSweepBatchSize
	}
	logger := slog.Default()
	if service != nil && service.logger != nil {
		logger = service.logger
	}
	return &RetentionSweeper{
		service: service,
		policy:  policy,
		logger:  logger.With("component", "sweeper"),
	}
}

// Run starts one ticker per sweep and blocks until ctx is done.
func (w *RetentionSweeper) Run(ctx context.Context) {
	var wg sync.WaitGroup
	w.every(ctx, &wg, w.policy.ExpiryInterval, func(ctx context.Context) {
		if _, _, err := w.SweepExpired(ctx); err != nil {
			w.logger.Error("expiry sweep failed", "error", err)
		}
	})
	w.every(ctx, &wg, w.policy.OrphanInterval, func(ctx context.Context) {
		if _, err := w.SweepOrphans(ctx); err != nil {
			w.logger.Error("orphan sweep failed", "error", err)
		}
	})
	w.every(ctx, &wg, w.policy.BackfillInterval, func(ctx context.Context) {
		if _, _, _, err := w.BackfillHashes(ctx); err != nil {
			w.logger.Error("hash backfill failed", "error", err)
		}
	})
	if w.limiter != nil {
		w.every(ctx, &wg, w.policy.LimiterCleanupInterval, func(ctx context.Context) {
			if removed := w.limiter.Cleanup(w.service.now()); removed > 0 {
				w.logger.Debug("rate limiter cleanup", "removed", removed)
			}
		})
	}
	wg.Wait()
}

func (w *RetentionSweeper) every(ctx context.Context, wg *sync.WaitGroup, interval time.Duration, fn func(context.Context)) {
	if interval <= 0 {
		return
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fn(ctx)
			}
		}
	}()
}

// SweepOnce runs the expiry, orphan and backfill sweeps in order.
func (w *RetentionSweeper) SweepOnce(ctx context.Context) (SweepResult, error) {
	var result SweepResult

	ids, failed, err := w.SweepExpired(ctx)
	if err != nil {
		return result, err
	}
	result.Expired = len(ids)
	result.ExpiredIDs = ids
	result.Failed += failed

	orphaned, err := w.SweepOrphans(ctx)
	if err != nil {
		return result, err
	}
	result.Orphaned = orphaned

	backfilled, skipped, failed, err := w.BackfillHashes(ctx)
	if err != nil {
		return result, err
	}
	result.Backfilled = backfilled
	result.BackfillSkipped = skipped
	result.Failed += failed

	if _, err := w.service.Stats(ctx); err != nil {
		w.logger.Warn("refresh storage metrics", "error", err)
	}
	return result, nil
}

// SweepExpired deletes every expired or inactive row in one statement and
// then unlinks their files. A crash between the two leaves files without
// rows; those are not reconciled.
func (w *RetentionSweeper) SweepExpired(ctx context.Context) ([]string, int, error) {
	svc := w.service
	if err := svc.ready(); err != nil {
		return nil, 0, err
	}
	now := svc.now()
	var inactiveBefore *time.Time
	if w.policy.Inactivity > 0 {
		cutoff := now.Add(-w.policy.Inactivity)
		inactiveBefore = &cutoff
	}

	ids, err := svc.index.DeleteExpiredBlobs(ctx, now, inactiveBefore)
	if err != nil {
		return nil, 0, storeFailure(fmt.Errorf("delete expired rows: %w", err))
	}

	failed := 0
	for _, id := range ids {
		if err := svc.blobs.Delete(ctx, id); err != nil {
			failed++
			w.logger.Warn("unlink expired object", "id", id, "error", err)
		}
	}
	if len(ids) > 0 {
		svc.metrics.RecordReclaimed("expiry", len(ids))
		w.logger.Info("reclaimed expired blobs", "count", len(ids), "ids", ids)
	}
	return ids, failed, nil
}

// SweepOrphans pages through every row and deletes those whose file is
// missing. Files without rows are left alone.
func (w *RetentionSweeper) SweepOrphans(ctx context.Context) (int, error) {
	svc := w.service
	if err := svc.ready(); err != nil {
		return 0, err
	}

	removed := 0
	after := ""
	for {
		ids, err := svc.index.ListBlobIDs(ctx, after, w.policy.BatchSize)
		if err != nil {
			return removed, storeFailure(fmt.Errorf("list blob ids: %w", err))
		}
		if len(ids) == 0 {
			break
		}
		after = ids[len(ids)-1]

		for _, id := range ids {
			exists, err := svc.blobs.Exists(ctx, id)
			if err != nil {
				return removed, contentStoreFailure(err)
			}
			if exists {
				continue
			}
			deleted, err := svc.index.DeleteBlob(ctx, id)
			if err != nil {
				return removed, storeFailure(err)
			}
			if deleted {
				removed++
			}
		}
		if len(ids) < w.policy.BatchSize {
			break
		}
	}

	if removed > 0 {
		svc.metrics.RecordReclaimed("orphan", removed)
		w.logger.Info("removed orphaned blob records", "count", removed)
	}
	return removed, nil
}

// BackfillHashes fills in content_hash for rows written before hashing
// existed. Encrypted rows cannot be read without their key and are
// skipped.
func (w *RetentionSweeper) BackfillHashes(ctx context.Context) (backfilled, skipped, failed int, err error) {
	svc := w.service
	if err := svc.ready(); err != nil {
		return 0, 0, 0, err
	}

	after := ""
	for {
		rows, err := svc.index.ListBlobsMissingContentHash(ctx, after, w.policy.BatchSize)
		if err != nil {
			return backfilled, skipped, failed, storeFailure(fmt.Errorf("list rows missing hash: %w", err))
		}
		if len(rows) == 0 {
			break
		}
		after = rows[len(rows)-1].ID

		for i := range rows {
			record := &rows[i]
			if record.Encrypted() {
				skipped++
				continue
			}
			hash, err := w.hashPlaintext(ctx, record)
			if err != nil {
				if errors.Is(err, blobstore.ErrNotFound) {
					// Left for the orphan sweep.
					skipped++
					continue
				}
				if ctx.Err() != nil {
					return backfilled, skipped, failed, ctx.Err()
				}
				failed++
				w.logger.Warn("hash backfill", "id", record.ID, "error", err)
				continue
			}
			if err := svc.index.SetContentHash(ctx, record.ID, hash); err != nil {
				return backfilled, skipped, failed, storeFailure(err)
			}
			backfilled++
		}
		if len(rows) < w.policy.BatchSize {
			break
		}
	}

	if backfilled > 0 {
		w.logger.Info("backfilled content hashes", "count", backfilled, "skipped", skipped)
	}
	return backfilled, skipped, failed, nil
}

func (w *RetentionSweeper) hashPlaintext(ctx context.Context, record *models.Blob) (string, error) {
	f, err := w.service.blobs.Open(ctx, record.ID)
	if err != nil {
		return "", err
	}
	defer f.Close()

	dec, err := transform.NewDecoder(ctxReader{ctx: ctx, r: f}, models.CompressionAlgorithm(record.Compression), nil)
	if err != nil {
		return "", err
	}
	defer dec.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, dec); err != nil {
		return "", err
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}
