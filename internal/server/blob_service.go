package server

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"blobd/internal/blobstore"
	"blobd/internal/models"
	"blobd/internal/store"
)

const (
	defaultCacheMaxAge  = time.Hour
	defaultFetchTimeout = 30 * time.Second
)

// ServiceOptions configures a BlobService.
type ServiceOptions struct {
	Compression models.CompressionAlgorithm
	// CompressionLevel is a flate level; zero selects the default.
	CompressionLevel int
	// MaxUploadBytes bounds one plaintext upload; zero means unbounded.
	MaxUploadBytes int64
	// MaxTotalBytes bounds the sum of persisted sizes; zero means unbounded.
	MaxTotalBytes      int64
	DefaultCacheMaxAge time.Duration
	FetchTimeout       time.Duration
	// HTTPClient overrides the client used for URL ingestion.
	HTTPClient *http.Client
	Metrics    *Metrics
	Logger     *slog.Logger
	// Now overrides the clock; tests use it to step time.
	Now func() time.Time
}

// BlobService runs the object lifecycle: ingest, retrieval, inspection
// and deletion against the metadata index and the content store.
type BlobService struct {
	index store.BlobIndex
	blobs blobstore.BlobStore

	compression      models.CompressionAlgorithm
	compressionLevel int
	maxUploadBytes   int64
	maxTotalBytes    int64
	cacheMaxAge      time.Duration

	fetcher    *urlFetcher
	ingests    singleflight.Group
	capacityMu sync.Mutex
	metrics    *Metrics
	logger     *slog.Logger
	now        func() time.Time
}

// StatsResult reports aggregate usage.
type StatsResult struct {
	ObjectCount    int64
	TotalSizeBytes int64
	MaxTotalBytes  int64
}

// NewBlobService constructs a BlobService.
func NewBlobService(index store.BlobIndex, blobs blobstore.BlobStore, opts ServiceOptions) *BlobService {
	if opts.Compression == "" {
		opts.Compression = models.CompressionNone
	}
	// Zero is the unset value, not flate's store-only level.
	if !models.IsValidCompressionLevel(opts.CompressionLevel) {
		opts.CompressionLevel = models.CompressionLevelDefault
	}
	if opts.DefaultCacheMaxAge <= 0 {
		opts.DefaultCacheMaxAge = defaultCacheMaxAge
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = defaultFetchTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}

	return &BlobService{
		index:            index,
		blobs:            blobs,
		compression:      opts.Compression,
		compressionLevel: opts.CompressionLevel,
		maxUploadBytes:   opts.MaxUploadBytes,
		maxTotalBytes:    opts.MaxTotalBytes,
		cacheMaxAge:      opts.DefaultCacheMaxAge,
		fetcher:          newURLFetcher(opts.HTTPClient, opts.FetchTimeout),
		metrics:          opts.Metrics,
		logger:           opts.Logger.With("component", "blob_service"),
		now:              opts.Now,
	}
}

// Stats returns aggregate usage and refreshes the usage gauges.
func (s *BlobService) Stats(ctx context.Context) (StatsResult, error) {
	if err := s.ready(); err != nil {
		return StatsResult{}, err
	}
	stats, err := s.index.BlobStats(ctx)
	if err != nil {
		return StatsResult{}, storeFailure(err)
	}
	s.metrics.UpdateStorageMetrics(stats)
	return StatsResult{
		ObjectCount:    stats.ObjectCount,
		TotalSizeBytes: stats.TotalSizeBytes,
		MaxTotalBytes:  s.maxTotalBytes,
	}, nil
}

func (s *BlobService) ready() error {
	if s == nil || s.index == nil || s.blobs == nil {
		return internalError(fmt.Errorf("blob service is not configured"))
	}
	return nil
}

// removeRecord deletes the row for a record whose file is gone.
func (s *BlobService) removeRecord(ctx context.Context, id, reason string) {
	if _, err := s.index.DeleteBlob(ctx, id); err != nil {
		s.logger.Warn("remove stale blob record", "id", id, "reason", reason, "error", err)
		return
	}
	s.logger.Info("removed stale blob record", "id", id, "reason", reason)
}

// ctxReader stops a copy loop once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
