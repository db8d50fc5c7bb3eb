package store

import (
	"context"
	"time"

	"blobd/internal/models"
)

// BlobIndex is the metadata persistence surface for stored objects.
type BlobIndex interface {
	CreateBlob(ctx context.Context, blob *models.Blob) error
	GetBlob(ctx context.Context, id string) (*models.Blob, error)
	ClaimDuplicate(ctx context.Context, hash string, now time.Time, expiresAt *time.Time) (*models.Blob, error)
	TouchBlob(ctx context.Context, id string, at time.Time) error
	DeleteBlob(ctx context.Context, id string) (bool, error)
	DeleteExpiredBlobs(ctx context.Context, now time.Time, inactiveBefore *time.Time) ([]string, error)
	ListBlobIDs(ctx context.Context, afterID string, limit int) ([]string, error)
	ListBlobsMissingContentHash(ctx context.Context, afterID string, limit int) ([]models.Blob, error)
	SetContentHash(ctx context.Context, id, hash string) error
	BlobStats(ctx context.Context) (models.BlobStats, error)
}

var _ BlobIndex = (*Store)(nil)
