package blobstore

import (
	"context"
	"io"
)

// BlobStore is the byte-storage abstraction used by the blob lifecycle
// service. Objects are addressed by their identifier, never by content.
type BlobStore interface {
	Stage(ctx context.Context) (*StagedBlob, error)
	Open(ctx context.Context, id string) (io.ReadCloser, error)
	Exists(ctx context.Context, id string) (bool, error)
	Delete(ctx context.Context, id string) error
}
