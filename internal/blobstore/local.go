package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const stagingDirName = "tmp"

// ErrNotFound is returned when no file exists for an identifier.
var ErrNotFound = errors.New("blob not found")

// LocalStore keeps one file per object in a flat directory, named exactly
// by the object identifier. Writes are staged under tmp/ and renamed into
// place so readers never observe a partial file.
type LocalStore struct {
	root string
}

// NewLocalStore creates a local store rooted at root.
func NewLocalStore(root string) (*LocalStore, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("content store root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Join(abs, stagingDirName), 0o755); err != nil {
		return nil, err
	}
	return &LocalStore{root: abs}, nil
}

// Root returns the absolute store directory.
func (c *LocalStore) Root() string {
	if c == nil {
		return ""
	}
	return c.root
}

// Stage opens a new temp file for writing.
func (c *LocalStore) Stage(ctx context.Context) (*StagedBlob, error) {
	if c == nil {
		return nil, fmt.Errorf("blob store is not configured")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tmp, err := os.CreateTemp(filepath.Join(c.root, stagingDirName), "stage-*")
	if err != nil {
		return nil, err
	}
	return &StagedBlob{store: c, file: tmp, path: tmp.Name()}, nil
}

// Open returns a reader for the object file.
func (c *LocalStore) Open(ctx context.Context, id string) (io.ReadCloser, error) {
	if c == nil {
		return nil, fmt.Errorf("blob store is not configured")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := c.pathFromID(id)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, err
	}
	return f, nil
}

// Exists reports whether a regular file exists for id.
func (c *LocalStore) Exists(ctx context.Context, id string) (bool, error) {
	if c == nil {
		return false, fmt.Errorf("blob store is not configured")
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	path, err := c.pathFromID(id)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return info.Mode().IsRegular(), nil
}

// Delete removes an object file. Missing files are ignored.
func (c *LocalStore) Delete(ctx context.Context, id string) error {
	if c == nil {
		return fmt.Errorf("blob store is not configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := c.pathFromID(id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (c *LocalStore) pathFromID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("blob id is required")
	}
	if id == stagingDirName || strings.HasPrefix(id, ".") || strings.ContainsAny(id, `/\`) {
		return "", fmt.Errorf("invalid blob id")
	}
	return filepath.Join(c.root, id), nil
}
