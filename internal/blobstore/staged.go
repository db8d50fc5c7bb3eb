package blobstore

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// StagedBlob is a temp file inside the store. It is written once, may be
// reopened for reading, and is then either committed under an identifier
// or discarded.
type StagedBlob struct {
	store *LocalStore
	file  *os.File
	path  string

	mu        sync.Mutex
	size      int64
	closed    bool
	finalized bool
}

// Write appends to the staged file.
func (b *StagedBlob) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, fmt.Errorf("staged blob is closed")
	}
	n, err := b.file.Write(p)
	b.size += int64(n)
	return n, err
}

// Size returns the number of bytes written so far.
func (b *StagedBlob) Size() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Close flushes the staged file. Further writes fail.
func (b *StagedBlob) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closeLocked()
}

// Reader reopens the staged bytes for reading. The blob is closed first.
func (b *StagedBlob) Reader() (io.ReadCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.finalized {
		return nil, fmt.Errorf("staged blob is already finalized")
	}
	if err := b.closeLocked(); err != nil {
		return nil, err
	}
	return os.Open(b.path)
}

// Commit moves the staged file into place under id.
func (b *StagedBlob) Commit(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.finalized {
		return fmt.Errorf("staged blob is already finalized")
	}
	dst, err := b.store.pathFromID(id)
	if err != nil {
		return err
	}
	if !b.closed {
		if err := b.file.Sync(); err != nil {
			return err
		}
	}
	if err := b.closeLocked(); err != nil {
		return err
	}
	if err := os.Rename(b.path, dst); err != nil {
		return err
	}
	b.finalized = true
	return nil
}

// Discard removes the staged file. It is a no-op after Commit.
func (b *StagedBlob) Discard() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.finalized {
		return nil
	}
	_ = b.closeLocked()
	b.finalized = true
	if err := os.Remove(b.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (b *StagedBlob) closeLocked() error {
	if b.closed {
		return nil
	}
	b.closed = true
	return b.file.Close()
}
