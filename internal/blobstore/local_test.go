package blobstore

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestLocalStoreStageCommitOpenDelete(t *testing.T) {
	st, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("new local store: %v", err)
	}
	ctx := context.Background()

	staged, err := st.Stage(ctx)
	if err != nil {
		t.Fatalf("stage: %v", err)
	}
	if _, err := io.WriteString(staged, "hello"); err != nil {
		t.Fatalf("write: %v", err)
	}
	if staged.Size() != 5 {
		t.Fatalf("expected size 5, got %d", staged.Size())
	}

	rc, err := staged.Reader()
	if err != nil {
		t.Fatalf("reader: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "hello" {
		t.Fatalf("expected staged bytes hello, got %q", data)
	}

	const id = "6f9619ff-8b86-4011-b42d-00c04fc964ff"
	exists, err := st.Exists(ctx, id)
	if err != nil || exists {
		t.Fatalf("expected no file before commit, exists=%v err=%v", exists, err)
	}
	if err := staged.Commit(id); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := staged.Discard(); err != nil {
		t.Fatalf("discard after commit should be noop: %v", err)
	}

	exists, err = st.Exists(ctx, id)
	if err != nil || !exists {
		t.Fatalf("expected file after commit, exists=%v err=%v", exists, err)
	}
	if _, err := os.Stat(filepath.Join(st.Root(), id)); err != nil {
		t.Fatalf("expected file named by id: %v", err)
	}

	rc, err = st.Open(ctx, id)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	data, err = io.ReadAll(rc)
	rc.Close()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "hello" {
		t.Fatalf("expected hello, got %q", data)
	}

	if err := st.Delete(ctx, id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := st.Delete(ctx, id); err != nil {
		t.Fatalf("delete missing should be noop: %v", err)
	}
	if _, err := st.Open(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStagedBlobDiscard(t *testing.T) {
	st, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("new local store: %v", err)
	}
	staged, err := st.Stage(context.Background())
	if err != nil {
		t.Fatalf("stage: %v", err)
	}
	if _, err := staged.Write([]byte("partial")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := staged.Discard(); err != nil {
		t.Fatalf("discard: %v", err)
	}

	entries, err := os.ReadDir(filepath.Join(st.Root(), stagingDirName))
	if err != nil {
		t.Fatalf("read staging dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty staging dir, got %d entries", len(entries))
	}
	if err := staged.Commit("6f9619ff-8b86-4011-b42d-00c04fc964ff"); err == nil {
		t.Fatal("expected commit after discard to fail")
	}
}

func TestLocalStoreRejectsUnsafeIDs(t *testing.T) {
	st, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("new local store: %v", err)
	}
	ctx := context.Background()

	for _, id := range []string{"", "../escape", "a/b", ".hidden", stagingDirName} {
		if _, err := st.Open(ctx, id); err == nil {
			t.Fatalf("expected error opening %q", id)
		}
		if err := st.Delete(ctx, id); err == nil {
			t.Fatalf("expected error deleting %q", id)
		}
	}
}

func TestNewLocalStoreRequiresRoot(t *testing.T) {
	if _, err := NewLocalStore("  "); err == nil {
		t.Fatal("expected error for empty root")
	}
}
