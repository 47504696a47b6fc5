package memstore

import (
	"context"
	"errors"
	"testing"

	"github.com/spacehost/spacesync/internal/errs"
)

func TestUploadDownload(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New()

	if err := s.Upload(ctx, "a/b", []byte("v1"), false); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if err := s.Upload(ctx, "a/b", []byte("v2"), false); !errors.Is(err, errs.ErrAlreadyExists) {
		t.Fatalf("non-upsert overwrite: want ErrAlreadyExists, got %v", err)
	}
	if err := s.Upload(ctx, "a/b", []byte("v2"), true); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := s.Download(ctx, "a/b")
	if err != nil || string(got) != "v2" {
		t.Fatalf("Download: %q %v", got, err)
	}
	if _, err := s.Download(ctx, "missing"); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("missing: want ErrNotFound, got %v", err)
	}
}

func TestList_RelativeSorted(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New()
	for _, p := range []string{"s1/tabs/beta", "s1/tabs/alpha", "s1/tabOrder", "s2/tabs/x"} {
		if err := s.Upload(ctx, p, []byte("d"), true); err != nil {
			t.Fatalf("Upload %s: %v", p, err)
		}
	}
	names, err := s.List(ctx, "s1/tabs/")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(names) != 2 || names[0] != "alpha" || names[1] != "beta" {
		t.Fatalf("List=%v", names)
	}
}

func TestMoveRemove(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New()
	if err := s.Upload(ctx, "from", []byte("d"), true); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if err := s.Move(ctx, "from", "to"); err != nil {
		t.Fatalf("Move: %v", err)
	}
	if _, err := s.Download(ctx, "from"); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("old path must be gone")
	}
	if got, err := s.Download(ctx, "to"); err != nil || string(got) != "d" {
		t.Fatalf("new path: %q %v", got, err)
	}
	if err := s.Move(ctx, "nope", "x"); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("Move missing: want ErrNotFound, got %v", err)
	}

	if err := s.Remove(ctx, []string{"to", "never-existed"}); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if s.Len() != 0 {
		t.Fatalf("store not empty: %d", s.Len())
	}
}
