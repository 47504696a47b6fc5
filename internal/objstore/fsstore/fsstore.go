// Package fsstore is a directory-backed object store. It backs the CLI,
// where durable storage is a local data directory rather than a database.
package fsstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spacehost/spacesync/internal/errs"
)

// Store maps object paths onto files under a root directory.
type Store struct {
	root string
}

// New creates the root directory if needed.
func New(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, fmt.Errorf("fsstore root: %w", err)
	}
	return &Store{root: root}, nil
}

func (s *Store) filePath(path string) string {
	return filepath.Join(s.root, filepath.FromSlash(path))
}

func (s *Store) Upload(_ context.Context, path string, data []byte, upsert bool) error {
	fp := s.filePath(path)
	if err := os.MkdirAll(filepath.Dir(fp), 0o700); err != nil {
		return fmt.Errorf("upload %s: %w", path, err)
	}
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !upsert {
		flags = os.O_WRONLY | os.O_CREATE | os.O_EXCL
	}
	f, err := os.OpenFile(fp, flags, 0o600)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("upload %s: %w", path, errs.ErrAlreadyExists)
		}
		return fmt.Errorf("upload %s: %w", path, err)
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("upload %s: %w", path, err)
	}
	return nil
}

func (s *Store) Download(_ context.Context, path string) ([]byte, error) {
	data, err := os.ReadFile(s.filePath(path))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("download %s: %w", path, errs.ErrNotFound)
		}
		return nil, fmt.Errorf("download %s: %w", path, err)
	}
	return data, nil
}

// List returns names relative to prefix in lexical order. Only regular files
// count; intermediate directories are path segments, not objects.
func (s *Store) List(_ context.Context, prefix string) ([]string, error) {
	dir := s.filePath(prefix)
	var names []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		names = append(names, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}
	sort.Strings(names)
	return names, nil
}

func (s *Store) Move(_ context.Context, from, to string) error {
	dst := s.filePath(to)
	if err := os.MkdirAll(filepath.Dir(dst), 0o700); err != nil {
		return fmt.Errorf("move %s: %w", to, err)
	}
	if err := os.Rename(s.filePath(from), dst); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("move %s: %w", from, errs.ErrNotFound)
		}
		return fmt.Errorf("move %s: %w", from, err)
	}
	return nil
}

// Remove deletes the given objects; missing paths are not an error.
func (s *Store) Remove(_ context.Context, paths []string) error {
	for _, p := range paths {
		if strings.TrimSpace(p) == "" {
			continue
		}
		if err := os.Remove(s.filePath(p)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", p, err)
		}
	}
	return nil
}
