// Package memstore is an in-memory objstore.Store used in tests and local
// development.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/spacehost/spacesync/internal/errs"
	"github.com/spacehost/spacesync/internal/objstore"
)

// Store keeps objects in a map guarded by a RWMutex.
type Store struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

var _ objstore.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{objects: make(map[string][]byte)}
}

// Upload stores a copy of data at path.
func (s *Store) Upload(_ context.Context, path string, data []byte, upsert bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[path]; ok && !upsert {
		return fmt.Errorf("upload %s: %w", path, errs.ErrAlreadyExists)
	}
	s.objects[path] = append([]byte(nil), data...)
	return nil
}

// Download returns a copy of the object at path.
func (s *Store) Download(_ context.Context, path string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[path]
	if !ok {
		return nil, fmt.Errorf("download %s: %w", path, errs.ErrNotFound)
	}
	return append([]byte(nil), data...), nil
}

// List returns object names under prefix, relative to it, sorted.
func (s *Store) List(_ context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var names []string
	for p := range s.objects {
		if strings.HasPrefix(p, prefix) {
			names = append(names, strings.TrimPrefix(p, prefix))
		}
	}
	sort.Strings(names)
	return names, nil
}

// Move renames an object.
func (s *Store) Move(_ context.Context, from, to string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[from]
	if !ok {
		return fmt.Errorf("move %s: %w", from, errs.ErrNotFound)
	}
	delete(s.objects, from)
	s.objects[to] = data
	return nil
}

// Remove deletes the given paths; missing paths are ignored.
func (s *Store) Remove(_ context.Context, paths []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range paths {
		delete(s.objects, p)
	}
	return nil
}

// Len reports the number of stored objects. Test helper.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
