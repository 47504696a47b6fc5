package space

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spacehost/spacesync/internal/envelope"
	"github.com/spacehost/spacesync/internal/errs"
	"github.com/spacehost/spacesync/internal/model"
	"github.com/spacehost/spacesync/internal/objstore"
)

// uniqueNameLocked resolves a name collision by appending " (n)" with the
// smallest n that yields an unused name. Caller holds mu.
func (sp *spaceCache) uniqueNameLocked(name string) string {
	taken := func(n string) bool {
		_, cached := sp.tabs[n]
		return cached || containsName(sp.order, n)
	}
	if !taken(name) {
		return name
	}
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s (%d)", name, n)
		if !taken(candidate) {
			return candidate
		}
	}
}

// CreateTab adds an empty tab under the requested name, resolving collisions,
// then commits the order followed by the new tab. The resolved name is
// returned.
func (s *Store) CreateTab(ctx context.Context, spaceID, name string) (string, error) {
	s.mu.Lock()
	sp := s.getSpaceLocked(spaceID)
	actual := sp.uniqueNameLocked(name)
	sp.tabs[actual] = model.TabConfig{
		FidgetInstanceDatums: map[string]any{},
		IsPrivate:            s.policy.DefaultIsPrivate,
		Timestamp:            s.now().UTC().Format(time.RFC3339),
	}
	sp.order = append(sp.order, actual)
	sp.orderDirty = true
	sp.orderGen++
	sp.gen[actual]++
	s.mu.Unlock()

	if err := s.CommitTabOrder(ctx, spaceID); err != nil {
		return actual, err
	}
	return actual, s.CommitTab(ctx, spaceID, actual)
}

// RenameTab moves a tab to a new name, resolving collisions, moves the stored
// object, then commits the order and the tab under its new name.
func (s *Store) RenameTab(ctx context.Context, spaceID, oldName, newName string) (string, error) {
	s.mu.Lock()
	sp, ok := s.spaces[spaceID]
	if !ok {
		s.mu.Unlock()
		return "", fmt.Errorf("rename tab %s/%s: %w", spaceID, oldName, errs.ErrNotFound)
	}
	cfg, ok := sp.tabs[oldName]
	if !ok {
		s.mu.Unlock()
		return "", fmt.Errorf("rename tab %s/%s: %w", spaceID, oldName, errs.ErrNotFound)
	}
	actual := newName
	if newName != oldName {
		actual = sp.uniqueNameLocked(newName)
	}
	sp.tabs[actual] = cfg
	delete(sp.tabs, oldName)
	for i, n := range sp.order {
		if n == oldName {
			sp.order[i] = actual
		}
	}
	sp.changedNames[oldName] = actual
	if sp.dirty[oldName] {
		delete(sp.dirty, oldName)
		sp.dirty[actual] = true
	}
	sp.gen[actual] = sp.gen[oldName] + 1
	delete(sp.gen, oldName)
	sp.orderDirty = true
	sp.orderGen++
	s.mu.Unlock()

	err := s.remote.Move(ctx, objstore.TabPath(spaceID, oldName), objstore.TabPath(spaceID, actual))
	if err != nil && !errors.Is(err, errs.ErrNotFound) {
		// A tab that was never committed has nothing to move.
		return actual, err
	}
	if err := s.CommitTabOrder(ctx, spaceID); err != nil {
		return actual, err
	}
	return actual, s.CommitTab(ctx, spaceID, actual)
}

// DeleteTab removes a tab locally and remotely and commits the new order. It
// returns the next closest tab (previous in order, or the first remaining)
// for the caller to switch to.
func (s *Store) DeleteTab(ctx context.Context, spaceID, name string) (string, error) {
	s.mu.Lock()
	sp, ok := s.spaces[spaceID]
	if !ok {
		s.mu.Unlock()
		return "", fmt.Errorf("delete tab %s/%s: %w", spaceID, name, errs.ErrNotFound)
	}
	idx := -1
	for i, n := range sp.order {
		if n == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return "", fmt.Errorf("delete tab %s/%s: %w", spaceID, name, errs.ErrNotFound)
	}
	sp.order = append(sp.order[:idx], sp.order[idx+1:]...)
	delete(sp.tabs, name)
	delete(sp.dirty, name)
	delete(sp.gen, name)
	sp.orderDirty = true
	sp.orderGen++

	fallback := ""
	if len(sp.order) > 0 {
		if idx > 0 {
			fallback = sp.order[idx-1]
		} else {
			fallback = sp.order[0]
		}
	}
	s.mu.Unlock()

	if err := s.remote.Remove(ctx, []string{objstore.TabPath(spaceID, name)}); err != nil {
		return fallback, err
	}
	return fallback, s.CommitTabOrder(ctx, spaceID)
}

// LoadSpace populates the local cache from storage: the signed tab order plus
// every tab file that validates and passes the sanitizer. Invalid files are
// logged and skipped, never cached.
func (s *Store) LoadSpace(ctx context.Context, spaceID string) error {
	var order []string
	blob, err := s.remote.Download(ctx, objstore.TabOrderPath(spaceID))
	switch {
	case err == nil:
		var env map[string]any
		if jerr := json.Unmarshal(blob, &env); jerr != nil || envelope.Validate(env, "publicKey") != nil {
			s.log.Warn("stored tab order invalid, ignoring", zap.String("spaceId", spaceID))
		} else {
			var ord model.TabOrder
			if jerr := parse(env, &ord); jerr == nil {
				order = ord.TabOrder
			}
		}
	case errors.Is(err, errs.ErrNotFound):
		// fresh space
	default:
		return err
	}

	names, err := s.remote.List(ctx, objstore.TabDir(spaceID))
	if err != nil {
		return err
	}

	tabs := make(map[string]model.TabConfig, len(names))
	for _, name := range names {
		cfg, ok := s.loadTab(ctx, spaceID, name)
		if ok {
			tabs[name] = cfg
		}
	}

	// Order keeps entries whose tab exists; tabs missing from the stored
	// order are appended in listing order.
	final := make([]string, 0, len(tabs))
	for _, n := range order {
		if _, ok := tabs[n]; ok {
			final = append(final, n)
		}
	}
	for _, n := range names {
		if _, ok := tabs[n]; ok && !containsName(final, n) {
			final = append(final, n)
		}
	}

	s.mu.Lock()
	sp := s.getSpaceLocked(spaceID)
	sp.tabs = tabs
	sp.order = final
	sp.changedNames = make(map[string]string)
	sp.dirty = make(map[string]bool)
	sp.orderDirty = false
	s.mu.Unlock()
	return nil
}

// loadTab downloads and validates a single tab file.
func (s *Store) loadTab(ctx context.Context, spaceID, name string) (model.TabConfig, bool) {
	blob, err := s.remote.Download(ctx, objstore.TabPath(spaceID, name))
	if err != nil {
		s.log.Warn("tab file unreadable", zap.String("spaceId", spaceID), zap.String("tab", name), zap.Error(err))
		return model.TabConfig{}, false
	}
	var env map[string]any
	if err := json.Unmarshal(blob, &env); err != nil {
		s.log.Warn("tab file not json", zap.String("spaceId", spaceID), zap.String("tab", name))
		return model.TabConfig{}, false
	}
	if err := envelope.Validate(env, "publicKey"); err != nil {
		s.log.Warn("tab file signature invalid", zap.String("spaceId", spaceID), zap.String("tab", name))
		return model.TabConfig{}, false
	}
	fileData, _ := env["fileData"].(string)
	var candidate map[string]any
	if err := json.Unmarshal([]byte(fileData), &candidate); err != nil {
		s.log.Warn("tab payload not json", zap.String("spaceId", spaceID), zap.String("tab", name))
		return model.TabConfig{}, false
	}
	res := Sanitize(candidate, s.policy)
	if !res.Valid {
		s.log.Warn("stored tab config rejected",
			zap.String("spaceId", spaceID),
			zap.String("tab", name),
			zap.String("reason", res.Reason),
		)
		return model.TabConfig{}, false
	}
	return res.Config, true
}

// parse copies a decoded JSON value onto a typed struct.
func parse(src any, dst any) error {
	raw, err := json.Marshal(src)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}
