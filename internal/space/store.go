// Package space implements the local-first configuration store: an in-memory
// per-session cache of tab configurations with a validating gate, dirty
// tracking, debounced signed commits to object storage, and the tab ordering
// protocol.
package space

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/spacehost/spacesync/internal/envelope"
	"github.com/spacehost/spacesync/internal/errs"
	"github.com/spacehost/spacesync/internal/model"
	"github.com/spacehost/spacesync/internal/objstore"
)

// spaceCache is the process-local state of one space. Local reads and writes
// never suspend; only commits talk to the remote store.
type spaceCache struct {
	tabs         map[string]model.TabConfig
	order        []string
	changedNames map[string]string
	dirty        map[string]bool
	gen          map[string]uint64
	orderDirty   bool
	orderGen     uint64
	flush        *time.Timer
}

// Store is an explicit, per-session configuration store. It is handed by
// reference to everything that mutates space config; there is no process-wide
// singleton.
type Store struct {
	remote       objstore.Store
	keys         *model.SessionKeys
	log          *zap.Logger
	policy       Policy
	debounce     time.Duration
	flushTimeout time.Duration
	now          func() time.Time

	mu     sync.Mutex
	spaces map[string]*spaceCache
}

// New constructs a session store. debounce <= 0 disables the automatic flush;
// commits then only happen through the explicit Commit methods.
func New(remote objstore.Store, keys *model.SessionKeys, log *zap.Logger, policy Policy, debounce time.Duration) *Store {
	return &Store{
		remote:       remote,
		keys:         keys,
		log:          log,
		policy:       policy,
		debounce:     debounce,
		flushTimeout: 30 * time.Second,
		now:          time.Now,
		spaces:       make(map[string]*spaceCache),
	}
}

// getSpaceLocked lazily creates the cache for a space. Caller holds mu.
func (s *Store) getSpaceLocked(spaceID string) *spaceCache {
	sp, ok := s.spaces[spaceID]
	if !ok {
		sp = &spaceCache{
			tabs:         make(map[string]model.TabConfig),
			changedNames: make(map[string]string),
			dirty:        make(map[string]bool),
			gen:          make(map[string]uint64),
		}
		s.spaces[spaceID] = sp
	}
	return sp
}

// Reset discards all cached spaces and cancels pending flushes. Called on
// logout; remote state is untouched.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sp := range s.spaces {
		if sp.flush != nil {
			sp.flush.Stop()
		}
	}
	s.spaces = make(map[string]*spaceCache)
}

// SaveLocalTab runs the sanitizer over candidate and, if it passes, replaces
// the tab's cached config and marks it dirty. A rejected candidate leaves the
// cache exactly as it was; the rejection is only logged, so one corrupt tab
// never blocks the rest of the space.
func (s *Store) SaveLocalTab(spaceID, tabName string, candidate any) {
	res := Sanitize(candidate, s.policy)
	if !res.Valid {
		s.log.Warn("tab config rejected",
			zap.String("spaceId", spaceID),
			zap.String("tab", tabName),
			zap.String("reason", res.Reason),
		)
		return
	}
	cfg := res.Config
	if cfg.Timestamp == "" {
		cfg.Timestamp = s.now().UTC().Format(time.RFC3339)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sp := s.getSpaceLocked(spaceID)
	if _, known := sp.tabs[tabName]; !known && !containsName(sp.order, tabName) {
		sp.order = append(sp.order, tabName)
		sp.orderDirty = true
	}
	sp.tabs[tabName] = cfg
	sp.dirty[tabName] = true
	sp.gen[tabName]++
	s.scheduleFlushLocked(spaceID, sp)
}

// ResetTab drops the tab's local state: cached config, dirty flag and any
// pending rename mapping. The name stays in the local order; the next
// LoadSpace repopulates the config from storage.
func (s *Store) ResetTab(spaceID, tabName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sp, ok := s.spaces[spaceID]
	if !ok {
		return
	}
	delete(sp.tabs, tabName)
	delete(sp.dirty, tabName)
	delete(sp.gen, tabName)
	for old, renamed := range sp.changedNames {
		if renamed == tabName {
			delete(sp.changedNames, old)
		}
	}
}

// scheduleFlushLocked arms (or re-arms) the debounced flush. The flush always
// sends the latest local state, so coalesced edits collapse into one commit.
func (s *Store) scheduleFlushLocked(spaceID string, sp *spaceCache) {
	if s.debounce <= 0 {
		return
	}
	if sp.flush != nil {
		sp.flush.Reset(s.debounce)
		return
	}
	sp.flush = time.AfterFunc(s.debounce, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.flushTimeout)
		defer cancel()
		if err := s.CommitDirty(ctx, spaceID); err != nil {
			s.log.Warn("debounced flush failed", zap.String("spaceId", spaceID), zap.Error(err))
		}
	})
}

// CommitTab signs the tab's current local config and upserts it to storage.
func (s *Store) CommitTab(ctx context.Context, spaceID, tabName string) error {
	s.mu.Lock()
	sp, ok := s.spaces[spaceID]
	var (
		cfg model.TabConfig
		gen uint64
	)
	if ok {
		cfg, ok = sp.tabs[tabName]
		gen = sp.gen[tabName]
	}
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("commit tab %s/%s: %w", spaceID, tabName, errs.ErrNotFound)
	}

	data, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	env, err := envelope.Sign(map[string]any{
		"fileData":  string(data),
		"fileType":  "json",
		"fileName":  tabName,
		"timestamp": s.now().UTC().Format(time.RFC3339),
		"publicKey": s.keys.PublicKey,
	}, s.keys.Private, "publicKey")
	if err != nil {
		return err
	}
	blob, err := json.Marshal(env)
	if err != nil {
		return err
	}
	if err := s.upload(ctx, objstore.TabPath(spaceID, tabName), blob); err != nil {
		return err
	}

	s.mu.Lock()
	var stale []string
	if sp2, ok := s.spaces[spaceID]; ok {
		// Only clear dirty if no newer local edit arrived while uploading.
		if sp2.gen[tabName] == gen {
			delete(sp2.dirty, tabName)
		}
		// A flush that raced a rename may have recommitted the tab under its
		// old name; the commit under the new name retires those paths.
		for old, renamed := range sp2.changedNames {
			if renamed == tabName {
				stale = append(stale, objstore.TabPath(spaceID, old))
				delete(sp2.changedNames, old)
			}
		}
	}
	s.mu.Unlock()
	if len(stale) > 0 {
		if err := s.remote.Remove(ctx, stale); err != nil {
			s.log.Warn("stale renamed tab cleanup failed",
				zap.String("spaceId", spaceID),
				zap.Strings("paths", stale),
				zap.Error(err),
			)
		}
	}
	return nil
}

// CommitTabOrder signs the current local tab order and upserts it.
func (s *Store) CommitTabOrder(ctx context.Context, spaceID string) error {
	s.mu.Lock()
	sp := s.getSpaceLocked(spaceID)
	order := append([]string(nil), sp.order...)
	gen := sp.orderGen
	s.mu.Unlock()

	env, err := envelope.Sign(model.TabOrder{
		SpaceID:   spaceID,
		TabOrder:  order,
		PublicKey: s.keys.PublicKey,
		Timestamp: s.now().UTC().Format(time.RFC3339),
	}, s.keys.Private, "publicKey")
	if err != nil {
		return err
	}
	blob, err := json.Marshal(env)
	if err != nil {
		return err
	}
	if err := s.upload(ctx, objstore.TabOrderPath(spaceID), blob); err != nil {
		return err
	}

	s.mu.Lock()
	if sp2, ok := s.spaces[spaceID]; ok && sp2.orderGen == gen {
		sp2.orderDirty = false
	}
	s.mu.Unlock()
	return nil
}

// UpdateTabOrder replaces the local tab order.
func (s *Store) UpdateTabOrder(spaceID string, order []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sp := s.getSpaceLocked(spaceID)
	sp.order = append([]string(nil), order...)
	sp.orderDirty = true
	sp.orderGen++
	s.scheduleFlushLocked(spaceID, sp)
}

// CommitAll commits every cached tab of the space sequentially, then the tab
// order. A failing tab is reported but does not abort its siblings, and
// already-committed tabs are not rolled back.
func (s *Store) CommitAll(ctx context.Context, spaceID string) error {
	s.mu.Lock()
	sp, ok := s.spaces[spaceID]
	var names []string
	if ok {
		names = make([]string, 0, len(sp.tabs))
		for _, name := range sp.order {
			if _, cached := sp.tabs[name]; cached {
				names = append(names, name)
			}
		}
	}
	s.mu.Unlock()
	if !ok {
		return nil
	}

	var errsAll []error
	for _, name := range names {
		if err := s.CommitTab(ctx, spaceID, name); err != nil {
			s.log.Warn("tab commit failed",
				zap.String("spaceId", spaceID),
				zap.String("tab", name),
				zap.Error(err),
			)
			errsAll = append(errsAll, fmt.Errorf("tab %q: %w", name, err))
		}
	}
	if err := s.CommitTabOrder(ctx, spaceID); err != nil {
		errsAll = append(errsAll, fmt.Errorf("tab order: %w", err))
	}
	return errors.Join(errsAll...)
}

// CommitDirty commits only the tabs marked dirty, plus the order if it
// changed. This is what the debounced flush runs.
func (s *Store) CommitDirty(ctx context.Context, spaceID string) error {
	s.mu.Lock()
	sp, ok := s.spaces[spaceID]
	var names []string
	var orderDirty bool
	if ok {
		for name := range sp.dirty {
			names = append(names, name)
		}
		orderDirty = sp.orderDirty
	}
	s.mu.Unlock()
	if !ok {
		return nil
	}

	var errsAll []error
	for _, name := range names {
		if err := s.CommitTab(ctx, spaceID, name); err != nil {
			errsAll = append(errsAll, fmt.Errorf("tab %q: %w", name, err))
		}
	}
	if orderDirty {
		if err := s.CommitTabOrder(ctx, spaceID); err != nil {
			errsAll = append(errsAll, fmt.Errorf("tab order: %w", err))
		}
	}
	return errors.Join(errsAll...)
}

// upload pushes a blob with upsert semantics, retrying transient storage
// failures with fibonacci backoff.
func (s *Store) upload(ctx context.Context, path string, blob []byte) error {
	b := retry.WithMaxRetries(3, retry.NewFibonacci(100*time.Millisecond))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		err := s.remote.Upload(ctx, path, blob, true)
		if errors.Is(err, errs.ErrStorage) {
			return retry.RetryableError(err)
		}
		return err
	})
}

// GetCurrentSpaceConfig returns the tabs that currently pass the sanitizer
// plus the display order. A tab corrupted after caching is filtered out
// rather than surfaced.
func (s *Store) GetCurrentSpaceConfig(spaceID string) (map[string]model.TabConfig, []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sp, ok := s.spaces[spaceID]
	if !ok {
		return map[string]model.TabConfig{}, nil
	}
	tabs := make(map[string]model.TabConfig, len(sp.tabs))
	for name, cfg := range sp.tabs {
		if stillValid(cfg) {
			tabs[name] = cfg
		} else {
			s.log.Warn("cached tab config corrupted, filtered from reads",
				zap.String("spaceId", spaceID),
				zap.String("tab", name),
			)
		}
	}
	return tabs, append([]string(nil), sp.order...)
}

func containsName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
