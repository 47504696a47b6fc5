package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spacehost/spacesync/internal/envelope"
	"github.com/spacehost/spacesync/internal/errs"
	"github.com/spacehost/spacesync/internal/model"
	"github.com/spacehost/spacesync/internal/objstore"
)

// PreKeyService issues and lists delegated sub-keys. A prekey file is an
// envelope whose key field is the OWNER identity's public key: the parent
// identity vouches for the sub-key, not the other way around.
type PreKeyService struct {
	store objstore.Store
	log   *zap.Logger
	now   func() time.Time
}

// NewPreKeyService constructs a PreKeyService.
func NewPreKeyService(store objstore.Store, log *zap.Logger) *PreKeyService {
	return &PreKeyService{store: store, log: log, now: time.Now}
}

// IssuePrekey builds and stores a countersigned prekey file for the owner.
func (s *PreKeyService) IssuePrekey(ctx context.Context, owner *model.SessionKeys, prekeyPublicKey string) (envelope.Envelope, error) {
	if owner == nil || owner.PublicKey == "" || prekeyPublicKey == "" {
		return nil, fmt.Errorf("issue prekey: %w", errs.ErrMalformedInput)
	}
	env, err := envelope.Sign(map[string]any{
		"identityPublicKey": owner.PublicKey,
		"prekeyPublicKey":   prekeyPublicKey,
		"createdAt":         s.now().UTC().Format(time.RFC3339),
	}, owner.Private, "identityPublicKey")
	if err != nil {
		return nil, err
	}
	if err := s.StorePrekey(ctx, owner.PublicKey, prekeyPublicKey, env); err != nil {
		return nil, err
	}
	return env, nil
}

// StorePrekey writes a prekey file under an identity's prefix. The envelope's
// key field must equal the identity segment being written under; a prekey
// cannot be filed under an identity it is not signed by.
func (s *PreKeyService) StorePrekey(ctx context.Context, identityPublicKey, prekeyPublicKey string, env envelope.Envelope) error {
	if owner, _ := env["identityPublicKey"].(string); owner != identityPublicKey {
		return fmt.Errorf("prekey owner %q does not match path identity %q: %w",
			env["identityPublicKey"], identityPublicKey, errs.ErrMalformedInput)
	}
	if err := envelope.Validate(env, "identityPublicKey"); err != nil {
		return err
	}
	blob, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return s.store.Upload(ctx, objstore.PreKeyPath(identityPublicKey, prekeyPublicKey), blob, false)
}

// ListPrekeys enumerates stored prekey files for an identity. Files are
// returned as stored; callers must validate each envelope before trusting it.
func (s *PreKeyService) ListPrekeys(ctx context.Context, identityPublicKey string) ([]model.PreKey, error) {
	if identityPublicKey == "" {
		return nil, fmt.Errorf("list prekeys: %w", errs.ErrMalformedInput)
	}
	names, err := s.store.List(ctx, objstore.PreKeyDir(identityPublicKey))
	if err != nil {
		return nil, err
	}
	out := make([]model.PreKey, 0, len(names))
	for _, name := range names {
		blob, err := s.store.Download(ctx, objstore.PreKeyPath(identityPublicKey, name))
		if err != nil {
			s.log.Warn("prekey file listed but unreadable",
				zap.String("identityPublicKey", identityPublicKey),
				zap.String("prekey", name),
				zap.Error(err),
			)
			continue
		}
		out = append(out, model.PreKey{
			PreKeyPublicKey:        name,
			OwnerIdentityPublicKey: identityPublicKey,
			SignedFile:             blob,
		})
	}
	return out, nil
}
