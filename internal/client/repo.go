package client

import (
	"context"
	"errors"
	"time"

	"github.com/spacehost/spacesync/internal/model"
	"github.com/spacehost/spacesync/internal/repository"
	"github.com/spacehost/spacesync/internal/service"
)

// ErrNotExposed marks repository operations the registry API has no endpoint
// for. The client-side flows never reach them.
var ErrNotExposed = errors.New("not exposed by the registry api")

// IdentityRepo adapts the API client to repository.IdentityRepository so the
// identity service runs unchanged on the client side, with the registry
// server standing in for the database.
type IdentityRepo struct{ api *Client }

var _ repository.IdentityRepository = (*IdentityRepo)(nil)

// NewIdentityRepo wraps an API client.
func NewIdentityRepo(api *Client) *IdentityRepo { return &IdentityRepo{api: api} }

// Create rebuilds the signed wire body from the row and submits it. The
// registration timestamp is the row's CreatedAt, so the signature the client
// produced still covers exactly these fields.
func (r *IdentityRepo) Create(ctx context.Context, id *model.Identity) error {
	_, err := r.api.RegisterIdentity(ctx, service.IdentityRegistration{
		IdentityPublicKey: id.IdentityPublicKey,
		WalletAddress:     id.WalletAddress,
		Nonce:             id.Nonce,
		Timestamp:         id.CreatedAt.UTC().Format(time.RFC3339),
		Signature:         id.Signature,
	})
	return err
}

func (r *IdentityRepo) ListByWallet(ctx context.Context, walletAddress string) ([]model.Identity, error) {
	return r.api.ListIdentities(ctx, walletAddress)
}

func (r *IdentityRepo) GetByPublicKey(ctx context.Context, identityPublicKey string) (*model.Identity, error) {
	return r.api.GetIdentity(ctx, identityPublicKey)
}

func (r *IdentityRepo) Revoke(context.Context, string) error {
	return ErrNotExposed
}
