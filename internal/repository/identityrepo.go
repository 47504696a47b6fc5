// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/spacehost/spacesync/internal/model"
)

// IdentityRepository provides access to wallet identity registrations.
type IdentityRepository interface {
	// Create inserts a new registration row.
	Create(ctx context.Context, id *model.Identity) error
	// ListByWallet returns all identities registered for a wallet, oldest first.
	ListByWallet(ctx context.Context, walletAddress string) ([]model.Identity, error)
	// GetByPublicKey loads one identity by its public key handle.
	GetByPublicKey(ctx context.Context, identityPublicKey string) (*model.Identity, error)
	// Revoke marks an identity revoked. Rows are never deleted.
	Revoke(ctx context.Context, identityPublicKey string) error
}
