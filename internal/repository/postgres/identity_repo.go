package postgres

import (
	"context"
	"errors"

	"github.com/spacehost/spacesync/internal/errs"
	"github.com/spacehost/spacesync/internal/model"
)

// IdentityRepo implements IdentityRepository using PostgreSQL.
type IdentityRepo struct{ db *DB }

// NewIdentityRepo constructs an identity repository.
func NewIdentityRepo(db *DB) *IdentityRepo { return &IdentityRepo{db: db} }

// Create inserts a new registration row.
func (r *IdentityRepo) Create(ctx context.Context, id *model.Identity) error {
	const q = `
INSERT INTO wallet_identities (id, identity_public_key, wallet_address, nonce, signature, status, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.db.Pool.Exec(ctx, q,
		id.ID, id.IdentityPublicKey, id.WalletAddress, id.Nonce, id.Signature, string(id.Status), id.CreatedAt)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// ListByWallet returns all identities for a wallet, oldest first.
func (r *IdentityRepo) ListByWallet(ctx context.Context, walletAddress string) ([]model.Identity, error) {
	const q = `
SELECT id, identity_public_key, wallet_address, nonce, signature, status, created_at
FROM wallet_identities WHERE wallet_address=$1 ORDER BY created_at ASC`
	rows, err := r.db.Pool.Query(ctx, q, walletAddress)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Identity
	for rows.Next() {
		var id model.Identity
		var status string
		if err := rows.Scan(&id.ID, &id.IdentityPublicKey, &id.WalletAddress,
			&id.Nonce, &id.Signature, &status, &id.CreatedAt); err != nil {
			return nil, err
		}
		id.Status = model.IdentityStatus(status)
		out = append(out, id)
	}
	return out, rows.Err()
}

// GetByPublicKey selects one identity by public key.
func (r *IdentityRepo) GetByPublicKey(ctx context.Context, identityPublicKey string) (*model.Identity, error) {
	const q = `
SELECT id, identity_public_key, wallet_address, nonce, signature, status, created_at
FROM wallet_identities WHERE identity_public_key=$1`
	row := r.db.Pool.QueryRow(ctx, q, identityPublicKey)
	var id model.Identity
	var status string
	if err := row.Scan(&id.ID, &id.IdentityPublicKey, &id.WalletAddress,
		&id.Nonce, &id.Signature, &status, &id.CreatedAt); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, errs.ErrNotFound
	}
	id.Status = model.IdentityStatus(status)
	return &id, nil
}

// Revoke flips status to revoked; the row itself stays for auditability.
func (r *IdentityRepo) Revoke(ctx context.Context, identityPublicKey string) error {
	const q = `UPDATE wallet_identities SET status='revoked' WHERE identity_public_key=$1`
	tag, err := r.db.Pool.Exec(ctx, q, identityPublicKey)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}
