package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spacehost/spacesync/internal/errs"
	"github.com/spacehost/spacesync/internal/model"
)

// FidLinkRepo implements FidLinkRepository using PostgreSQL.
type FidLinkRepo struct{ db *DB }

// NewFidLinkRepo constructs a fid link repository.
func NewFidLinkRepo(db *DB) *FidLinkRepo { return &FidLinkRepo{db: db} }

// Get returns the current link for a fid.
func (r *FidLinkRepo) Get(ctx context.Context, fid int64) (*model.FidLink, error) {
	const q = `
SELECT fid, identity_public_key, signing_public_key, signature, created,
       is_signing_key_valid, signing_key_last_validated_at
FROM fid_registrations WHERE fid=$1`
	row := r.db.Pool.QueryRow(ctx, q, fid)
	var l model.FidLink
	if err := row.Scan(&l.Fid, &l.IdentityPublicKey, &l.SigningPublicKey, &l.Signature,
		&l.Created, &l.IsSigningKeyValid, &l.SigningKeyLastValidatedAt); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, errs.ErrNotFound
	}
	return &l, nil
}

// UpsertNewer inserts or updates the row for link.Fid under a row lock,
// rejecting the write when the stored registration is more recent. The
// created column is monotonically non-decreasing across accepted writes.
func (r *FidLinkRepo) UpsertNewer(ctx context.Context, link *model.FidLink) (err error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = e
		}
	}()

	const sel = `SELECT created FROM fid_registrations WHERE fid=$1 FOR UPDATE`
	const ins = `
INSERT INTO fid_registrations
  (fid, identity_public_key, signing_public_key, signature, created, is_signing_key_valid, signing_key_last_validated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)`
	const upd = `
UPDATE fid_registrations
SET identity_public_key=$2, signing_public_key=$3, signature=$4, created=$5,
    is_signing_key_valid=$6, signing_key_last_validated_at=$7
WHERE fid=$1`

	var existing time.Time
	scanErr := tx.QueryRow(ctx, sel, link.Fid).Scan(&existing)
	switch {
	case scanErr == nil:
		if existing.After(link.Created) {
			return errs.ErrStaleWrite
		}
		_, err = tx.Exec(ctx, upd, link.Fid, link.IdentityPublicKey, link.SigningPublicKey,
			link.Signature, link.Created, link.IsSigningKeyValid, link.SigningKeyLastValidatedAt)
		return err
	case errors.Is(scanErr, pgx.ErrNoRows):
		_, err = tx.Exec(ctx, ins, link.Fid, link.IdentityPublicKey, link.SigningPublicKey,
			link.Signature, link.Created, link.IsSigningKeyValid, link.SigningKeyLastValidatedAt)
		return err
	default:
		return scanErr
	}
}

// ListByIdentity returns links for an identity whose signing key is still valid.
func (r *FidLinkRepo) ListByIdentity(ctx context.Context, identityPublicKey string) ([]model.FidLink, error) {
	const q = `
SELECT fid, identity_public_key, signing_public_key, signature, created,
       is_signing_key_valid, signing_key_last_validated_at
FROM fid_registrations
WHERE identity_public_key=$1 AND is_signing_key_valid
ORDER BY fid ASC`
	rows, err := r.db.Pool.Query(ctx, q, identityPublicKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.FidLink
	for rows.Next() {
		var l model.FidLink
		if err := rows.Scan(&l.Fid, &l.IdentityPublicKey, &l.SigningPublicKey, &l.Signature,
			&l.Created, &l.IsSigningKeyValid, &l.SigningKeyLastValidatedAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
