package limiter

import (
	"context"
	"crypto/sha256"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PG is a PostgreSQL-backed limiter with a sliding window and lockout. The
// subject is whatever the caller throttles on (a wallet address for identity
// registrations, an identity public key for fid links).
type PG struct {
	pool      pgxQuerier
	window    time.Duration
	maxWrites int
	blockFor  time.Duration
}

type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPG constructs a PostgreSQL-backed limiter.
func NewPG(pool *pgxpool.Pool, window time.Duration, maxWrites int, blockFor time.Duration) *PG {
	return &PG{pool: pool, window: window, maxWrites: maxWrites, blockFor: blockFor}
}

// NewPGWithQuerier constructs a PostgreSQL-backed limiter over any querier.
func NewPGWithQuerier(q pgxQuerier, window time.Duration, maxWrites int, blockFor time.Duration) *PG {
	return &PG{pool: q, window: window, maxWrites: maxWrites, blockFor: blockFor}
}

// HashIP returns a stable hash for an IP string to avoid storing raw addresses.
func HashIP(ip string) []byte {
	h := sha256.Sum256([]byte(ip))
	return h[:]
}

// Allow counts the write attempt for (subject, ip). A subject still inside a
// block is refused with the remaining duration. Filling the window places a
// new block.
func (l *PG) Allow(ctx context.Context, subject string, ipHash []byte) (bool, time.Duration, error) {
	const sel = `SELECT blocked_until FROM write_limiter WHERE subject=$1 AND ip_hash=$2`
	var blockedUntil time.Time
	err := l.pool.QueryRow(ctx, sel, subject, ipHash).Scan(&blockedUntil)
	switch err {
	case nil:
		if blockedUntil.After(time.Now()) {
			return false, time.Until(blockedUntil), nil
		}
	case pgx.ErrNoRows:
		// first write from this pair
	default:
		return false, 0, err
	}

	const upsert = `
INSERT INTO write_limiter (subject, ip_hash, write_count, blocked_until, updated_at)
VALUES ($1,$2,1,'epoch',now())
ON CONFLICT (subject, ip_hash) DO UPDATE
SET
  write_count = CASE WHEN now() - write_limiter.updated_at > $3::interval THEN 1 ELSE write_limiter.write_count + 1 END,
  updated_at = now()
RETURNING write_count`
	var writes int
	if err := l.pool.QueryRow(ctx, upsert, subject, ipHash, l.window).Scan(&writes); err != nil {
		return false, 0, err
	}
	if writes > l.maxWrites {
		blockUntil := time.Now().Add(l.blockFor)
		const upd = `UPDATE write_limiter SET blocked_until=$3 WHERE subject=$1 AND ip_hash=$2`
		if _, err := l.pool.Exec(ctx, upd, subject, ipHash, blockUntil); err != nil {
			return false, 0, err
		}
		return false, l.blockFor, nil
	}
	return true, 0, nil
}
