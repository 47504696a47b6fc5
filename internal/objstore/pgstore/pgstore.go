// Package pgstore implements objstore.Store on PostgreSQL, one row per path.
// It is the durable backend used by the registry server; clients talking to a
// hosted bucket use a vendor adapter satisfying the same interface.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/spacehost/spacesync/internal/errs"
	"github.com/spacehost/spacesync/internal/objstore"
)

// Querier is the subset of a pgx pool the store needs. It is implemented by
// *pgxpool.Pool and pgxmock.PgxPoolIface.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists objects in the objects table.
type Store struct{ db Querier }

var _ objstore.Store = (*Store)(nil)

// New constructs a store over an existing pool.
func New(db Querier) *Store { return &Store{db: db} }

func isUniqueViolation(err error) bool {
	var pg *pgconn.PgError
	return errors.As(err, &pg) && pg.Code == "23505"
}

// Upload writes data at path, replacing an existing object only when upsert.
func (s *Store) Upload(ctx context.Context, path string, data []byte, upsert bool) error {
	const ins = `INSERT INTO objects (path, data, updated_at) VALUES ($1, $2, now())`
	const ups = ins + ` ON CONFLICT (path) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`
	q := ins
	if upsert {
		q = ups
	}
	if _, err := s.db.Exec(ctx, q, path, data); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("upload %s: %w", path, errs.ErrAlreadyExists)
		}
		return fmt.Errorf("upload %s: %v: %w", path, err, errs.ErrStorage)
	}
	return nil
}

// Download returns the object at path.
func (s *Store) Download(ctx context.Context, path string) ([]byte, error) {
	const q = `SELECT data FROM objects WHERE path = $1`
	var data []byte
	if err := s.db.QueryRow(ctx, q, path).Scan(&data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("download %s: %w", path, errs.ErrNotFound)
		}
		return nil, fmt.Errorf("download %s: %v: %w", path, err, errs.ErrStorage)
	}
	return data, nil
}

// List returns object names under prefix, relative to it, in lexical order.
// The prefix is matched literally; LIKE would treat % and _ as wildcards.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	const q = `SELECT path FROM objects WHERE starts_with(path, $1) ORDER BY path`
	rows, err := s.db.Query(ctx, q, prefix)
	if err != nil {
		return nil, fmt.Errorf("list %s: %v: %w", prefix, err, errs.ErrStorage)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("list %s: %v: %w", prefix, err, errs.ErrStorage)
		}
		names = append(names, strings.TrimPrefix(p, prefix))
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("list %s: %v: %w", prefix, rows.Err(), errs.ErrStorage)
	}
	return names, nil
}

// Move renames an object in place.
func (s *Store) Move(ctx context.Context, from, to string) error {
	const q = `UPDATE objects SET path = $2, updated_at = now() WHERE path = $1`
	tag, err := s.db.Exec(ctx, q, from, to)
	if err != nil {
		return fmt.Errorf("move %s: %v: %w", from, err, errs.ErrStorage)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("move %s: %w", from, errs.ErrNotFound)
	}
	return nil
}

// Remove deletes the given paths; missing paths are not an error.
func (s *Store) Remove(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	const q = `DELETE FROM objects WHERE path = ANY($1)`
	if _, err := s.db.Exec(ctx, q, paths); err != nil {
		return fmt.Errorf("remove: %v: %w", err, errs.ErrStorage)
	}
	return nil
}
