package repository

import (
	"context"

	"github.com/spacehost/spacesync/internal/model"
)

// FidLinkRepository stores fid-to-identity bindings, one row per fid.
type FidLinkRepository interface {
	// Get returns the current link for a fid.
	Get(ctx context.Context, fid int64) (*model.FidLink, error)
	// UpsertNewer inserts or replaces the row for link.Fid, but only if the
	// stored Created timestamp is not after link.Created; otherwise it fails
	// with errs.ErrStaleWrite and leaves the row unchanged.
	UpsertNewer(ctx context.Context, link *model.FidLink) error
	// ListByIdentity returns fids linked to an identity whose signing key is
	// still marked valid.
	ListByIdentity(ctx context.Context, identityPublicKey string) ([]model.FidLink, error)
}
