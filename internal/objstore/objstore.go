// Package objstore defines the durable object storage contract consumed by
// the identity and space layers, plus the path conventions used across
// backends. The vendor behind the interface is deliberately out of scope.
package objstore

import "context"

// Store is upsert-by-path blob storage. It provides no transactional
// isolation; all conflict avoidance lives in the protocols layered on top.
type Store interface {
	// Upload writes data at path. With upsert=false an existing object is an
	// errs.ErrAlreadyExists failure; with upsert=true it is replaced.
	Upload(ctx context.Context, path string, data []byte, upsert bool) error
	// Download returns the object at path or errs.ErrNotFound.
	Download(ctx context.Context, path string) ([]byte, error)
	// List returns names of stored objects under prefix, relative to the
	// prefix, in lexical order.
	List(ctx context.Context, prefix string) ([]string, error)
	// Move renames an object; errs.ErrNotFound if from does not exist.
	Move(ctx context.Context, from, to string) error
	// Remove deletes the given paths. Missing paths are not an error.
	Remove(ctx context.Context, paths []string) error
}
