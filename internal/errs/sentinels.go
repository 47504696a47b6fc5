// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrMalformedInput indicates a shape/type failure caught before any crypto or I/O.
	ErrMalformedInput = errors.New("malformed input")

	// ErrInvalidSignature indicates signature verification failure. Deliberately
	// not subdivided (missing field, bad encoding, bad signature all map here)
	// so callers cannot tell which part failed.
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrStaleWrite indicates a causally-older write was rejected.
	ErrStaleWrite = errors.New("less recent than current registration")

	// ErrCorruptIdentity indicates a decrypted identity key failed its self-check.
	ErrCorruptIdentity = errors.New("corrupt identity")

	// ErrAlreadyExists indicates a unique constraint violation.
	ErrAlreadyExists = errors.New("already exists")

	// ErrStorage indicates an I/O failure from the durable object store.
	ErrStorage = errors.New("storage failure")
)
