// Package limiter throttles registry writes per subject and source address.
package limiter

import (
	"context"
	"time"
)

// Limiter controls write attempts against the registry and temporary blocks.
type Limiter interface {
	// Allow counts the write attempt and reports whether it may proceed,
	// with an optional retry-after when blocked.
	Allow(ctx context.Context, subject string, ipHash []byte) (bool, time.Duration, error)
}
