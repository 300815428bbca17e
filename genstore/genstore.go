// Package genstore keeps a generation counter per cache key. A cached response
// is trusted only while the generation it was written under is current;
// invalidation bumps the counter.
package genstore

import (
	"context"
	"time"
)

// Store abstracts where generations live. Missing keys have generation 0.
type Store interface {
	Snapshot(ctx context.Context, key string) (uint64, error)
	SnapshotMany(ctx context.Context, keys []string) (map[string]uint64, error)
	// Bump increments atomically and returns the new generation.
	Bump(ctx context.Context, key string) (uint64, error)
	// Cleanup forgets generations untouched for longer than retention.
	Cleanup(retention time.Duration)
	Close(ctx context.Context) error
}
