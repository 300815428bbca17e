// Package provider defines the byte store behind the response cache.
//
// Providers must be byte-for-byte transparent: Get returns exactly the bytes
// given to Set. The cache owns the "single:<ns>:" and "bulk:<ns>:" key prefixes;
// foreign values written there fail wire validation and get deleted.
package provider

import (
	"context"
	"time"
)

// Provider is a concurrency-safe byte store with TTLs.
type Provider interface {
	// Get returns (value, true, nil) on hit and (nil, false, nil) on miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value. cost may be ignored. A non-positive ttl means no
	// expiry. ok is false when the store dropped the write under pressure.
	Set(ctx context.Context, key string, value []byte, cost int64, ttl time.Duration) (ok bool, err error)

	Del(ctx context.Context, key string) error
	Close(ctx context.Context) error
}

// Shared is implemented by providers visible to other processes. Caching with
// such a provider needs a generation store shared the same way.
type Shared interface {
	Shared() bool
}

// IsShared reports whether p declares itself shared.
func IsShared(p Provider) bool {
	s, ok := p.(Shared)
	return ok && s.Shared()
}
