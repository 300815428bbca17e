// Package cache keeps request responses in a byte provider, guarded by a
// generation per key.
//
// A writer snapshots the key's generation before issuing the request and
// writes the response with that generation. Invalidate bumps the generation,
// so a response that was in flight during an invalidation is never cached and
// an entry written before it is never served.
package cache

import (
	"context"
	"time"

	"github.com/unkn0wn-root/reqrs"
	"github.com/unkn0wn-root/reqrs/codec"
	"github.com/unkn0wn-root/reqrs/genstore"
	"github.com/unkn0wn-root/reqrs/provider"
)

// SetCostFunc computes the provider cost of an entry. Only cost-aware
// providers such as ristretto use it.
type SetCostFunc func(storageKey string, raw []byte, isBulk bool, bulkCount int) int64

// Cache stores values of type V. Safe for concurrent use.
type Cache[V any] interface {
	Enabled() bool
	Close(ctx context.Context) error

	Get(ctx context.Context, key string) (v V, ok bool, err error)
	// SetWithGen writes value only if key is still at observedGen. A zero ttl
	// uses Options.DefaultTTL.
	SetWithGen(ctx context.Context, key string, value V, observedGen uint64, ttl time.Duration) error
	// Invalidate bumps the generation and deletes the entry. It fails only when
	// both steps fail.
	Invalidate(ctx context.Context, key string) error

	// GetBulk looks up a set of keys. Order and duplicates in keys do not
	// matter; missing lists the unique keys without a value, in request order.
	GetBulk(ctx context.Context, keys []string) (values map[string]V, missing []string, err error)
	// SetBulkWithGens writes items as one bulk entry plus one entry per key.
	// If any generation moved, only the still-current singles are written.
	SetBulkWithGens(ctx context.Context, items map[string]V, observedGens map[string]uint64, ttl time.Duration) error

	// SnapshotGen reads the generation to pass to SetWithGen. A generation
	// store failure reads as 0, which can only cause a write to be skipped.
	SnapshotGen(ctx context.Context, key string) uint64
	SnapshotGens(ctx context.Context, keys []string) map[string]uint64
}

// Options configure a Cache. Namespace, Provider and Codec are required.
type Options[V any] struct {
	Namespace string // isolates keys, e.g. "todos"
	Provider  provider.Provider
	Codec     codec.Codec[V]

	Logger reqrs.Logger // if nil, NopLogger is used
	Hooks  Hooks        // if nil, NopHooks is used

	DefaultTTL time.Duration // singles; 0 => 10m
	BulkTTL    time.Duration // bulks; 0 => 10m
	// MaxAge bounds how old a served entry may be regardless of provider TTL
	// support. 0 disables the check.
	MaxAge time.Duration

	// GenStore holds generations. nil => an in-process genstore.Local owned
	// and closed by the cache. Use genstore.Redis with a shared provider.
	GenStore        genstore.Store
	CleanupInterval time.Duration // sweep of the default GenStore; 0 => 1h
	GenRetention    time.Duration // 0 => 30d

	ComputeSetCost SetCostFunc // nil => cost 1
	DisableBulk    bool
	Disabled       bool

	now func() time.Time
}

func New[V any](opts Options[V]) (Cache[V], error) {
	return newCache(opts)
}
