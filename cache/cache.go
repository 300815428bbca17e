package cache

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/unkn0wn-root/reqrs"
	"github.com/unkn0wn-root/reqrs/codec"
	"github.com/unkn0wn-root/reqrs/genstore"
	"github.com/unkn0wn-root/reqrs/internal/util"
	"github.com/unkn0wn-root/reqrs/internal/wire"
	"github.com/unkn0wn-root/reqrs/provider"
)

const (
	defaultTTL          = 10 * time.Minute
	defaultSweep        = time.Hour
	defaultGenRetention = 30 * 24 * time.Hour
)

type cache[V any] struct {
	ns       string
	provider provider.Provider
	codec    codec.Codec[V]
	log      reqrs.Logger
	hooks    Hooks

	enabled    bool
	bulk       bool
	defaultTTL time.Duration
	bulkTTL    time.Duration
	maxAge     time.Duration
	cost       SetCostFunc
	now        func() time.Time

	gen    genstore.Store
	ownGen bool
}

func newCache[V any](opts Options[V]) (*cache[V], error) {
	switch {
	case opts.Namespace == "":
		return nil, &reqrs.InvariantError{Code: reqrs.CodeBadConfig, Message: "cache: namespace is required"}
	case opts.Provider == nil:
		return nil, &reqrs.InvariantError{Code: reqrs.CodeBadConfig, Slice: opts.Namespace, Message: "cache: provider is required"}
	case opts.Codec == nil:
		return nil, &reqrs.InvariantError{Code: reqrs.CodeBadConfig, Slice: opts.Namespace, Message: "cache: codec is required"}
	}

	c := &cache[V]{
		ns:         opts.Namespace,
		provider:   opts.Provider,
		codec:      opts.Codec,
		log:        reqrs.NopLogger{},
		hooks:      NopHooks{},
		enabled:    !opts.Disabled,
		bulk:       !opts.DisableBulk,
		defaultTTL: util.Coalesce(opts.DefaultTTL, defaultTTL),
		bulkTTL:    util.Coalesce(opts.BulkTTL, defaultTTL),
		maxAge:     opts.MaxAge,
		cost:       opts.ComputeSetCost,
		now:        opts.now,
		gen:        opts.GenStore,
	}
	if opts.Logger != nil {
		c.log = opts.Logger
	}
	if opts.Hooks != nil {
		c.hooks = opts.Hooks
	}
	if c.cost == nil {
		c.cost = func(string, []byte, bool, int) int64 { return 1 }
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.gen == nil {
		c.gen = genstore.NewLocal(
			util.Coalesce(opts.CleanupInterval, defaultSweep),
			util.Coalesce(opts.GenRetention, defaultGenRetention),
		)
		c.ownGen = true
	}

	if _, local := c.gen.(*genstore.Local); local && provider.IsShared(c.provider) {
		c.hooks.LocalGenWithSharedProvider(c.ns)
		c.log.Warn("shared provider with in-process generations; invalidations stay local",
			reqrs.Fields{"namespace": c.ns})
	}
	return c, nil
}

func (c *cache[V]) Enabled() bool { return c.enabled }

// Close closes the generation store if the cache created it, then the provider.
func (c *cache[V]) Close(ctx context.Context) error {
	if c.ownGen {
		_ = c.gen.Close(ctx)
	}
	return c.provider.Close(ctx)
}

func (c *cache[V]) singleKey(key string) string { return "single:" + c.ns + ":" + key }

func (c *cache[V]) bulkKey(sortedUnique []string) string {
	return util.BulkKeySorted("bulk:"+c.ns, sortedUnique)
}

func (c *cache[V]) expired(storedAt time.Time) bool {
	return c.maxAge > 0 && c.now().Sub(storedAt) > c.maxAge
}

func (c *cache[V]) snapshot(ctx context.Context, storageKey string) (uint64, error) {
	g, err := c.gen.Snapshot(ctx, storageKey)
	if err != nil {
		c.hooks.GenSnapshotError(1, err)
		c.log.Warn("generation snapshot failed", reqrs.Fields{"key": storageKey, "err": err})
	}
	return g, err
}

func (c *cache[V]) snapshotMany(ctx context.Context, storageKeys []string) (map[string]uint64, error) {
	m, err := c.gen.SnapshotMany(ctx, storageKeys)
	if err != nil {
		c.hooks.GenSnapshotError(len(storageKeys), err)
		c.log.Warn("generation snapshot failed", reqrs.Fields{"keys": len(storageKeys), "err": err})
	}
	return m, err
}

func (c *cache[V]) heal(ctx context.Context, storageKey, reason string) {
	_ = c.provider.Del(ctx, storageKey)
	c.hooks.SelfHealSingle(storageKey, reason)
	c.log.Debug("dropped cache entry", reqrs.Fields{"key": storageKey, "reason": reason})
}

func (c *cache[V]) Get(ctx context.Context, key string) (V, bool, error) {
	var zero V
	if !c.enabled {
		return zero, false, nil
	}
	k := c.singleKey(key)
	raw, ok, err := c.provider.Get(ctx, k)
	if err != nil || !ok {
		return zero, false, err
	}
	e, err := wire.DecodeSingle(raw)
	if err != nil {
		c.heal(ctx, k, "corrupt")
		return zero, false, nil
	}
	cur, err := c.snapshot(ctx, k)
	if err != nil {
		// cannot prove the entry current; leave it for a later read
		return zero, false, nil
	}
	if e.Gen != cur {
		c.heal(ctx, k, "gen_mismatch")
		return zero, false, nil
	}
	if c.expired(e.StoredAt) {
		c.heal(ctx, k, "expired")
		return zero, false, nil
	}
	v, err := c.codec.Decode(e.Payload)
	if err != nil {
		c.heal(ctx, k, "value_decode")
		return zero, false, nil
	}
	return v, true, nil
}

func (c *cache[V]) SetWithGen(ctx context.Context, key string, value V, observedGen uint64, ttl time.Duration) error {
	if !c.enabled {
		return nil
	}
	err := c.setSingle(ctx, c.singleKey(key), value, observedGen, util.Coalesce(ttl, c.defaultTTL))
	if err != nil {
		c.log.Warn("cache write failed", reqrs.Fields{"key": key, "err": err})
	}
	return err
}

func (c *cache[V]) setSingle(ctx context.Context, k string, value V, observedGen uint64, ttl time.Duration) error {
	cur, err := c.snapshot(ctx, k)
	if err != nil {
		return nil
	}
	if cur != observedGen {
		c.hooks.StaleWriteSkipped(k)
		c.log.Debug("stale write skipped", reqrs.Fields{"key": k, "observed": observedGen, "current": cur})
		return nil
	}
	payload, err := c.codec.Encode(value)
	if err != nil {
		return fmt.Errorf("cache: encode %s: %w", k, err)
	}
	raw := wire.EncodeSingle(wire.Single{Gen: observedGen, StoredAt: c.now(), Payload: payload})
	ok, err := c.provider.Set(ctx, k, raw, c.cost(k, raw, false, 1), ttl)
	if err != nil {
		return err
	}
	if !ok {
		c.hooks.ProviderSetRejected(k, false)
		c.log.Debug("provider rejected write", reqrs.Fields{"key": k})
	}
	return nil
}

func (c *cache[V]) Invalidate(ctx context.Context, key string) error {
	if !c.enabled {
		return nil
	}
	k := c.singleKey(key)
	gen, bumpErr := c.gen.Bump(ctx, k)
	if bumpErr != nil {
		c.hooks.GenBumpError(k, bumpErr)
	}
	delErr := c.provider.Del(ctx, k)

	switch {
	case bumpErr != nil && delErr != nil:
		c.hooks.InvalidateOutage(key, bumpErr, delErr)
		c.log.Error("invalidate failed", reqrs.Fields{"key": key, "bumpErr": bumpErr, "delErr": delErr})
		return &InvalidateError{Key: key, BumpErr: bumpErr, DelErr: delErr}
	case bumpErr != nil:
		// entry is gone, but an in-flight response may still be written
		c.log.Warn("invalidate: generation bump failed", reqrs.Fields{"key": key, "err": bumpErr})
	case delErr != nil:
		// entry stays until read, where the new generation rejects it
		c.log.Warn("invalidate: delete failed", reqrs.Fields{"key": key, "err": delErr})
	default:
		c.log.Debug("invalidated", reqrs.Fields{"key": key, "gen": gen})
	}
	return nil
}

// uniqueSorted returns the distinct keys in ascending order.
func uniqueSorted(keys []string) []string {
	s := slices.Clone(keys)
	slices.Sort(s)
	return slices.Compact(s)
}

// uniqueInOrder returns the distinct keys in first-seen order.
func uniqueInOrder(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, dup := seen[k]; !dup {
			seen[k] = struct{}{}
			out = append(out, k)
		}
	}
	return out
}

func (c *cache[V]) GetBulk(ctx context.Context, keys []string) (map[string]V, []string, error) {
	out := make(map[string]V, len(keys))
	want := uniqueInOrder(keys)
	if !c.enabled {
		return out, want, nil
	}
	if len(want) == 0 {
		return out, nil, nil
	}

	if c.bulk {
		if vals, ok := c.readBulk(ctx, want); ok {
			var missing []string
			for _, k := range want {
				if _, hit := vals[k]; hit {
					out[k] = vals[k]
				} else {
					missing = append(missing, k)
				}
			}
			return out, missing, nil
		}
	}

	var missing []string
	for _, k := range want {
		v, ok, err := c.Get(ctx, k)
		if err != nil {
			c.log.Warn("bulk fallback: provider read failed", reqrs.Fields{"key": k, "err": err})
		}
		if ok {
			out[k] = v
		} else {
			missing = append(missing, k)
		}
	}
	return out, missing, nil
}

// readBulk serves want from its bulk entry. ok is false when there is no
// usable entry and the caller must fall back to singles.
func (c *cache[V]) readBulk(ctx context.Context, want []string) (map[string]V, bool) {
	sorted := uniqueSorted(want)
	bk := c.bulkKey(sorted)
	raw, hit, err := c.provider.Get(ctx, bk)
	if err != nil || !hit {
		return nil, false
	}

	reject := func(reason string, drop bool) (map[string]V, bool) {
		if drop {
			_ = c.provider.Del(ctx, bk)
		}
		c.hooks.BulkRejected(c.ns, len(sorted), reason)
		c.log.Debug("bulk entry rejected", reqrs.Fields{"key": bk, "reason": reason})
		return nil, false
	}

	storedAt, items, err := wire.DecodeBulk(raw)
	if err != nil {
		return reject("decode_error", true)
	}
	if c.expired(storedAt) {
		return reject("expired", true)
	}
	byKey := make(map[string]wire.BulkItem, len(items))
	for _, it := range items {
		byKey[it.Key] = it
	}
	ok, err := c.bulkValid(ctx, sorted, byKey)
	switch {
	case err != nil:
		return reject("snapshot_error", false)
	case !ok:
		return reject("invalid_or_stale", true)
	}

	vals := make(map[string]V, len(sorted))
	for _, k := range sorted {
		it := byKey[k]
		v, err := c.codec.Decode(it.Payload)
		if err != nil {
			continue
		}
		vals[k] = v
		// warm the single so lookups of this key alone hit too
		_ = c.setSingle(ctx, c.singleKey(k), v, it.Gen, c.defaultTTL)
	}
	return vals, true
}

// bulkValid reports whether every requested key is in the bulk entry at its
// current generation. Extra members are ignored.
func (c *cache[V]) bulkValid(ctx context.Context, sorted []string, byKey map[string]wire.BulkItem) (bool, error) {
	storage := make([]string, len(sorted))
	for i, k := range sorted {
		if _, ok := byKey[k]; !ok {
			return false, nil
		}
		storage[i] = c.singleKey(k)
	}
	gens, err := c.snapshotMany(ctx, storage)
	if err != nil {
		return false, err
	}
	for i, k := range sorted {
		if gens[storage[i]] != byKey[k].Gen {
			return false, nil
		}
	}
	return true, nil
}

func (c *cache[V]) SetBulkWithGens(ctx context.Context, items map[string]V, observedGens map[string]uint64, ttl time.Duration) error {
	if !c.enabled || len(items) == 0 {
		return nil
	}
	ttl = util.Coalesce(ttl, c.bulkTTL)

	keys := make([]string, 0, len(items))
	for k := range items {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	if c.bulk && c.gensCurrent(ctx, keys, observedGens) {
		if err := c.writeBulk(ctx, keys, items, observedGens, ttl); err != nil {
			c.log.Warn("bulk cache write failed", reqrs.Fields{"namespace": c.ns, "keys": len(keys), "err": err})
			return err
		}
	}

	// singles re-check their own generation, so a partial race still caches
	// the keys that did not move
	for _, k := range keys {
		obs, ok := observedGens[k]
		if !ok {
			continue
		}
		if err := c.setSingle(ctx, c.singleKey(k), items[k], obs, c.defaultTTL); err != nil {
			c.log.Warn("seeding single failed", reqrs.Fields{"key": k, "err": err})
		}
	}
	return nil
}

func (c *cache[V]) gensCurrent(ctx context.Context, keys []string, observed map[string]uint64) bool {
	storage := make([]string, len(keys))
	for i, k := range keys {
		storage[i] = c.singleKey(k)
	}
	cur, err := c.snapshotMany(ctx, storage)
	if err != nil {
		return false
	}
	for i, k := range keys {
		obs, ok := observed[k]
		if !ok || cur[storage[i]] != obs {
			c.hooks.StaleWriteSkipped(c.bulkKey(keys))
			c.log.Debug("bulk write skipped", reqrs.Fields{"namespace": c.ns, "key": k})
			return false
		}
	}
	return true
}

func (c *cache[V]) writeBulk(ctx context.Context, sortedKeys []string, items map[string]V, gens map[string]uint64, ttl time.Duration) error {
	entries := make([]wire.BulkItem, len(sortedKeys))
	for i, k := range sortedKeys {
		payload, err := c.codec.Encode(items[k])
		if err != nil {
			return fmt.Errorf("cache: encode %s: %w", k, err)
		}
		entries[i] = wire.BulkItem{Key: k, Gen: gens[k], Payload: payload}
	}
	raw, err := wire.EncodeBulk(c.now(), entries)
	if err != nil {
		return err
	}
	bk := c.bulkKey(sortedKeys)
	ok, err := c.provider.Set(ctx, bk, raw, c.cost(bk, raw, true, len(entries)), ttl)
	if err != nil {
		return err
	}
	if !ok {
		c.hooks.ProviderSetRejected(bk, true)
		c.log.Debug("provider rejected bulk write", reqrs.Fields{"key": bk})
	}
	return nil
}

func (c *cache[V]) SnapshotGen(ctx context.Context, key string) uint64 {
	g, _ := c.snapshot(ctx, c.singleKey(key))
	return g
}

func (c *cache[V]) SnapshotGens(ctx context.Context, keys []string) map[string]uint64 {
	out := make(map[string]uint64, len(keys))
	if len(keys) == 0 {
		return out
	}
	storage := make([]string, len(keys))
	for i, k := range keys {
		storage[i] = c.singleKey(k)
	}
	m, err := c.snapshotMany(ctx, storage)
	for i, k := range keys {
		if err != nil {
			out[k] = 0
			continue
		}
		out[k] = m[storage[i]]
	}
	return out
}
