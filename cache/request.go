package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/unkn0wn-root/reqrs"
	"github.com/unkn0wn-root/reqrs/subscription"
)

// Request wraps fn in a read-through cache keyed by keyOf(payload). The
// generation is read before fn runs, so a response that races an Invalidate of
// the same key is returned to the caller but never cached. Cache failures are
// logged and never fail the request.
func Request[P, V any](c Cache[V], keyOf func(P) string, fn func(context.Context, P) (V, error)) reqrs.RequestFunc {
	return reqrs.Request(func(ctx context.Context, p P) (V, error) {
		if !c.Enabled() {
			return fn(ctx, p)
		}
		key := keyOf(p)
		if v, ok, err := c.Get(ctx, key); err == nil && ok {
			return v, nil
		}
		gen := c.SnapshotGen(ctx, key)
		v, err := fn(ctx, p)
		if err != nil {
			return v, err
		}
		_ = c.SetWithGen(ctx, key, v, gen, 0)
		return v, nil
	})
}

// RequestMany wraps a batch fetch. The payload is a []string of keys and the
// result is a []V in the same order. Only the keys missing from the cache are
// passed to fn; a key fn does not return fails the request.
func RequestMany[V any](c Cache[V], fn func(ctx context.Context, keys []string) (map[string]V, error)) reqrs.RequestFunc {
	return reqrs.Request(func(ctx context.Context, keys []string) ([]V, error) {
		found, missing, _ := c.GetBulk(ctx, keys)
		if len(missing) > 0 {
			gens := c.SnapshotGens(ctx, missing)
			fetched, err := fn(ctx, missing)
			if err != nil {
				return nil, err
			}
			for _, k := range missing {
				v, ok := fetched[k]
				if !ok {
					return nil, reqrs.NewRequestError(fmt.Sprintf("no result for key %q", k), k)
				}
				found[k] = v
			}
			if c.Enabled() {
				_ = c.SetBulkWithGens(ctx, pick(found, keys), gens, 0)
			}
		}

		out := make([]V, len(keys))
		for i, k := range keys {
			out[i] = found[k]
		}
		return out, nil
	})
}

// pick restricts m to keys. Bulk entries only cover the keys that were asked for.
func pick[V any](m map[string]V, keys []string) map[string]V {
	out := make(map[string]V, len(keys))
	for _, k := range keys {
		if v, ok := m[k]; ok {
			out[k] = v
		}
	}
	return out
}

// Invalidator is the part of a Cache that InvalidateOn needs.
type Invalidator interface {
	Invalidate(ctx context.Context, key string) error
}

// Subscriber registers subscriptions. *subscription.Bus implements it.
type Subscriber interface {
	Subscribe(s subscription.Subscription) (subscription.Handle, error)
}

// InvalidateOn invalidates keys(payload) after every successful dispatch of
// action, typically one dispatched by a command's Connect. Invalidate failures
// abort the rest of the dispatch chain like any other handler error.
func InvalidateOn(bus Subscriber, action string, c Invalidator, keys func(payload any) []string) (subscription.Handle, error) {
	if keys == nil {
		return subscription.Handle{}, &reqrs.InvariantError{
			Code:    reqrs.CodeBadConfig,
			Message: "cache: InvalidateOn needs a key function for " + action,
		}
	}
	return bus.Subscribe(subscription.Subscription{
		Action: action,
		Stage:  subscription.After,
		Name:   "cache-invalidate:" + action,
		Handler: func(ctx context.Context, _ reqrs.Dispatcher, payload any, _ reqrs.RootState) error {
			var errs []error
			for _, k := range keys(payload) {
				if err := c.Invalidate(ctx, k); err != nil {
					errs = append(errs, err)
				}
			}
			return errors.Join(errs...)
		},
	})
}
