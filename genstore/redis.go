package genstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis shares generations between processes that share a cache provider.
// With a TTL, generation keys expire; an expired generation reads as 0 and
// entries written under a higher one self-heal on the next read.
type Redis struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
	owned  bool
}

var _ Store = (*Redis)(nil)

// RedisConfig configures a Redis store. Client is required.
type RedisConfig struct {
	Client    redis.UniversalClient
	Namespace string        // generation keys are "gen:<Namespace>:<key>"
	TTL       time.Duration // 0 keeps generations forever
	OwnClient bool          // Close also closes Client
}

var ErrNilClient = errors.New("genstore: nil redis client")

func NewRedis(cfg RedisConfig) (*Redis, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	return &Redis{rdb: cfg.Client, prefix: "gen:" + cfg.Namespace + ":", ttl: cfg.TTL, owned: cfg.OwnClient}, nil
}

func (s *Redis) Snapshot(ctx context.Context, key string) (uint64, error) {
	v, err := s.rdb.Get(ctx, s.prefix+key).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("genstore: snapshot %s: %w", key, err)
	}
	return v, nil
}

func (s *Redis) SnapshotMany(ctx context.Context, keys []string) (map[string]uint64, error) {
	out := make(map[string]uint64, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.prefix + k
	}
	vals, err := s.rdb.MGet(ctx, full...).Result()
	if err != nil {
		return nil, fmt.Errorf("genstore: snapshot %d keys: %w", len(keys), err)
	}
	for i, v := range vals {
		g, err := parseGen(v)
		if err != nil {
			return nil, fmt.Errorf("genstore: snapshot %s: %w", keys[i], err)
		}
		out[keys[i]] = g
	}
	return out, nil
}

func parseGen(v any) (uint64, error) {
	switch vv := v.(type) {
	case nil:
		return 0, nil
	case string:
		return strconv.ParseUint(vv, 10, 64)
	case []byte:
		return strconv.ParseUint(string(vv), 10, 64)
	default:
		return strconv.ParseUint(fmt.Sprint(vv), 10, 64)
	}
}

// Bump runs INCR, pipelined with EXPIRE when a TTL is configured.
func (s *Redis) Bump(ctx context.Context, key string) (uint64, error) {
	k := s.prefix + key
	if s.ttl <= 0 {
		n, err := s.rdb.Incr(ctx, k).Uint64()
		if err != nil {
			return 0, fmt.Errorf("genstore: bump %s: %w", key, err)
		}
		return n, nil
	}
	var incr *redis.IntCmd
	if _, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, k)
		p.Expire(ctx, k, s.ttl)
		return nil
	}); err != nil {
		return 0, fmt.Errorf("genstore: bump %s: %w", key, err)
	}
	return uint64(incr.Val()), nil
}

// Cleanup is a no-op; Redis expires keys itself when a TTL is set.
func (s *Redis) Cleanup(time.Duration) {}

func (s *Redis) Close(context.Context) error {
	if !s.owned {
		return nil
	}
	if err := s.rdb.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
		return err
	}
	return nil
}
