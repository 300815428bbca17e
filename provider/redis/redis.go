// Package redis adapts a go-redis client to provider.Provider. The provider is
// shared between processes; pair it with genstore.Redis.
package redis

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/reqrs/provider"
)

var ErrNilClient = errors.New("redis provider: nil client")

type Config struct {
	Client    goredis.UniversalClient
	OwnClient bool // Close also closes Client
}

type Provider struct {
	rdb   goredis.UniversalClient
	owned bool
}

var (
	_ provider.Provider = (*Provider)(nil)
	_ provider.Shared   = (*Provider)(nil)
)

func New(cfg Config) (*Provider, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	return &Provider{rdb: cfg.Client, owned: cfg.OwnClient}, nil
}

func (p *Provider) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := p.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (p *Provider) Set(ctx context.Context, key string, value []byte, _ int64, ttl time.Duration) (bool, error) {
	if ttl < 0 {
		ttl = 0
	}
	if err := p.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return false, err
	}
	return true, nil
}

func (p *Provider) Del(ctx context.Context, key string) error {
	return p.rdb.Del(ctx, key).Err()
}

func (p *Provider) Shared() bool { return true }

func (p *Provider) Close(context.Context) error {
	if !p.owned {
		return nil
	}
	if err := p.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
		return err
	}
	return nil
}
