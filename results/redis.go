package results

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/ethereum-optimism/infra/op-explorer/types"
)

type RedisStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// DialRedis connects to url and checks the connection.
func DialRedis(ctx context.Context, url, prefix string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "parsing redis url")
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "error connecting to redis")
	}
	return NewRedisStore(client, prefix, ttl), nil
}

// NewRedisStore stores results under prefix+key. A zero ttl keeps them
// forever.
func NewRedisStore(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (r *RedisStore) Get(ctx context.Context, key string) (*types.TestResult, error) {
	b, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading result %s", key)
	}
	return decodeResult(b)
}

func (r *RedisStore) Put(ctx context.Context, key string, res *types.TestResult) error {
	b, err := encodeResult(res)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.prefix+key, b, r.ttl).Err(); err != nil {
		return errors.Wrapf(err, "writing result %s", key)
	}
	return nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
