package results

import (
	"context"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"

	"github.com/ethereum-optimism/infra/op-explorer/types"
)

// CachedStore keeps recently read or written results in an LRU cache and
// collapses concurrent reads of the same key into one backend call. Misses
// are not cached.
type CachedStore struct {
	backend Store
	cache   *lru.Cache
	group   singleflight.Group
}

func NewCachedStore(backend Store, size int) (*CachedStore, error) {
	cache, err := lru.New(size)
	if err != nil {
		return nil, errors.Wrap(err, "creating result cache")
	}
	return &CachedStore{backend: backend, cache: cache}, nil
}

func (c *CachedStore) Get(ctx context.Context, key string) (*types.TestResult, error) {
	if v, ok := c.cache.Get(key); ok {
		return v.(*types.TestResult), nil
	}
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		r, err := c.backend.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		c.cache.Add(key, r)
		return r, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*types.TestResult), nil
}

func (c *CachedStore) Put(ctx context.Context, key string, r *types.TestResult) error {
	if err := c.backend.Put(ctx, key, r); err != nil {
		c.cache.Remove(key)
		return err
	}
	c.cache.Add(key, r)
	return nil
}

func (c *CachedStore) Close() error {
	c.cache.Purge()
	return c.backend.Close()
}
