// Package results persists test results keyed by method full name and serves
// them back to the explorer.
package results

import (
	"context"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/pkg/errors"

	"github.com/ethereum-optimism/infra/op-explorer/metrics"
	"github.com/ethereum-optimism/infra/op-explorer/types"
)

var ErrNotFound = errors.New("test result not found")

// Store is a key value store of test results.
type Store interface {
	// Get returns ErrNotFound when no result is stored under key.
	Get(ctx context.Context, key string) (*types.TestResult, error)
	Put(ctx context.Context, key string, r *types.TestResult) error
	Close() error
}

// Backend names.
const (
	BackendMemory   = "memory"
	BackendLevelDB  = "leveldb"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

const (
	DefaultCacheSize = 4096
	DefaultKeyPrefix = "op-explorer:result:"
)

type Config struct {
	Backend string `toml:"backend"`
	// Path is the LevelDB directory.
	Path string `toml:"path"`
	// URL is the Redis or Postgres connection string.
	URL       string        `toml:"url"`
	KeyPrefix string        `toml:"key_prefix"`
	TTL       time.Duration `toml:"ttl"`
	// CacheSize is the number of results kept in memory in front of the
	// backend. Zero disables the cache for the memory backend only.
	CacheSize int `toml:"cache_size"`
}

func (c *Config) Validate() error {
	switch strings.ToLower(c.Backend) {
	case "", BackendMemory:
	case BackendLevelDB:
		if c.Path == "" {
			return errors.New("leveldb result store requires a path")
		}
	case BackendRedis, BackendPostgres:
		if c.URL == "" {
			return errors.Errorf("%s result store requires a url", c.Backend)
		}
	default:
		return errors.Errorf("unknown result store backend %q", c.Backend)
	}
	if c.CacheSize < 0 {
		return errors.New("cache size must not be negative")
	}
	return nil
}

// Open connects to the configured backend. Non memory backends are fronted by
// an LRU cache.
func Open(ctx context.Context, cfg Config, logger log.Logger) (Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.New()
	}
	backend := strings.ToLower(cfg.Backend)
	if backend == "" {
		backend = BackendMemory
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultKeyPrefix
	}

	var (
		store Store
		err   error
	)
	switch backend {
	case BackendMemory:
		return Instrument(NewMemoryStore(), BackendMemory), nil
	case BackendLevelDB:
		store, err = OpenLevelDB(cfg.Path)
	case BackendRedis:
		store, err = DialRedis(ctx, cfg.URL, cfg.KeyPrefix, cfg.TTL)
	case BackendPostgres:
		store, err = ConnectPostgres(ctx, cfg.URL)
	}
	if err != nil {
		return nil, err
	}
	logger.Info("Opened result store", "backend", backend)

	store = Instrument(store, backend)
	size := cfg.CacheSize
	if size == 0 {
		size = DefaultCacheSize
	}
	return NewCachedStore(store, size)
}

// instrumented records a metric for every call of the wrapped store.
type instrumented struct {
	Store
	backend string
}

func Instrument(s Store, backend string) Store {
	return &instrumented{Store: s, backend: backend}
}

func (s *instrumented) Get(ctx context.Context, key string) (*types.TestResult, error) {
	r, err := s.Store.Get(ctx, key)
	switch {
	case err == nil:
		metrics.RecordStoreRequest(s.backend, "get", "hit")
	case errors.Is(err, ErrNotFound):
		metrics.RecordStoreRequest(s.backend, "get", "miss")
	default:
		metrics.RecordStoreRequest(s.backend, "get", "error")
	}
	return r, err
}

func (s *instrumented) Put(ctx context.Context, key string, r *types.TestResult) error {
	err := s.Store.Put(ctx, key, r)
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.RecordStoreRequest(s.backend, "put", result)
	return err
}
