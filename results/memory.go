package results

import (
	"context"
	"sync"

	"github.com/ethereum-optimism/infra/op-explorer/types"
)

type MemoryStore struct {
	mu      sync.RWMutex
	results map[string]*types.TestResult
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{results: make(map[string]*types.TestResult)}
}

func (m *MemoryStore) Get(_ context.Context, key string) (*types.TestResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.results[key]
	if !ok {
		return nil, ErrNotFound
	}
	return r, nil
}

func (m *MemoryStore) Put(_ context.Context, key string, r *types.TestResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[key] = r
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}
