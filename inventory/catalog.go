package inventory

import (
	"context"
	"sync"

	"github.com/ethereum-optimism/infra/op-explorer/types"
)

// Provider is satisfied by every inventory source.
type Provider interface {
	GetTestSolution(ctx context.Context, solution string) (*types.TestItem, error)
}

// Catalog wraps a provider and remembers the classes of the latest snapshot,
// so the host can resolve navigation requests to source positions.
type Catalog struct {
	provider Provider

	mu      sync.RWMutex
	classes map[string]*types.TestItem
}

func NewCatalog(p Provider) *Catalog {
	return &Catalog{provider: p, classes: make(map[string]*types.TestItem)}
}

func (c *Catalog) GetTestSolution(ctx context.Context, solution string) (*types.TestItem, error) {
	item, err := c.provider.GetTestSolution(ctx, solution)
	if err != nil {
		return nil, err
	}
	classes := make(map[string]*types.TestItem)
	item.Walk(func(i *types.TestItem) bool {
		if i.Kind == types.KindClass {
			classes[i.FullName] = i
			return false
		}
		return true
	})

	c.mu.Lock()
	c.classes = classes
	c.mu.Unlock()
	return item, nil
}

// LocateClass returns the source of the class with the given full name.
func (c *Catalog) LocateClass(fullName string) (*types.SourceLocation, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	class, ok := c.classes[fullName]
	if !ok || class.Source == nil {
		return nil, false
	}
	return class.Source, true
}

// LocateMethod returns the source of a method of the given class.
func (c *Catalog) LocateMethod(classFullName, method string) (*types.SourceLocation, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	class, ok := c.classes[classFullName]
	if !ok {
		return nil, false
	}
	for _, m := range class.Children {
		if m.Name == method && m.Source != nil {
			return m.Source, true
		}
	}
	return nil, false
}
