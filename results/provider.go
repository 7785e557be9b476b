package results

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/log"
	"github.com/pkg/errors"

	"github.com/ethereum-optimism/infra/op-explorer/types"
)

// Provider serves stored results for methods and tells subscribers when new
// results were recorded.
type Provider struct {
	store Store
	log   log.Logger

	mu          sync.Mutex
	subscribers []func()
}

func NewProvider(store Store, logger log.Logger) *Provider {
	if logger == nil {
		logger = log.New()
	}
	return &Provider{store: store, log: logger.New("component", "results")}
}

// GetTestResult returns nil, nil when no result is stored for the method.
func (p *Provider) GetTestResult(ctx context.Context, method *types.TestItem) (*types.TestResult, error) {
	if method == nil || method.Kind != types.KindMethod {
		return nil, nil
	}
	r, err := p.store.Get(ctx, method.FullName)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Record stores the result of the method with the given full name.
func (p *Provider) Record(ctx context.Context, fullName string, r *types.TestResult) error {
	if err := p.store.Put(ctx, fullName, r); err != nil {
		return errors.Wrapf(err, "recording result for %s", fullName)
	}
	return nil
}

// OnUpdate registers fn to be called by NotifyUpdated.
func (p *Provider) OnUpdate(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subscribers = append(p.subscribers, fn)
}

// NotifyUpdated signals that a batch of results has been recorded.
func (p *Provider) NotifyUpdated() {
	p.mu.Lock()
	subs := append([]func(){}, p.subscribers...)
	p.mu.Unlock()

	p.log.Debug("Results updated", "subscribers", len(subs))
	for _, fn := range subs {
		fn()
	}
}

func (p *Provider) Close() error {
	return p.store.Close()
}
