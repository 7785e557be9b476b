// Package enrich attaches previously stored results to the method leaves of a
// tree. Lookups run concurrently off the owner goroutine; applying them does
// not.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/sourcegraph/conc/pool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/ethereum-optimism/infra/op-explorer/metrics"
	"github.com/ethereum-optimism/infra/op-explorer/tree"
	"github.com/ethereum-optimism/infra/op-explorer/types"
)

const DefaultMaxConcurrency = 16

// ResultProvider looks up the stored result of a method. A nil result with a
// nil error means there is no result.
type ResultProvider interface {
	GetTestResult(ctx context.Context, method *types.TestItem) (*types.TestResult, error)
}

type Config struct {
	Log      log.Logger
	Provider ResultProvider
	// MaxConcurrency bounds the number of in-flight lookups.
	MaxConcurrency int
	// RateLimit caps lookups per second. Zero disables the limit.
	RateLimit float64
	Burst     int
}

// Target pairs a leaf node with the item it held when targets were collected.
// Resolve only reads the item; the node is used as a key.
type Target struct {
	Node *tree.Node
	Item *types.TestItem
}

type Enricher struct {
	log            log.Logger
	provider       ResultProvider
	maxConcurrency int
	limiter        *rate.Limiter
	tracer         trace.Tracer
}

func New(cfg Config) (*Enricher, error) {
	if cfg.Provider == nil {
		return nil, errors.New("result provider is required")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = DefaultMaxConcurrency
	}
	e := &Enricher{
		log:            cfg.Log.New("component", "enricher"),
		provider:       cfg.Provider,
		maxConcurrency: cfg.MaxConcurrency,
		tracer:         otel.Tracer("enricher"),
	}
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		e.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return e, nil
}

// Targets collects the method leaves of the tree. It must run on the goroutine
// that owns the tree.
func Targets(root *tree.Node) []Target {
	if root == nil {
		return nil
	}
	leaves := root.Leaves()
	out := make([]Target, 0, len(leaves))
	for _, l := range leaves {
		out = append(out, Target{Node: l, Item: l.Item()})
	}
	return out
}

type lookup struct {
	node   *tree.Node
	result *types.TestResult
}

// Resolve queries a result for every target. Missing results and failed
// lookups are left out of the returned map. An error is only returned when the
// context ends before all lookups completed.
func (e *Enricher) Resolve(ctx context.Context, targets []Target) (map[*tree.Node]*types.TestResult, error) {
	ctx, span := e.tracer.Start(ctx, "resolve results")
	defer span.End()
	span.SetAttributes(attribute.Int("targets", len(targets)))

	start := time.Now()
	p := pool.NewWithResults[lookup]().
		WithMaxGoroutines(e.maxConcurrency).
		WithContext(ctx)

	for _, t := range targets {
		p.Go(func(ctx context.Context) (lookup, error) {
			if e.limiter != nil {
				if err := e.limiter.Wait(ctx); err != nil {
					return lookup{}, err
				}
			}
			res, err := e.provider.GetTestResult(ctx, t.Item)
			if err != nil {
				if ctx.Err() != nil {
					return lookup{}, ctx.Err()
				}
				e.log.Warn("Failed to look up test result", "test", t.Item.FullName, "err", err)
				metrics.RecordErrorDetails("enrich", err)
				return lookup{}, nil
			}
			return lookup{node: t.Node, result: res}, nil
		})
	}

	found, err := p.Wait()
	out := make(map[*tree.Node]*types.TestResult, len(found))
	for _, f := range found {
		if f.node != nil && f.result != nil {
			out[f.node] = f.result
		}
	}
	metrics.RecordEnrichment(time.Since(start), len(out), len(targets))
	if err != nil {
		return out, fmt.Errorf("resolving results: %w", err)
	}
	e.log.Debug("Resolved test results", "targets", len(targets), "found", len(out))
	return out, nil
}

// Apply attaches resolved results to nodes that are still part of the tree
// rooted at root and returns how many were applied. It must run on the
// goroutine that owns the tree.
func Apply(root *tree.Node, results map[*tree.Node]*types.TestResult) int {
	if root == nil {
		return 0
	}
	n := 0
	for node, res := range results {
		if node.Root() != root {
			continue
		}
		node.SetResult(res)
		n++
	}
	return n
}
