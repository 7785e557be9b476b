// Package orchestrator drives the build and test run state machine. It owns
// the test tree and the state group index and serializes every mutation of
// them on a single goroutine.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/ethereum-optimism/infra/op-explorer/enrich"
	"github.com/ethereum-optimism/infra/op-explorer/groups"
	"github.com/ethereum-optimism/infra/op-explorer/notify"
	"github.com/ethereum-optimism/infra/op-explorer/reporting"
	"github.com/ethereum-optimism/infra/op-explorer/tree"
)

// RunnerState is the state of the build and test machine.
type RunnerState int

const (
	Ready RunnerState = iota
	Building
	Testing
)

func (s RunnerState) String() string {
	switch s {
	case Ready:
		return "ready"
	case Building:
		return "building"
	case Testing:
		return "testing"
	default:
		return fmt.Sprintf("runnerState(%d)", int(s))
	}
}

func (s RunnerState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Status messages.
const (
	StatusReady        = "Ready"
	StatusBuilding     = "Building"
	StatusDone         = "Done"
	StatusInitializing = "Initializing test runner"
	StatusExecuting    = "Executing %d of %d"
	StatusCoverage     = "Generating coverage report"
)

const DefaultQueueSize = 1024

var (
	ErrBusy         = errors.New("a build or test run is in progress")
	ErrNoSelection  = errors.New("no test item selected")
	ErrNoSolution   = errors.New("no solution loaded")
	ErrNotFound     = errors.New("no test item at path")
	ErrNotNavigable = errors.New("only classes and methods can be navigated to")
	ErrNoGroup      = errors.New("no state group for state")
	ErrStopped      = errors.New("orchestrator stopped")
)

type Config struct {
	Log      log.Logger
	Editor   EditorContext
	Provider TestProvider
	Runner   TestRunner
	// Enricher is optional. Without it ResultsUpdated is ignored.
	Enricher *enrich.Enricher
	// Notifier receives tree and orchestrator property changes. Optional.
	Notifier  notify.Notifier
	AutoCover bool
	QueueSize int
	// OnRunFinished is called on the owner goroutine after every run.
	OnRunFinished func(reporting.RunSummary)
}

// Orchestrator implements EditorEvents, RunnerEvents and ResultEvents. Event
// methods and commands may be called from any goroutine.
type Orchestrator struct {
	log           log.Logger
	editor        EditorContext
	provider      TestProvider
	runner        TestRunner
	enricher      *enrich.Enricher
	notifier      notify.Notifier
	onRunFinished func(reporting.RunSummary)
	tracer        trace.Tracer

	tasks   chan func()
	done    chan struct{}
	stop    sync.Once
	running atomic.Bool
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc

	// Everything below is owned by the loop goroutine.
	state         RunnerState
	root          *tree.Node
	groups        *groups.Index
	selected      *tree.Node
	loaded        bool
	autoCover     bool
	progress      float64
	indeterminate bool
	statusMsg     string
	generation    uint64
	run           *runSession
	// buildPending is set when a build finished during a test run.
	buildPending bool
}

// runSession is the bookkeeping of the run in progress.
type runSession struct {
	id       string
	target   *tree.Node
	total    int
	executed int
	started  time.Time
	span     trace.Span
}

func New(cfg Config) (*Orchestrator, error) {
	if cfg.Editor == nil {
		return nil, errors.New("editor context is required")
	}
	if cfg.Provider == nil {
		return nil, errors.New("test provider is required")
	}
	if cfg.Runner == nil {
		return nil, errors.New("test runner is required")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notify.Null
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}

	o := &Orchestrator{
		log:           cfg.Log.New("component", "orchestrator"),
		editor:        cfg.Editor,
		provider:      cfg.Provider,
		runner:        cfg.Runner,
		enricher:      cfg.Enricher,
		notifier:      cfg.Notifier,
		onRunFinished: cfg.OnRunFinished,
		tracer:        otel.Tracer("orchestrator"),
		tasks:         make(chan func(), cfg.QueueSize),
		done:          make(chan struct{}),
		groups:        groups.NewIndex(),
		autoCover:     cfg.AutoCover,
		statusMsg:     StatusReady,
	}
	o.ctx, o.cancel = context.WithCancel(context.Background())

	cfg.Editor.Subscribe(o)
	cfg.Runner.Subscribe(o)
	return o, nil
}

// Start launches the owner loop. Events raised before Start are queued.
func (o *Orchestrator) Start(ctx context.Context) error {
	if o.running.Swap(true) {
		return errors.New("orchestrator already started")
	}
	o.log.Info("Starting orchestrator", "autoCover", o.autoCover)

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		for {
			select {
			case fn := <-o.tasks:
				fn()
			case <-o.done:
				o.log.Debug("Done signal received, stopping owner loop")
				return
			}
		}
	}()
	return nil
}

// Stop terminates the owner loop and cancels background work, then waits for
// it to exit or for ctx to end.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.stop.Do(func() {
		o.log.Info("Stopping orchestrator")
		o.running.Store(false)
		o.cancel()
		close(o.done)
	})

	waited := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(waited)
	}()
	select {
	case <-waited:
		return nil
	case <-ctx.Done():
		o.log.Warn("Timed out waiting for goroutines to terminate", "error", ctx.Err())
		return ctx.Err()
	}
}

func (o *Orchestrator) Stopped() bool {
	return !o.running.Load()
}

// post queues fn for the owner loop. It returns false once stopped.
func (o *Orchestrator) post(fn func()) bool {
	select {
	case <-o.done:
		return false
	default:
	}
	select {
	case o.tasks <- fn:
		return true
	case <-o.done:
		return false
	}
}

// query runs fn on the owner loop and waits for its result. The result is
// handed over on a channel, so a caller that gives up never shares memory
// with fn.
func query[T any](ctx context.Context, o *Orchestrator, fn func() T) (T, error) {
	var zero T
	result := make(chan T, 1)
	task := func() { result <- fn() }
	select {
	case o.tasks <- task:
	case <-o.done:
		return zero, ErrStopped
	case <-ctx.Done():
		return zero, ctx.Err()
	}
	select {
	case v := <-result:
		return v, nil
	case <-o.done:
		return zero, ErrStopped
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// do runs fn on the owner loop and waits for it. fn must not write state the
// caller reads afterwards; use query for results.
func (o *Orchestrator) do(ctx context.Context, fn func()) error {
	_, err := query(ctx, o, func() struct{} {
		fn()
		return struct{}{}
	})
	return err
}

// Do runs fn on the owner loop with access to the tree and group index and
// waits for it. fn must not retain root or idx, and must not write caller
// state that is read after Do returned an error.
func (o *Orchestrator) Do(ctx context.Context, fn func(root *tree.Node, idx *groups.Index)) error {
	return o.do(ctx, func() { fn(o.root, o.groups) })
}

// background runs fn on its own goroutine, tracked for Stop.
func (o *Orchestrator) background(fn func(ctx context.Context)) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		fn(o.ctx)
	}()
}

func (o *Orchestrator) notify(prop string) {
	o.notifier.Notify(notify.Event{Source: o, Property: prop})
}

func (o *Orchestrator) setState(s RunnerState) {
	if o.state == s {
		return
	}
	o.log.Debug("Runner state changed", "from", o.state, "to", s)
	o.state = s
	o.notify(notify.PropRunnerState)
}

func (o *Orchestrator) setStatus(msg string) {
	o.statusMsg = msg
	o.notify(notify.PropStatus)
}

func (o *Orchestrator) setProgress(fraction float64, indeterminate bool) {
	o.progress = fraction
	o.indeterminate = indeterminate
	o.notify(notify.PropProgress)
}

func (o *Orchestrator) setLoaded(loaded bool) {
	o.loaded = loaded
	o.notify(notify.PropSolutionReady)
}

func (o *Orchestrator) isBusy() bool {
	return o.state == Building || o.state == Testing
}
