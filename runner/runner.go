// Package runner executes Go tests with `go test -json` and reports their
// progress to the explorer.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/acarl005/stripansi"
	"github.com/ethereum-optimism/optimism/devnet-sdk/telemetry"
	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ethereum-optimism/infra/op-explorer/metrics"
	"github.com/ethereum-optimism/infra/op-explorer/orchestrator"
	"github.com/ethereum-optimism/infra/op-explorer/types"
)

var ErrNothingToRun = errors.New("no runnable tests selected")

// ResultRecorder persists results as tests finish.
type ResultRecorder interface {
	Record(ctx context.Context, fullName string, r *types.TestResult) error
	NotifyUpdated()
}

type Config struct {
	Log log.Logger
	// Dir is the module root the go command runs in.
	Dir      string
	GoBinary string
	// Args are passed to go test before the package list, e.g. -race.
	Args    []string
	Cover   bool
	Timeout time.Duration
	Results ResultRecorder
}

type GoTestRunner struct {
	log     log.Logger
	dir     string
	goBin   string
	args    []string
	cover   bool
	timeout time.Duration
	results ResultRecorder
	tracer  trace.Tracer

	mu          sync.Mutex
	subscribers []orchestrator.RunnerEvents
}

func New(cfg Config) (*GoTestRunner, error) {
	if cfg.Results == nil {
		return nil, errors.New("result recorder is required")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
	}
	if cfg.GoBinary == "" {
		cfg.GoBinary = "go"
	}
	return &GoTestRunner{
		log:     cfg.Log.New("component", "runner"),
		dir:     cfg.Dir,
		goBin:   cfg.GoBinary,
		args:    cfg.Args,
		cover:   cfg.Cover,
		timeout: cfg.Timeout,
		results: cfg.Results,
		tracer:  otel.Tracer("runner"),
	}, nil
}

func (r *GoTestRunner) Subscribe(ev orchestrator.RunnerEvents) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subscribers = append(r.subscribers, ev)
}

func (r *GoTestRunner) emit(fn func(orchestrator.RunnerEvents)) {
	r.mu.Lock()
	subs := append([]orchestrator.RunnerEvents{}, r.subscribers...)
	r.mu.Unlock()
	for _, s := range subs {
		fn(s)
	}
}

func (r *GoTestRunner) emitLog(text string) {
	text = stripansi.Strip(text)
	if text == "" {
		return
	}
	r.emit(func(ev orchestrator.RunnerEvents) { ev.TestLogAdded(text) })
}

func (r *GoTestRunner) emitExecuted(path string, outcome types.TestState) {
	r.emit(func(ev orchestrator.RunnerEvents) { ev.TestExecuted(path, outcome) })
}

// Command returns the go test arguments for the tests below item.
func (r *GoTestRunner) Command(item *types.TestItem) ([]string, error) {
	idx := newTestIndex(item)
	if idx.empty() {
		return nil, ErrNothingToRun
	}
	return r.command(idx), nil
}

func (r *GoTestRunner) command(idx *testIndex) []string {
	args := []string{"test", "-json", "-count=1", "-run", idx.RunPattern()}
	if r.cover {
		args = append(args, "-cover")
	}
	if r.timeout > 0 {
		args = append(args, "-timeout", r.timeout.String())
	}
	args = append(args, r.args...)
	return append(args, idx.Packages()...)
}

// RunTests runs every Go test below item and blocks until the go command
// exits. A non-zero exit caused by failing tests is not an error.
func (r *GoTestRunner) RunTests(ctx context.Context, item *types.TestItem) error {
	idx := newTestIndex(item)
	if idx.empty() {
		return ErrNothingToRun
	}
	runID := uuid.New().String()
	ctx, span := r.tracer.Start(ctx, "go test")
	defer span.End()
	span.SetAttributes(
		attribute.String("run.id", runID),
		attribute.String("run.target", item.FullName),
		attribute.Int("run.tests", item.TestCount),
	)

	args := r.command(idx)
	cmd := exec.CommandContext(ctx, r.goBin, args...)
	cmd.Dir = r.dir
	cmd.Env = telemetry.InstrumentEnvironment(ctx, os.Environ())
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to open test output: %w", err)
	}

	r.log.Info("Running tests", "runID", runID, "target", item.FullName, "packages", len(idx.packages), "dir", r.dir)
	r.emit(func(ev orchestrator.RunnerEvents) { ev.TestsStarted() })
	defer r.emit(func(ev orchestrator.RunnerEvents) { ev.TestsFinished() })

	if err := cmd.Start(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		metrics.RecordErrorDetails("runner_start", err)
		return fmt.Errorf("failed to start go test: %w", err)
	}

	s := newSession(r, idx, runID)
	if err := s.consume(ctx, stdout); err != nil {
		r.log.Warn("Failed to read test output", "err", err)
	}
	waitErr := cmd.Wait()
	if stderr.Len() > 0 {
		r.emitLog(stderr.String())
	}

	var exitErr *exec.ExitError
	switch {
	case waitErr == nil:
		s.finish(ctx, ActionPass)
	case errors.As(waitErr, &exitErr) && s.events > 0:
		s.finish(ctx, ActionFail)
	default:
		s.finish(ctx, ActionFail)
		span.SetStatus(codes.Error, waitErr.Error())
		metrics.RecordErrorDetails("runner_exit", waitErr)
		r.notify()
		return fmt.Errorf("go test failed: %w: %s", waitErr, strings.TrimSpace(stderr.String()))
	}
	r.notify()
	r.log.Info("Tests finished", "runID", runID, "events", s.events, "recorded", s.recorded)
	return nil
}

func (r *GoTestRunner) notify() {
	r.results.NotifyUpdated()
}

var _ orchestrator.TestRunner = (*GoTestRunner)(nil)
