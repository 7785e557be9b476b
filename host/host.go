// Package host is a headless editor: it owns the solution, builds it with an
// external command, keeps the test log and resolves navigation requests.
package host

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-explorer/orchestrator"
	"github.com/ethereum-optimism/infra/op-explorer/types"
)

var (
	ErrBuildInProgress = errors.New("build already in progress")
	ErrUnknownSource   = errors.New("source location unknown")
	ErrClosed          = errors.New("host is closed")
)

const (
	DefaultDebounce = 500 * time.Millisecond
	DefaultLogLimit = 1 << 20
)

// Locator resolves classes and methods to source positions.
type Locator interface {
	LocateClass(fullName string) (*types.SourceLocation, bool)
	LocateMethod(classFullName, method string) (*types.SourceLocation, bool)
}

type Config struct {
	Log      log.Logger
	Solution string
	// Dir is the solution root. Builds run and source paths resolve there.
	Dir string
	// BuildCommand is run to build the solution. Empty means builds succeed
	// immediately.
	BuildCommand []string
	// OpenCommand is started on navigation; "{file}" and "{line}" are
	// substituted. Empty means navigation is only logged.
	OpenCommand []string
	// LogFile receives the test log in addition to the in-memory buffer.
	LogFile  string
	LogLimit int
	// Watch rebuilds the solution when Go sources change.
	Watch    bool
	Debounce time.Duration
	// OnSourceChange replaces the direct rebuild on source changes, so a
	// caller can gate rebuilds on its own state.
	OnSourceChange func()
	Locator        Locator
}

type Host struct {
	log      log.Logger
	solution string
	dir      string
	buildCmd []string
	openCmd  []string
	watch    bool
	debounce time.Duration
	onChange func()
	locator  Locator

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	building atomic.Bool
	open     atomic.Bool
	closed   atomic.Bool

	mu          sync.Mutex
	subscribers []orchestrator.EditorEvents
	testLog     *testLog
	watcher     *watcher
	buildErr    error
}

func New(cfg Config) (*Host, error) {
	if cfg.Log == nil {
		cfg.Log = log.New()
	}
	if cfg.Dir == "" {
		cfg.Dir = "."
	}
	dir, err := filepath.Abs(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("resolving solution dir: %w", err)
	}
	if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
		return nil, fmt.Errorf("solution dir %s is not a directory", dir)
	}
	if cfg.Solution == "" {
		cfg.Solution = filepath.Base(dir)
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.LogLimit <= 0 {
		cfg.LogLimit = DefaultLogLimit
	}
	logger := cfg.Log.New("component", "host")
	tl, err := newTestLog(cfg.LogFile, cfg.LogLimit)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Host{
		log:      logger,
		solution: cfg.Solution,
		dir:      dir,
		buildCmd: cfg.BuildCommand,
		openCmd:  cfg.OpenCommand,
		watch:    cfg.Watch,
		debounce: cfg.Debounce,
		onChange: cfg.OnSourceChange,
		locator:  cfg.Locator,
		ctx:      ctx,
		cancel:   cancel,
		testLog:  tl,
	}, nil
}

func (h *Host) Solution() string {
	return h.solution
}

func (h *Host) Dir() string {
	return h.dir
}

func (h *Host) Subscribe(ev orchestrator.EditorEvents) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subscribers = append(h.subscribers, ev)
}

func (h *Host) emit(fn func(orchestrator.EditorEvents)) {
	h.mu.Lock()
	subs := append([]orchestrator.EditorEvents{}, h.subscribers...)
	h.mu.Unlock()
	for _, s := range subs {
		fn(s)
	}
}

// Open announces the solution to subscribers and starts the source watcher.
func (h *Host) Open() error {
	if h.closed.Load() {
		return ErrClosed
	}
	if h.open.Swap(true) {
		return nil
	}
	h.log.Info("Opening solution", "solution", h.solution, "dir", h.dir)
	if h.watch {
		w, err := newWatcher(h.dir, h.debounce, h.log, h.rebuild)
		if err != nil {
			h.open.Store(false)
			return fmt.Errorf("watching sources: %w", err)
		}
		h.mu.Lock()
		h.watcher = w
		h.mu.Unlock()
		w.start(&h.wg)
	}
	h.emit(func(ev orchestrator.EditorEvents) { ev.SolutionOpened() })
	return nil
}

// Close stops the watcher and pending builds, announces the solution is
// closing and closes the log file.
func (h *Host) Close() error {
	if h.closed.Swap(true) {
		return nil
	}
	wasOpen := h.open.Swap(false)

	h.mu.Lock()
	w := h.watcher
	h.watcher = nil
	h.mu.Unlock()
	if w != nil {
		w.stop()
	}
	h.cancel()
	h.wg.Wait()

	if wasOpen {
		h.log.Info("Closing solution", "solution", h.solution)
		h.emit(func(ev orchestrator.EditorEvents) { ev.SolutionClosing() })
	}
	return h.testLog.close()
}

func (h *Host) rebuild() {
	if h.onChange != nil {
		h.onChange()
		return
	}
	if err := h.BuildSolution(); err != nil && !errors.Is(err, ErrBuildInProgress) {
		h.log.Warn("Rebuild after source change failed to start", "err", err)
	}
}

var _ orchestrator.EditorContext = (*Host)(nil)
