package explorer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-explorer/api"
	"github.com/ethereum-optimism/infra/op-explorer/enrich"
	"github.com/ethereum-optimism/infra/op-explorer/host"
	"github.com/ethereum-optimism/infra/op-explorer/inventory"
	"github.com/ethereum-optimism/infra/op-explorer/notify"
	"github.com/ethereum-optimism/infra/op-explorer/orchestrator"
	"github.com/ethereum-optimism/infra/op-explorer/reporting"
	"github.com/ethereum-optimism/infra/op-explorer/results"
	"github.com/ethereum-optimism/infra/op-explorer/runner"
	"github.com/ethereum-optimism/infra/op-explorer/service"
	"github.com/ethereum-optimism/infra/op-explorer/types"
	"github.com/ethereum-optimism/optimism/op-service/cliapp"
)

var _ cliapp.Lifecycle = (*Explorer)(nil)

// Explorer wires the editor host, the go test runner, the result store and the
// orchestrator together and serves them over HTTP.
type Explorer struct {
	log     log.Logger
	config  *Config
	version string
	out     io.Writer

	results      *results.Provider
	catalog      *inventory.Catalog
	host         *host.Host
	runner       *runner.GoTestRunner
	orchestrator *orchestrator.Orchestrator
	api          *api.Server
	service      *service.Service
	scheduler    Scheduler

	// synced receives a signal each time the tree was synchronized with a
	// fresh inventory; discovered receives the outcome of each discovery.
	synced     chan struct{}
	discovered chan error
	summaries  chan reporting.RunSummary

	running  atomic.Bool
	stopOnce sync.Once
	stopErr  error

	shutdownCallback func(error)
}

// discoveryTracker reports the outcome of every inventory request.
type discoveryTracker struct {
	orchestrator.TestProvider
	results chan<- error
}

func (d *discoveryTracker) GetTestSolution(ctx context.Context, solution string) (*types.TestItem, error) {
	item, err := d.TestProvider.GetTestSolution(ctx, solution)
	select {
	case d.results <- err:
	default:
	}
	return item, err
}

func New(ctx context.Context, config *Config, version string, shutdownCallback func(error)) (*Explorer, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}
	if config.Log == nil {
		config.Log = log.New()
	}
	logger := config.Log

	logger.Debug("Creating explorer with config",
		"dir", config.Dir,
		"inventory", config.InventoryFile,
		"store", config.Store.Backend,
		"runOnce", config.RunOnce,
		"rebuildInterval", config.RebuildInterval)

	solution := config.Solution
	var provider inventory.Provider
	if config.InventoryFile != "" {
		provider = inventory.NewFileProvider(config.InventoryFile)
		if solution == "" {
			solution = filepath.Base(config.Dir)
		}
	} else {
		provider = inventory.NewGoModuleProvider(config.Dir)
		if solution == "" {
			modulePath, err := inventory.ModulePath(config.Dir)
			if err != nil {
				return nil, fmt.Errorf("failed to determine solution name: %w", err)
			}
			solution = modulePath
		}
	}

	store, err := results.Open(ctx, config.Store, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open result store: %w", err)
	}
	resultProvider := results.NewProvider(store, logger)

	e := &Explorer{
		log:              logger,
		config:           config,
		version:          version,
		out:              os.Stdout,
		results:          resultProvider,
		catalog:          inventory.NewCatalog(provider),
		synced:           make(chan struct{}, 1),
		discovered:       make(chan error, 1),
		summaries:        make(chan reporting.RunSummary, 1),
		shutdownCallback: shutdownCallback,
	}
	if err := e.init(solution); err != nil {
		_ = resultProvider.Close()
		return nil, err
	}
	return e, nil
}

func (e *Explorer) init(solution string) error {
	cfg := e.config
	var err error

	e.host, err = host.New(host.Config{
		Log:            e.log,
		Solution:       solution,
		Dir:            cfg.Dir,
		BuildCommand:   cfg.BuildCommand,
		OpenCommand:    cfg.OpenCommand,
		LogFile:        cfg.LogFile,
		LogLimit:       cfg.LogLimit,
		Watch:          cfg.Watch,
		Debounce:       cfg.WatchDebounce,
		OnSourceChange: e.sourceChanged,
		Locator:        e.catalog,
	})
	if err != nil {
		return fmt.Errorf("failed to create editor host: %w", err)
	}

	e.runner, err = runner.New(runner.Config{
		Log:      e.log,
		Dir:      cfg.Dir,
		GoBinary: cfg.GoBinary,
		Args:     cfg.TestArgs,
		Cover:    cfg.Cover,
		Timeout:  cfg.TestTimeout,
		Results:  e.results,
	})
	if err != nil {
		return fmt.Errorf("failed to create test runner: %w", err)
	}

	enricher, err := enrich.New(enrich.Config{
		Log:            e.log,
		Provider:       e.results,
		MaxConcurrency: cfg.Enrich.Concurrency,
		RateLimit:      cfg.Enrich.RateLimit,
	})
	if err != nil {
		return fmt.Errorf("failed to create result enricher: %w", err)
	}

	hub := api.NewHub(e.log, cfg.API.AllowAllOrigins)
	e.orchestrator, err = orchestrator.New(orchestrator.Config{
		Log:           e.log,
		Editor:        e.host,
		Provider:      &discoveryTracker{TestProvider: e.catalog, results: e.discovered},
		Runner:        e.runner,
		Enricher:      enricher,
		Notifier:      notify.Multi{hub, notify.NotifierFunc(e.observe)},
		AutoCover:     cfg.AutoCover && !cfg.RunOnce,
		OnRunFinished: e.runFinished,
	})
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}
	e.results.OnUpdate(e.orchestrator.ResultsUpdated)

	e.api = api.NewServer(api.Config{
		Log:             e.log,
		Explorer:        e.orchestrator,
		Logs:            e.host,
		Hub:             hub,
		AllowAllOrigins: cfg.API.AllowAllOrigins,
		RequestTimeout:  cfg.API.RequestTimeout,
	})
	e.service = service.New(service.Config{
		Log:         e.log,
		HealthzAddr: cfg.HealthzAddr,
		MetricsAddr: cfg.MetricsAddr,
		Check:       e.healthCheck,
	})
	if cfg.RebuildInterval > 0 && !cfg.RunOnce {
		e.scheduler = NewIntervalScheduler(cfg.RebuildInterval, e.log.New("component", "scheduler"))
		e.scheduler.RegisterCallback(e.rebuild)
	}
	e.log.Info("Created explorer", "solution", solution, "version", e.version)
	return nil
}

// observe runs on the orchestrator's owner loop.
func (e *Explorer) observe(ev notify.Event) {
	if ev.Property != notify.PropSolution {
		return
	}
	select {
	case e.synced <- struct{}{}:
	default:
	}
}

// runFinished runs on the orchestrator's owner loop.
func (e *Explorer) runFinished(summary reporting.RunSummary) {
	reporting.WriteSummary(e.out, summary)
	select {
	case e.summaries <- summary:
	default:
	}
}

func (e *Explorer) rebuild() error {
	e.log.Info("Running scheduled rebuild")
	return e.orchestrator.Build(context.Background())
}

// sourceChanged runs on the host's watcher goroutine. Changes seen while a
// build or run is in progress are skipped; the next change rebuilds.
func (e *Explorer) sourceChanged() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := e.orchestrator.Build(ctx)
	switch {
	case err == nil:
		e.log.Info("Rebuilding after source change")
	case errors.Is(err, orchestrator.ErrBusy):
		e.log.Info("Source changed while busy, rebuild skipped")
	default:
		e.log.Warn("Rebuild after source change failed to start", "err", err)
	}
}

func (e *Explorer) healthCheck() error {
	if e.orchestrator.Stopped() {
		return orchestrator.ErrStopped
	}
	return nil
}

// Start implements the cliapp.Lifecycle interface. In run-once mode it returns
// only after the run finished and its summary was printed.
func (e *Explorer) Start(ctx context.Context) error {
	if e.running.Swap(true) {
		return errors.New("explorer already started")
	}
	if e.config.RunOnce {
		e.log.Info("Starting op-explorer in run-once mode", "target", e.config.Target)
	} else {
		e.log.Info("Starting op-explorer", "rebuildInterval", e.config.RebuildInterval, "watch", e.config.Watch)
	}

	if err := e.service.Start(ctx); err != nil {
		return stageError(StageStartup, err)
	}
	if err := e.orchestrator.Start(ctx); err != nil {
		return stageError(StageStartup, err)
	}
	if e.config.APIAddr != "" {
		if err := e.api.Start(e.config.APIAddr); err != nil {
			return stageError(StageStartup, fmt.Errorf("failed to start API server: %w", err))
		}
		e.log.Info("API server listening", "addr", e.api.Addr())
	}
	if err := e.host.Open(); err != nil {
		return stageError(StageStartup, fmt.Errorf("failed to open solution: %w", err))
	}

	if e.config.RunOnce {
		if err := e.runOnce(ctx); err != nil {
			return err
		}
		e.log.Info("Tests completed, exiting (run-once mode)")
		go func() {
			e.shutdownCallback(nil)
		}()
		return nil
	}

	if e.scheduler != nil {
		if err := e.scheduler.Start(ctx); err != nil {
			return stageError(StageStartup, err)
		}
	}
	e.log.Debug("op-explorer started successfully")
	return nil
}

func (e *Explorer) runOnce(ctx context.Context) error {
	if e.config.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.RunTimeout)
		defer cancel()
	}

	if err := e.waitSynced(ctx); err != nil {
		return stageError(StageDiscover, err)
	}
	if len(e.config.BuildCommand) > 0 {
		if err := e.orchestrator.Build(ctx); err != nil {
			return stageError(StageBuild, err)
		}
		if err := e.waitSynced(ctx); err != nil {
			return stageError(StageBuild, err)
		}
		if err := e.host.LastBuildError(); err != nil {
			return stageError(StageBuild, fmt.Errorf("build failed: %w", err))
		}
	}

	if err := e.orchestrator.Select(ctx, e.config.Target); err != nil {
		return stageError(StageSelect, fmt.Errorf("failed to select %q: %w", e.config.Target, err))
	}
	if err := e.orchestrator.RunTests(ctx); err != nil {
		return stageError(StageRun, fmt.Errorf("failed to start test run: %w", err))
	}

	var summary reporting.RunSummary
	select {
	case summary = <-e.summaries:
	case <-ctx.Done():
		return stageError(StageRun, fmt.Errorf("waiting for test run: %w", ctx.Err()))
	}

	e.log.Info("Test run completed", "runID", summary.RunID, "outcome", summary.Outcome(),
		"executed", summary.Executed, "tests", summary.Total)

	if summary.Total > 0 && summary.Executed == 0 {
		return stageError(StageRun, errors.New("no test results were reported"))
	}
	if summary.Outcome() == types.StateFailed {
		e.log.Warn("Run-once test run completed with failures, returning exit code 1")
		return newTestFailureError(summary)
	}
	return nil
}

// waitSynced waits for the next discovery and the tree sync that follows it.
func (e *Explorer) waitSynced(ctx context.Context) error {
	select {
	case err := <-e.discovered:
		if err != nil {
			return fmt.Errorf("failed to discover tests: %w", err)
		}
	case <-ctx.Done():
		return fmt.Errorf("waiting for test discovery: %w", ctx.Err())
	}
	select {
	case <-e.synced:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for test tree: %w", ctx.Err())
	}
}

// Stop implements the cliapp.Lifecycle interface.
func (e *Explorer) Stop(ctx context.Context) error {
	e.stopOnce.Do(func() {
		e.log.Info("Stopping op-explorer")
		e.running.Store(false)

		var errs []error
		if e.scheduler != nil {
			errs = append(errs, e.scheduler.Stop(), e.scheduler.WaitForShutdown(ctx))
		}
		errs = append(errs,
			e.api.Stop(ctx),
			e.host.Close(),
			e.orchestrator.Stop(ctx),
			e.results.Close(),
			e.service.Shutdown(ctx),
		)
		e.stopErr = errors.Join(errs...)
		e.log.Info("op-explorer stopped")
	})
	return e.stopErr
}

// Stopped implements the cliapp.Lifecycle interface.
func (e *Explorer) Stopped() bool {
	return !e.running.Load()
}
