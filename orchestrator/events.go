package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ethereum-optimism/infra/op-explorer/enrich"
	"github.com/ethereum-optimism/infra/op-explorer/metrics"
	"github.com/ethereum-optimism/infra/op-explorer/notify"
	"github.com/ethereum-optimism/infra/op-explorer/reporting"
	"github.com/ethereum-optimism/infra/op-explorer/tree"
	"github.com/ethereum-optimism/infra/op-explorer/types"
)

func (o *Orchestrator) SolutionOpened() {
	o.post(func() {
		o.log.Info("Solution opened", "solution", o.editor.Solution())
		o.generation++
		o.refreshInventory(o.generation, func() {
			o.setLoaded(true)
		})
	})
}

func (o *Orchestrator) SolutionClosing() {
	o.post(func() {
		o.log.Info("Solution closing", "solution", o.editor.Solution())
		o.generation++
		o.setLoaded(false)
		o.applyInventory(nil)
		o.groups.Clear()
		o.notify(notify.PropGroups)
	})
}

// BuildStarted and BuildFinished arriving during a test run do not touch the
// runner state. A finished build is applied once the run is over.
func (o *Orchestrator) BuildStarted() {
	o.post(func() {
		if o.state == Testing {
			o.log.Warn("Build started during a test run, deferring until the run finishes")
			return
		}
		o.log.Info("Build started")
		o.beginBuild()
	})
}

func (o *Orchestrator) BuildFinished() {
	o.post(func() {
		if o.state == Testing {
			o.log.Warn("Build finished during a test run, deferring until the run finishes")
			o.buildPending = true
			return
		}
		o.finishBuild()
	})
}

func (o *Orchestrator) beginBuild() {
	o.setProgress(o.progress, true)
	o.setStatus(StatusBuilding)
	o.setState(Building)
}

func (o *Orchestrator) finishBuild() {
	o.log.Info("Build finished")
	o.buildPending = false
	metrics.RecordBuild(true)
	o.setProgress(o.progress, false)
	o.setStatus(StatusDone)
	o.setState(Ready)
	o.generation++
	o.refreshInventory(o.generation, func() {
		o.setLoaded(true)
		if o.autoCover && o.canRunTests() {
			o.log.Info("Auto cover enabled, running selected tests")
			if err := o.runTests(); err != nil {
				o.log.Warn("Auto cover run not started", "err", err)
			}
		}
	})
}

// refreshInventory discovers the inventory off the loop, then syncs the tree
// and calls after on the loop. Results of superseded refreshes are dropped.
func (o *Orchestrator) refreshInventory(gen uint64, after func()) {
	solution := o.editor.Solution()
	o.background(func(ctx context.Context) {
		ctx, span := o.tracer.Start(ctx, "discover tests")
		span.SetAttributes(attribute.String("solution", solution))
		item, err := o.provider.GetTestSolution(ctx, solution)
		span.End()

		o.post(func() {
			if gen != o.generation {
				o.log.Debug("Dropping superseded inventory", "solution", solution)
				return
			}
			if err != nil {
				o.log.Error("Failed to discover tests", "solution", solution, "err", err)
				metrics.RecordErrorDetails("discover", err)
				return
			}
			o.applyInventory(item)
			after()
		})
	})
}

// applyInventory syncs the tree with a snapshot. A nil snapshot tears it down.
func (o *Orchestrator) applyInventory(item *types.TestItem) {
	_, span := o.tracer.Start(o.ctx, "sync tree")
	defer span.End()

	o.root = tree.Sync(o.root, item, o.notifier)
	if o.selected != nil && (o.root == nil || o.selected.Root() != o.root) {
		o.selectNode(nil)
	}
	nodes := o.root.Count()
	span.SetAttributes(attribute.Int("nodes", nodes))
	metrics.RecordSync(nodes)
	o.notify(notify.PropSolution)
	o.log.Debug("Synchronized test tree", "nodes", nodes)
}

func (o *Orchestrator) TestsStarted() {
	o.post(func() {
		if o.state == Testing {
			return
		}
		// A run this orchestrator did not request.
		target := o.selected
		if target == nil {
			target = o.root
		}
		o.beginRun(target)
	})
}

func (o *Orchestrator) TestExecuted(path string, outcome types.TestState) {
	o.post(func() {
		if o.state != Testing || o.run == nil {
			o.log.Debug("Ignoring test result outside of a run", "path", path, "outcome", outcome)
			return
		}
		o.testExecuted(path, outcome)
	})
}

func (o *Orchestrator) testExecuted(path string, outcome types.TestState) {
	run := o.run
	node := tree.Route(o.root, path)
	if node == nil {
		o.log.Debug("Test path matched no tree node", "path", path)
		metrics.RecordRoutingMiss()
		return
	}
	node.SetState(outcome)
	run.executed++
	o.groups.Record(node)
	o.notify(notify.PropGroups)
	metrics.RecordTestExecuted(outcome)

	if run.executed < run.total {
		fraction := float64(run.executed) / float64(run.total)
		o.setProgress(fraction, false)
		o.setStatus(fmt.Sprintf(StatusExecuting, run.executed, run.total))
		metrics.RecordProgress(fraction)
	} else {
		o.setProgress(o.progress, true)
		o.setStatus(StatusCoverage)
	}
}

func (o *Orchestrator) TestLogAdded(text string) {
	o.post(func() {
		o.editor.WriteToLog(text)
	})
}

func (o *Orchestrator) TestsFinished() {
	o.post(func() {
		if o.state != Testing {
			o.log.Debug("Ignoring tests finished outside of a run")
			return
		}
		o.finishRun()
	})
}

func (o *Orchestrator) ResultsUpdated() {
	o.post(func() {
		if o.enricher == nil || o.root == nil {
			return
		}
		root := o.root
		targets := enrich.Targets(root)
		o.background(func(ctx context.Context) {
			results, err := o.enricher.Resolve(ctx, targets)
			if err != nil {
				o.log.Warn("Result enrichment incomplete", "err", err)
			}
			if len(results) == 0 {
				return
			}
			o.post(func() {
				if o.root != root {
					o.log.Debug("Dropping results for a replaced tree")
					return
				}
				applied := enrich.Apply(root, results)
				o.log.Debug("Applied stored results", "applied", applied, "targets", len(targets))
			})
		})
	})
}

// beginRun prepares the tree for a run over target. target may be nil when no
// solution is loaded.
func (o *Orchestrator) beginRun(target *tree.Node) {
	run := &runSession{
		id:      uuid.New().String(),
		target:  target,
		started: time.Now(),
	}
	if target != nil {
		run.total = target.Item().TestCount
	}
	_, run.span = o.tracer.Start(o.ctx, "test run")
	run.span.SetAttributes(
		attribute.String("run_id", run.id),
		attribute.Int("tests", run.total),
	)
	o.run = run

	o.setProgress(0, true)
	o.setStatus(StatusInitializing)
	o.setState(Testing)
	if o.root != nil {
		o.root.ResetAll()
	}
	o.groups.Clear()
	o.notify(notify.PropGroups)
	o.editor.ClearLog()
	o.editor.ActivateLog()
	if target != nil {
		target.ScheduleAll()
	}

	metrics.RecordRunStarted(o.editor.Solution())
	o.log.Info("Test run started", "runID", run.id, "target", targetPath(target), "tests", run.total)
}

func (o *Orchestrator) finishRun() {
	defer func() {
		if o.buildPending {
			o.finishBuild()
		}
	}()
	o.setProgress(0, false)
	o.setStatus(StatusDone)
	o.setState(Ready)

	run := o.run
	o.run = nil
	if run == nil {
		return
	}
	duration := time.Since(run.started)
	run.span.SetAttributes(attribute.Int("executed", run.executed))
	run.span.End()
	metrics.RecordRunFinished(o.editor.Solution(), duration)

	summary := reporting.RunSummary{
		RunID:    run.id,
		Solution: o.editor.Solution(),
		Target:   targetPath(run.target),
		Total:    run.total,
		Executed: run.executed,
		Duration: duration,
		Groups:   o.groups.Groups(),
	}
	o.log.Info("Test run finished", append([]any{"runID", run.id, "executed", run.executed, "tests", run.total, "duration", duration}, reporting.Counts(o.groups)...)...)
	if o.onRunFinished != nil {
		o.onRunFinished(summary)
	}
}

func targetPath(n *tree.Node) string {
	if n == nil {
		return ""
	}
	if n.IsRoot() {
		return n.Item().Name
	}
	return n.Path()
}
