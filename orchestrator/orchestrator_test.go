package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ethereum-optimism/infra/op-explorer/enrich"
	"github.com/ethereum-optimism/infra/op-explorer/groups"
	"github.com/ethereum-optimism/infra/op-explorer/notify"
	"github.com/ethereum-optimism/infra/op-explorer/reporting"
	"github.com/ethereum-optimism/infra/op-explorer/tree"
	"github.com/ethereum-optimism/infra/op-explorer/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type harness struct {
	o        *Orchestrator
	editor   *fakeEditor
	provider *fakeProvider
	runner   *fakeRunner
	notes    *notify.Recorder
	finished chan reporting.RunSummary
}

func newHarness(t *testing.T, snapshot *types.TestItem, opts ...func(*Config)) *harness {
	t.Helper()
	h := &harness{
		editor:   &fakeEditor{solution: "sol"},
		provider: &fakeProvider{snapshot: snapshot},
		runner:   newFakeRunner(),
		notes:    &notify.Recorder{},
		finished: make(chan reporting.RunSummary, 4),
	}
	cfg := Config{
		Log:      log.NewLogger(log.DiscardHandler()),
		Editor:   h.editor,
		Provider: h.provider,
		Runner:   h.runner,
		Notifier: h.notes,
		OnRunFinished: func(s reporting.RunSummary) {
			h.finished <- s
		},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	o, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, o.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, o.Stop(ctx))
	})
	h.o = o
	return h
}

func (h *harness) status(t *testing.T) Status {
	t.Helper()
	s, err := h.o.Status(context.Background())
	require.NoError(t, err)
	return s
}

func (h *harness) waitFor(t *testing.T, cond func(Status) bool) {
	t.Helper()
	require.Eventually(t, func() bool {
		s, err := h.o.Status(context.Background())
		return err == nil && cond(s)
	}, 5*time.Second, 5*time.Millisecond)
}

func (h *harness) load(t *testing.T) {
	t.Helper()
	h.editor.events.SolutionOpened()
	h.waitFor(t, func(s Status) bool { return s.IsSolutionLoaded })
}

// inspect runs fn on the owner loop.
func (h *harness) inspect(t *testing.T, fn func(root *tree.Node, idx *groups.Index)) {
	t.Helper()
	require.NoError(t, h.o.Do(context.Background(), fn))
}

func tenLeaves() *types.TestItem {
	return solution(
		project("ProjectA",
			class("ClassB", "M0", "M1", "M2", "M3", "M4"),
			class("ClassC", "M5", "M6", "M7", "M8", "M9"),
		),
	)
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
	_, err = New(Config{Editor: &fakeEditor{}})
	require.Error(t, err)
	_, err = New(Config{Editor: &fakeEditor{}, Provider: &fakeProvider{}})
	require.Error(t, err)
}

func TestInitialStatus(t *testing.T) {
	h := newHarness(t, tenLeaves())
	s := h.status(t)
	assert.Equal(t, Ready, s.RunnerState)
	assert.Equal(t, StatusReady, s.StatusMessage)
	assert.False(t, s.IsBusy)
	assert.False(t, s.IsSolutionLoaded)
	assert.True(t, s.CanBuild)
	assert.False(t, s.CanRunTests)

	v, err := h.o.Tree(context.Background())
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestSolutionOpenedAndClosing(t *testing.T) {
	h := newHarness(t, tenLeaves())
	h.load(t)

	v, err := h.o.Tree(context.Background())
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, 10, v.TestCount)
	require.Len(t, v.Children, 1)
	assert.Equal(t, "ProjectA", v.Children[0].Path)
	assert.Equal(t, "ProjectA.ClassB", v.Children[0].Children[0].Path)

	require.NoError(t, h.o.Select(context.Background(), "ProjectA"))
	assert.True(t, h.status(t).IsItemSelected)

	h.editor.events.SolutionClosing()
	h.waitFor(t, func(s Status) bool { return !s.IsSolutionLoaded })
	s := h.status(t)
	assert.False(t, s.IsItemSelected)
	v, err = h.o.Tree(context.Background())
	require.NoError(t, err)
	assert.Nil(t, v)
	require.ErrorIs(t, h.o.Select(context.Background(), ""), ErrNoSolution)
}

func TestBuildTransitions(t *testing.T) {
	first := tenLeaves()
	h := newHarness(t, first)

	h.editor.events.BuildStarted()
	h.waitFor(t, func(s Status) bool { return s.RunnerState == Building })
	s := h.status(t)
	assert.True(t, s.IsBusy)
	assert.False(t, s.IsTesting)
	assert.True(t, s.IsProgressIndeterminate)
	assert.Equal(t, StatusBuilding, s.StatusMessage)
	require.ErrorIs(t, h.o.Build(context.Background()), ErrBusy)

	h.editor.events.BuildFinished()
	h.waitFor(t, func(s Status) bool { return s.IsSolutionLoaded })
	s = h.status(t)
	assert.Equal(t, Ready, s.RunnerState)
	assert.Equal(t, StatusDone, s.StatusMessage)
	assert.False(t, s.IsProgressIndeterminate)

	require.NoError(t, h.o.Build(context.Background()))
	builds, _, _, _, _ := h.editor.snapshot()
	assert.Equal(t, 1, builds)
}

func TestBuildMarksBusyBeforeEditorSignals(t *testing.T) {
	h := newHarness(t, tenLeaves())
	h.load(t)
	require.NoError(t, h.o.Select(context.Background(), ""))

	require.NoError(t, h.o.Build(context.Background()))
	s := h.status(t)
	assert.Equal(t, Building, s.RunnerState)
	assert.False(t, s.CanRunTests)
	require.ErrorIs(t, h.o.RunTests(context.Background()), ErrBusy)

	h.editor.events.BuildStarted()
	h.editor.events.BuildFinished()
	h.waitFor(t, func(s Status) bool { return s.RunnerState == Ready && s.StatusMessage == StatusDone })
	require.NoError(t, h.o.RunTests(context.Background()))
}

func TestBuildSignalsDuringRunAreDeferred(t *testing.T) {
	next := tenLeaves()
	h := newHarness(t, tenLeaves())
	h.load(t)
	require.NoError(t, h.o.Select(context.Background(), "ProjectA.ClassB"))
	require.NoError(t, h.o.RunTests(context.Background()))
	<-h.runner.started

	// A build the orchestrator did not request, e.g. a source watcher.
	h.provider.set(next)
	h.editor.events.BuildStarted()
	h.editor.events.BuildFinished()
	s := h.status(t)
	assert.Equal(t, Testing, s.RunnerState)
	assert.Equal(t, StatusInitializing, s.StatusMessage)

	for i := 0; i < 5; i++ {
		h.runner.events.TestExecuted(fmt.Sprintf("ProjectA.ClassB.M%d", i), types.StatePassed)
	}
	h.waitFor(t, func(s Status) bool { return s.Executed == 5 })
	h.runner.events.TestsFinished()

	select {
	case summary := <-h.finished:
		assert.Equal(t, 5, summary.Executed)
		assert.Equal(t, 5, summary.Total)
		assert.Equal(t, types.StatePassed, summary.Outcome())
	case <-time.After(5 * time.Second):
		t.Fatal("run summary not delivered")
	}

	// The deferred build is applied after the run: the tree is resynced.
	h.waitFor(t, func(s Status) bool { return s.RunnerState == Ready && s.StatusMessage == StatusDone })
	require.Eventually(t, func() bool {
		var synced bool
		h.inspect(t, func(root *tree.Node, _ *groups.Index) { synced = root.Item() == next })
		return synced
	}, 5*time.Second, 5*time.Millisecond)
}

func TestBuildDuringRunKeepsRunnable(t *testing.T) {
	h := newHarness(t, tenLeaves())
	h.load(t)
	require.NoError(t, h.o.Select(context.Background(), ""))
	require.NoError(t, h.o.RunTests(context.Background()))
	<-h.runner.started

	require.ErrorIs(t, h.o.Build(context.Background()), ErrBusy)
	builds, _, _, _, _ := h.editor.snapshot()
	assert.Zero(t, builds)

	h.runner.events.TestsFinished()
	h.waitFor(t, func(s Status) bool { return s.RunnerState == Ready })
	require.NoError(t, h.o.Build(context.Background()))
}

func TestBuildKeepsUnchangedNodes(t *testing.T) {
	keep := project("Keep", class("K", "k1"))
	h := newHarness(t, solution(keep, project("Drop", class("D", "d1"))))
	h.load(t)

	var kept *tree.Node
	h.inspect(t, func(root *tree.Node, _ *groups.Index) {
		kept = tree.Route(root, "Keep")
		kept.Leaves()[0].SetState(types.StatePassed)
	})

	h.provider.set(solution(keep, project("New", class("N", "n1"))))
	h.editor.events.BuildStarted()
	h.editor.events.BuildFinished()
	require.Eventually(t, func() bool {
		found := false
		_ = h.o.Do(context.Background(), func(root *tree.Node, _ *groups.Index) {
			found = tree.Route(root, "New") != nil
		})
		return found
	}, 5*time.Second, 5*time.Millisecond)

	h.inspect(t, func(root *tree.Node, _ *groups.Index) {
		assert.Same(t, kept, tree.Route(root, "Keep"))
		assert.Equal(t, types.StatePassed, kept.Leaves()[0].State())
		assert.Nil(t, tree.Route(root, "Drop"))
	})
}

func TestDiscoveryFailureKeepsTree(t *testing.T) {
	h := newHarness(t, tenLeaves())
	h.load(t)

	h.provider.mu.Lock()
	h.provider.err = errors.New("go list failed")
	h.provider.mu.Unlock()

	h.editor.events.BuildStarted()
	h.editor.events.BuildFinished()
	require.Eventually(t, func() bool {
		h.provider.mu.Lock()
		defer h.provider.mu.Unlock()
		return h.provider.calls == 2
	}, 5*time.Second, 5*time.Millisecond)

	v, err := h.o.Tree(context.Background())
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, 10, v.TestCount)
}

func TestRunRequiresSelection(t *testing.T) {
	h := newHarness(t, tenLeaves())
	h.load(t)
	require.ErrorIs(t, h.o.RunTests(context.Background()), ErrNoSelection)

	h.editor.events.BuildStarted()
	h.waitFor(t, func(s Status) bool { return s.IsBusy })
	require.NoError(t, h.o.Select(context.Background(), ""))
	require.ErrorIs(t, h.o.RunTests(context.Background()), ErrBusy)
}

func TestRunProgress(t *testing.T) {
	h := newHarness(t, tenLeaves())
	h.load(t)
	require.NoError(t, h.o.Select(context.Background(), "ProjectA"))
	h.editor.WriteToLog("previous run output")

	require.NoError(t, h.o.RunTests(context.Background()))
	s := h.status(t)
	assert.Equal(t, Testing, s.RunnerState)
	assert.True(t, s.IsTesting)
	assert.True(t, s.IsProgressIndeterminate)
	assert.Equal(t, StatusInitializing, s.StatusMessage)
	assert.Equal(t, 10, s.Total)
	assert.NotEmpty(t, s.RunID)

	select {
	case item := <-h.runner.started:
		assert.Equal(t, "ProjectA", item.Name)
	case <-time.After(5 * time.Second):
		t.Fatal("runner was not invoked")
	}

	_, clears, activations, logs, _ := h.editor.snapshot()
	assert.Equal(t, 1, clears)
	assert.Equal(t, 1, activations)
	assert.Empty(t, logs)

	h.inspect(t, func(root *tree.Node, _ *groups.Index) {
		tree.Route(root, "ProjectA").Walk(func(n *tree.Node) bool {
			assert.Equal(t, types.StateScheduled, n.State())
			assert.True(t, n.IsStateCurrent())
			return true
		})
	})

	// The runner's own start signal must not restart the run.
	h.runner.events.TestsStarted()
	for i := 0; i < 4; i++ {
		h.runner.events.TestExecuted(fmt.Sprintf("ProjectA.ClassB.M%d", i), types.StatePassed)
	}
	h.waitFor(t, func(s Status) bool { return s.Executed == 4 })
	s = h.status(t)
	assert.InDelta(t, 0.4, s.Progress, 1e-9)
	assert.False(t, s.IsProgressIndeterminate)
	assert.Equal(t, "Executing 4 of 10", s.StatusMessage)

	h.runner.events.TestExecuted("ProjectA.ClassB.M4", types.StateFailed)
	for i := 5; i < 10; i++ {
		h.runner.events.TestExecuted(fmt.Sprintf("ProjectA.ClassC.M%d", i), types.StatePassed)
	}
	h.runner.events.TestLogAdded("ok ProjectA")
	h.waitFor(t, func(s Status) bool { return s.Executed == 10 })
	s = h.status(t)
	assert.True(t, s.IsProgressIndeterminate)
	assert.Equal(t, StatusCoverage, s.StatusMessage)

	groupViews, err := h.o.StateGroups(context.Background())
	require.NoError(t, err)
	require.Len(t, groupViews, 2)
	assert.Equal(t, types.StatePassed, groupViews[0].State)
	assert.Equal(t, 9, groupViews[0].Count)
	assert.Equal(t, types.StateFailed, groupViews[1].State)
	assert.Equal(t, []string{"ProjectA.ClassB.M4"}, groupViews[1].Paths)

	h.runner.events.TestsFinished()
	h.waitFor(t, func(s Status) bool { return s.RunnerState == Ready })
	s = h.status(t)
	assert.Equal(t, StatusDone, s.StatusMessage)
	assert.False(t, s.IsProgressIndeterminate)
	assert.Equal(t, 0.0, s.Progress)

	select {
	case summary := <-h.finished:
		assert.Equal(t, 10, summary.Executed)
		assert.Equal(t, "ProjectA", summary.Target)
		assert.Equal(t, types.StateFailed, summary.Outcome())
	case <-time.After(5 * time.Second):
		t.Fatal("run summary not delivered")
	}

	_, _, _, logs, _ = h.editor.snapshot()
	assert.Equal(t, []string{"ok ProjectA"}, logs)

	h.inspect(t, func(root *tree.Node, _ *groups.Index) {
		assert.Equal(t, types.StateFailed, root.State())
		assert.Equal(t, types.StateFailed, tree.Route(root, "ProjectA.ClassB").State())
		assert.Equal(t, types.StatePassed, tree.Route(root, "ProjectA.ClassC").State())
	})
}

func TestRoutingMissChangesNothing(t *testing.T) {
	h := newHarness(t, tenLeaves())
	h.load(t)
	require.NoError(t, h.o.Select(context.Background(), ""))
	require.NoError(t, h.o.RunTests(context.Background()))
	<-h.runner.started

	h.runner.events.TestExecuted("ProjectA.ClassB.M0", types.StatePassed)
	h.runner.events.TestExecuted("ProjectA.ClassX.M0", types.StateFailed)
	h.waitFor(t, func(s Status) bool { return s.Executed == 1 })

	s := h.status(t)
	assert.Equal(t, 1, s.Executed)
	assert.Equal(t, "Executing 1 of 10", s.StatusMessage)
	groupViews, err := h.o.StateGroups(context.Background())
	require.NoError(t, err)
	require.Len(t, groupViews, 1)
	assert.Equal(t, types.StatePassed, groupViews[0].State)
}

func TestRunnerFailureEndsRun(t *testing.T) {
	h := newHarness(t, tenLeaves())
	h.runner.err = errors.New("go binary not found")
	h.load(t)
	require.NoError(t, h.o.Select(context.Background(), ""))
	require.NoError(t, h.o.RunTests(context.Background()))

	h.waitFor(t, func(s Status) bool { return s.RunnerState == Ready })
	assert.Equal(t, StatusDone, h.status(t).StatusMessage)
}

func TestExternalRunStartsFromRoot(t *testing.T) {
	h := newHarness(t, tenLeaves())
	h.load(t)

	h.runner.events.TestsStarted()
	h.waitFor(t, func(s Status) bool { return s.IsTesting })
	s := h.status(t)
	assert.Equal(t, 10, s.Total)
	select {
	case <-h.runner.started:
		t.Fatal("runner must not be invoked for a run it started itself")
	default:
	}

	h.runner.events.TestsFinished()
	h.waitFor(t, func(s Status) bool { return s.RunnerState == Ready })
}

func TestEventsOutsideRunAreIgnored(t *testing.T) {
	h := newHarness(t, tenLeaves())
	h.load(t)
	h.runner.events.TestExecuted("ProjectA.ClassB.M0", types.StateFailed)
	h.runner.events.TestsFinished()

	h.inspect(t, func(root *tree.Node, idx *groups.Index) {
		assert.Equal(t, types.StateUnknown, tree.Route(root, "ProjectA.ClassB.M0").State())
		assert.Empty(t, idx.Groups())
	})
	assert.Equal(t, StatusReady, h.status(t).StatusMessage)
}

func TestAutoCoverRunsAfterBuild(t *testing.T) {
	h := newHarness(t, tenLeaves(), func(c *Config) { c.AutoCover = true })
	h.load(t)

	// No selection: nothing runs.
	h.editor.events.BuildStarted()
	h.editor.events.BuildFinished()
	h.waitFor(t, func(s Status) bool { return s.RunnerState == Ready && s.StatusMessage == StatusDone })

	require.NoError(t, h.o.Select(context.Background(), "ProjectA.ClassC"))
	h.editor.events.BuildStarted()
	h.editor.events.BuildFinished()
	select {
	case item := <-h.runner.started:
		assert.Equal(t, "ClassC", item.Name)
	case <-time.After(5 * time.Second):
		t.Fatal("auto cover did not start a run")
	}
	assert.Equal(t, 5, h.status(t).Total)

	require.NoError(t, h.o.SetAutoCover(context.Background(), false))
	assert.False(t, h.status(t).IsAutoCoverEnabled)
}

func TestToggleStateGroup(t *testing.T) {
	h := newHarness(t, tenLeaves())
	h.load(t)
	require.NoError(t, h.o.Select(context.Background(), ""))
	require.NoError(t, h.o.RunTests(context.Background()))
	<-h.runner.started
	h.runner.events.TestExecuted("ProjectA.ClassB.M0", types.StatePassed)
	h.runner.events.TestExecuted("ProjectA.ClassB.M1", types.StateFailed)
	h.waitFor(t, func(s Status) bool { return s.Executed == 2 })

	require.ErrorIs(t, h.o.ToggleStateGroup(context.Background(), types.StateSkipped), ErrNoGroup)
	require.NoError(t, h.o.ToggleStateGroup(context.Background(), types.StateFailed))
	assert.True(t, h.status(t).IsStateGroupSelected)
	require.NoError(t, h.o.ToggleStateGroup(context.Background(), types.StatePassed))
	groupViews, err := h.o.StateGroups(context.Background())
	require.NoError(t, err)
	assert.True(t, groupViews[0].Selected)
	assert.False(t, groupViews[1].Selected)
	require.NoError(t, h.o.ToggleStateGroup(context.Background(), types.StatePassed))
	assert.False(t, h.status(t).IsStateGroupSelected)
}

func TestNavigate(t *testing.T) {
	h := newHarness(t, tenLeaves())
	h.load(t)

	require.NoError(t, h.o.Navigate(context.Background(), "ProjectA.ClassB"))
	require.NoError(t, h.o.Navigate(context.Background(), "ProjectA.ClassB.M3"))
	require.ErrorIs(t, h.o.Navigate(context.Background(), "ProjectA"), ErrNotNavigable)
	require.ErrorIs(t, h.o.Navigate(context.Background(), "ProjectA.Nope"), ErrNotFound)

	_, _, _, _, navigations := h.editor.snapshot()
	assert.Equal(t, []string{
		"class ProjectA ClassB",
		"method ProjectA ClassB M3",
	}, navigations)
}

func TestExpandCollapse(t *testing.T) {
	h := newHarness(t, tenLeaves())
	require.ErrorIs(t, h.o.ExpandAll(context.Background()), ErrNoSolution)
	h.load(t)

	require.NoError(t, h.o.SetExpanded(context.Background(), "", true))
	v, err := h.o.Tree(context.Background())
	require.NoError(t, err)
	assert.True(t, v.IsExpanded)
	assert.True(t, v.Children[0].IsExpanded, "sole child follows its parent")
	assert.False(t, v.Children[0].Children[0].IsExpanded)

	require.NoError(t, h.o.ExpandAll(context.Background()))
	v, err = h.o.Tree(context.Background())
	require.NoError(t, err)
	assert.True(t, v.Children[0].Children[1].IsExpanded)

	require.NoError(t, h.o.CollapseAll(context.Background()))
	v, err = h.o.Tree(context.Background())
	require.NoError(t, err)
	assert.False(t, v.IsExpanded)
	assert.Positive(t, h.notes.Count(nil, notify.PropExpanded))
}

func TestResultsUpdatedEnrichesLeaves(t *testing.T) {
	passed := &types.TestResult{Outcome: types.StatePassed, Duration: time.Second}
	provider := &mapResults{results: map[string]*types.TestResult{
		"ClassB.M0": passed,
		"ClassC.M9": {Outcome: types.StateFailed},
	}}
	e, err := enrich.New(enrich.Config{Provider: provider, MaxConcurrency: 4})
	require.NoError(t, err)

	h := newHarness(t, tenLeaves(), func(c *Config) { c.Enricher = e })
	h.o.ResultsUpdated() // no tree yet
	h.load(t)
	h.o.ResultsUpdated()

	require.Eventually(t, func() bool {
		n := 0
		_ = h.o.Do(context.Background(), func(root *tree.Node, _ *groups.Index) {
			for _, l := range root.Leaves() {
				if l.Result() != nil {
					n++
				}
			}
		})
		return n == 2
	}, 5*time.Second, 5*time.Millisecond)

	v, err := h.o.Tree(context.Background())
	require.NoError(t, err)
	assert.Same(t, passed, v.Children[0].Children[0].Children[0].Result)
}

func TestStopRejectsCommands(t *testing.T) {
	h := newHarness(t, tenLeaves())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, h.o.Stop(ctx))
	assert.True(t, h.o.Stopped())
	_, err := h.o.Status(context.Background())
	require.ErrorIs(t, err, ErrStopped)
	// Events after stop are dropped without blocking.
	h.o.BuildStarted()
}

func TestAbandonedQueryLeavesCallerAlone(t *testing.T) {
	h := newHarness(t, tenLeaves())
	h.load(t)
	release := make(chan struct{})
	require.True(t, h.o.post(func() { <-release }))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	v, err := h.o.Tree(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Nil(t, v)

	close(release)
	assert.Equal(t, Ready, h.status(t).RunnerState)
	tr, err := h.o.Tree(context.Background())
	require.NoError(t, err)
	require.NotNil(t, tr)
}
