package orchestrator

import (
	"context"

	"github.com/ethereum-optimism/infra/op-explorer/types"
)

// EditorEvents is implemented by the orchestrator and fed by the editor host.
type EditorEvents interface {
	SolutionOpened()
	SolutionClosing()
	BuildStarted()
	BuildFinished()
}

// RunnerEvents is implemented by the orchestrator and fed by the test runner.
// Paths are dotted item names below the solution, e.g. "Project.Class.Method".
type RunnerEvents interface {
	TestsStarted()
	TestExecuted(path string, outcome types.TestState)
	TestLogAdded(text string)
	TestsFinished()
}

// ResultEvents is implemented by the orchestrator and fed by the result store.
type ResultEvents interface {
	ResultsUpdated()
}

// EditorContext is the host environment: it owns the solution, builds it,
// shows logs and navigates to source.
type EditorContext interface {
	Solution() string
	BuildSolution() error
	NavigateToClass(project, fullName string) error
	NavigateToMethod(project, classFullName, methodName string) error
	ClearLog()
	WriteToLog(text string)
	ActivateLog()
	Subscribe(EditorEvents)
}

// TestProvider discovers the test inventory of a solution.
type TestProvider interface {
	GetTestSolution(ctx context.Context, solution string) (*types.TestItem, error)
}

// TestRunner executes the tests below an item. RunTests may block until the
// run is over; progress is reported through RunnerEvents.
type TestRunner interface {
	RunTests(ctx context.Context, item *types.TestItem) error
	Subscribe(RunnerEvents)
}

var (
	_ EditorEvents = (*Orchestrator)(nil)
	_ RunnerEvents = (*Orchestrator)(nil)
	_ ResultEvents = (*Orchestrator)(nil)
)
