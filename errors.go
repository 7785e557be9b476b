package explorer

import (
	"errors"
	"fmt"

	"github.com/ethereum-optimism/infra/op-explorer/exitcodes"
	"github.com/ethereum-optimism/infra/op-explorer/reporting"
	"github.com/ethereum-optimism/infra/op-explorer/types"
)

// Stages of a run-once invocation, reported by RuntimeError.
const (
	StageStartup  = "startup"
	StageDiscover = "discover"
	StageBuild    = "build"
	StageSelect   = "select"
	StageRun      = "run"
)

// RuntimeError means the explorer could not carry out its work. Both error
// types implement cli.ExitCoder.
type RuntimeError struct {
	Stage string
	Err   error
}

func NewRuntimeError(err error) *RuntimeError {
	return &RuntimeError{Err: err}
}

func stageError(stage string, err error) *RuntimeError {
	return &RuntimeError{Stage: stage, Err: err}
}

func (e *RuntimeError) Error() string {
	if e.Stage == "" {
		return fmt.Sprintf("runtime error: %v", e.Err)
	}
	return fmt.Sprintf("runtime error during %s: %v", e.Stage, e.Err)
}

func (e *RuntimeError) Unwrap() error { return e.Err }

func (e *RuntimeError) ExitCode() int { return exitcodes.RuntimeErr }

func IsRuntimeError(err error) bool {
	var target *RuntimeError
	return errors.As(err, &target)
}

// TestFailureError is the result of a finished run with failed tests.
type TestFailureError struct {
	RunID  string
	Target string
	Failed int
	Total  int
}

func newTestFailureError(summary reporting.RunSummary) *TestFailureError {
	e := &TestFailureError{RunID: summary.RunID, Target: summary.Target, Total: summary.Total}
	for _, g := range summary.Groups {
		if g.State == types.StateFailed {
			e.Failed = g.Len()
		}
	}
	return e
}

func (e *TestFailureError) Error() string {
	return fmt.Sprintf("test failure: %d of %d tests failed", e.Failed, e.Total)
}

func (e *TestFailureError) ExitCode() int { return exitcodes.TestFailure }

func IsTestFailureError(err error) bool {
	var target *TestFailureError
	return errors.As(err, &target)
}
