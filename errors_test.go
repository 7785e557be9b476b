package explorer

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/infra/op-explorer/exitcodes"
	"github.com/ethereum-optimism/infra/op-explorer/groups"
	"github.com/ethereum-optimism/infra/op-explorer/reporting"
	"github.com/ethereum-optimism/infra/op-explorer/tree"
	"github.com/ethereum-optimism/infra/op-explorer/types"
)

func TestRuntimeError(t *testing.T) {
	base := errors.New("go.mod not found")
	plain := NewRuntimeError(base)
	assert.Equal(t, "runtime error: go.mod not found", plain.Error())
	assert.ErrorIs(t, plain, base)

	staged := stageError(StageBuild, base)
	assert.Equal(t, "runtime error during build: go.mod not found", staged.Error())

	wrapped := fmt.Errorf("failed to start: %w", staged)
	assert.True(t, IsRuntimeError(wrapped))
	assert.False(t, IsTestFailureError(wrapped))

	var exitErr cli.ExitCoder
	require.ErrorAs(t, wrapped, &exitErr)
	assert.Equal(t, exitcodes.RuntimeErr, exitErr.ExitCode())

	assert.False(t, IsRuntimeError(nil))
}

func TestTestFailureErrorFromSummary(t *testing.T) {
	root := tree.NewRoot(types.NewTestItem(types.KindClass, "c", "c",
		types.NewTestItem(types.KindMethod, "a", "c.a"),
		types.NewTestItem(types.KindMethod, "b", "c.b"),
		types.NewTestItem(types.KindMethod, "d", "c.d"),
	), nil)
	leaves := root.Leaves()
	summary := reporting.RunSummary{
		RunID:  "run-1",
		Target: "c",
		Total:  3,
		Groups: []*groups.Group{
			{State: types.StatePassed, Nodes: leaves[:1]},
			{State: types.StateFailed, Nodes: leaves[1:]},
		},
	}

	err := newTestFailureError(summary)
	assert.Equal(t, 2, err.Failed)
	assert.Equal(t, "run-1", err.RunID)
	assert.Equal(t, "test failure: 2 of 3 tests failed", err.Error())
	assert.True(t, IsTestFailureError(fmt.Errorf("failed to start: %w", err)))
	assert.False(t, IsRuntimeError(err))
	assert.Equal(t, exitcodes.TestFailure, err.ExitCode())
	assert.False(t, IsTestFailureError(nil))
}
