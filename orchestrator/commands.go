package orchestrator

import (
	"context"
	"fmt"

	"github.com/ethereum-optimism/infra/op-explorer/metrics"
	"github.com/ethereum-optimism/infra/op-explorer/notify"
	"github.com/ethereum-optimism/infra/op-explorer/tree"
	"github.com/ethereum-optimism/infra/op-explorer/types"
)

// call runs fn on the owner loop and returns its error.
func (o *Orchestrator) call(ctx context.Context, fn func() error) error {
	err, qerr := query(ctx, o, fn)
	if qerr != nil {
		return qerr
	}
	return err
}

// Build asks the editor to build the solution. Only allowed while idle.
func (o *Orchestrator) Build(ctx context.Context) error {
	return o.call(ctx, func() error {
		if o.isBusy() {
			return ErrBusy
		}
		if err := o.editor.BuildSolution(); err != nil {
			metrics.RecordBuild(false)
			return fmt.Errorf("building solution: %w", err)
		}
		o.beginBuild()
		return nil
	})
}

// RunTests runs the tests below the selected node. Only allowed while idle and
// with a selection.
func (o *Orchestrator) RunTests(ctx context.Context) error {
	return o.call(ctx, o.runTests)
}

func (o *Orchestrator) canRunTests() bool {
	return !o.isBusy() && o.selected != nil
}

func (o *Orchestrator) runTests() error {
	if o.isBusy() {
		return ErrBusy
	}
	if o.selected == nil {
		return ErrNoSelection
	}
	o.beginRun(o.selected)
	item := o.selected.Item()
	runID := o.run.id
	o.background(func(ctx context.Context) {
		if err := o.runner.RunTests(ctx, item); err != nil {
			o.log.Error("Test runner failed", "runID", runID, "err", err)
			metrics.RecordErrorDetails("runner", err)
			o.post(func() {
				if o.run != nil && o.run.id == runID {
					o.finishRun()
				}
			})
		}
	})
	return nil
}

func (o *Orchestrator) lookup(path string) (*tree.Node, error) {
	if o.root == nil {
		return nil, ErrNoSolution
	}
	if path == "" {
		return o.root, nil
	}
	node := tree.Route(o.root, path)
	if node == nil {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, path)
	}
	return node, nil
}

func (o *Orchestrator) selectNode(n *tree.Node) {
	if o.selected == n {
		return
	}
	o.selected = n
	o.notify(notify.PropSelected)
}

// Select selects the node at path. An empty path selects the solution.
func (o *Orchestrator) Select(ctx context.Context, path string) error {
	return o.call(ctx, func() error {
		node, err := o.lookup(path)
		if err != nil {
			return err
		}
		o.selectNode(node)
		return nil
	})
}

func (o *Orchestrator) ClearSelection(ctx context.Context) error {
	return o.do(ctx, func() { o.selectNode(nil) })
}

// Navigate opens the source of the class or method at path in the editor.
func (o *Orchestrator) Navigate(ctx context.Context, path string) error {
	return o.call(ctx, func() error {
		node, err := o.lookup(path)
		if err != nil {
			return err
		}
		return o.navigate(node)
	})
}

func (o *Orchestrator) navigate(node *tree.Node) error {
	item := node.Item()
	project := ""
	if p := node.Ancestor(types.KindProject); p != nil {
		project = p.Item().Name
	}
	switch item.Kind {
	case types.KindClass:
		return o.editor.NavigateToClass(project, item.FullName)
	case types.KindMethod:
		class := ""
		if p := node.Parent(); p != nil {
			class = p.Item().FullName
		}
		return o.editor.NavigateToMethod(project, class, item.Name)
	default:
		return fmt.Errorf("%w: %s", ErrNotNavigable, item.Kind)
	}
}

func (o *Orchestrator) ExpandAll(ctx context.Context) error {
	return o.call(ctx, func() error {
		if o.root == nil {
			return ErrNoSolution
		}
		o.root.ExpandAll()
		return nil
	})
}

func (o *Orchestrator) CollapseAll(ctx context.Context) error {
	return o.call(ctx, func() error {
		if o.root == nil {
			return ErrNoSolution
		}
		o.root.CollapseAll()
		return nil
	})
}

// SetExpanded expands or collapses the node at path.
func (o *Orchestrator) SetExpanded(ctx context.Context, path string, expanded bool) error {
	return o.call(ctx, func() error {
		node, err := o.lookup(path)
		if err != nil {
			return err
		}
		node.SetExpanded(expanded)
		return nil
	})
}

// ToggleStateGroup selects the group of the given state, or clears the
// selection if that group is already selected.
func (o *Orchestrator) ToggleStateGroup(ctx context.Context, state types.TestState) error {
	return o.call(ctx, func() error {
		g := o.groups.Group(state)
		if g == nil {
			return fmt.Errorf("%w %s", ErrNoGroup, state)
		}
		o.groups.ToggleSelect(g)
		o.notify(notify.PropGroups)
		return nil
	})
}

func (o *Orchestrator) SetAutoCover(ctx context.Context, enabled bool) error {
	return o.do(ctx, func() {
		o.autoCover = enabled
		o.notify(notify.PropAutoCover)
	})
}
