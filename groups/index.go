// Package groups indexes the nodes that reached a given state during a run.
package groups

import (
	"github.com/ethereum-optimism/infra/op-explorer/tree"
	"github.com/ethereum-optimism/infra/op-explorer/types"
)

// Group holds the nodes that transitioned to State during the current run, in
// the order they were recorded.
type Group struct {
	State    types.TestState
	Nodes    []*tree.Node
	Selected bool
}

func (g *Group) Len() int { return len(g.Nodes) }

// Index is a lazily populated set of groups, at most one per state. It is not
// safe for concurrent use.
type Index struct {
	groups []*Group
}

func NewIndex() *Index {
	return &Index{}
}

// Clear drops every group, selection included.
func (x *Index) Clear() {
	x.groups = nil
}

// Record appends node to the group matching its current state, creating the
// group on first use.
func (x *Index) Record(node *tree.Node) *Group {
	g := x.Group(node.State())
	if g == nil {
		g = &Group{State: node.State()}
		x.groups = append(x.groups, g)
	}
	g.Nodes = append(g.Nodes, node)
	return g
}

// Group returns the group for state, or nil.
func (x *Index) Group(state types.TestState) *Group {
	for _, g := range x.groups {
		if g.State == state {
			return g
		}
	}
	return nil
}

// Groups returns the groups in creation order. The slice must not be modified.
func (x *Index) Groups() []*Group {
	return x.groups
}

// ToggleSelect makes g the only selected group. Toggling a group that is
// already the sole selection clears the selection.
func (x *Index) ToggleSelect(g *Group) {
	target := !g.Selected
	for _, other := range x.groups {
		if other != g {
			other.Selected = false
		}
	}
	g.Selected = target
}

// Selected returns the selected group, or nil.
func (x *Index) Selected() *Group {
	for _, g := range x.groups {
		if g.Selected {
			return g
		}
	}
	return nil
}

// AnySelected reports whether some group is selected.
func (x *Index) AnySelected() bool {
	return x.Selected() != nil
}

// Counts returns the group sizes keyed by state.
func (x *Index) Counts() map[types.TestState]int {
	out := make(map[types.TestState]int, len(x.groups))
	for _, g := range x.groups {
		out[g.State] = len(g.Nodes)
	}
	return out
}
