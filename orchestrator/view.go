package orchestrator

import (
	"context"

	"github.com/ethereum-optimism/infra/op-explorer/tree"
	"github.com/ethereum-optimism/infra/op-explorer/types"
)

// Status is a point in time copy of the orchestrator's observable state.
type Status struct {
	RunnerState             RunnerState `json:"runnerState"`
	IsBusy                  bool        `json:"isBusy"`
	IsTesting               bool        `json:"isTesting"`
	IsSolutionLoaded        bool        `json:"isSolutionLoaded"`
	IsAutoCoverEnabled      bool        `json:"isAutoCoverEnabled"`
	IsItemSelected          bool        `json:"isItemSelected"`
	SelectedPath            string      `json:"selectedPath,omitempty"`
	IsStateGroupSelected    bool        `json:"isStateGroupSelected"`
	CanBuild                bool        `json:"canBuild"`
	CanRunTests             bool        `json:"canRunTests"`
	Progress                float64     `json:"progress"`
	IsProgressIndeterminate bool        `json:"isProgressIndeterminate"`
	StatusMessage           string      `json:"statusMessage"`
	Solution                string      `json:"solution"`
	RunID                   string      `json:"runId,omitempty"`
	Executed                int         `json:"executed"`
	Total                   int         `json:"total"`
}

// NodeView is a detached copy of a tree node.
type NodeView struct {
	Kind           types.TestItemKind    `json:"kind"`
	Name           string                `json:"name"`
	FullName       string                `json:"fullName"`
	Path           string                `json:"path"`
	TestCount      int                   `json:"testCount"`
	State          types.TestState       `json:"state"`
	IsStateCurrent bool                  `json:"isStateCurrent"`
	IsExpanded     bool                  `json:"isExpanded"`
	IsSelected     bool                  `json:"isSelected"`
	Source         *types.SourceLocation `json:"source,omitempty"`
	Result         *types.TestResult     `json:"result,omitempty"`
	Children       []*NodeView           `json:"children,omitempty"`
}

// GroupView is a detached copy of a state group.
type GroupView struct {
	State    types.TestState `json:"state"`
	Selected bool            `json:"selected"`
	Count    int             `json:"count"`
	Paths    []string        `json:"paths"`
}

func (o *Orchestrator) Status(ctx context.Context) (Status, error) {
	return query(ctx, o, o.status)
}

func (o *Orchestrator) status() Status {
	s := Status{
		RunnerState:             o.state,
		IsBusy:                  o.isBusy(),
		IsTesting:               o.state == Testing,
		IsSolutionLoaded:        o.loaded,
		IsAutoCoverEnabled:      o.autoCover,
		IsItemSelected:          o.selected != nil,
		IsStateGroupSelected:    o.groups.AnySelected(),
		CanBuild:                !o.isBusy(),
		CanRunTests:             o.canRunTests(),
		Progress:                o.progress,
		IsProgressIndeterminate: o.indeterminate,
		StatusMessage:           o.statusMsg,
		Solution:                o.editor.Solution(),
	}
	if o.selected != nil {
		s.SelectedPath = o.selected.Path()
	}
	if o.run != nil {
		s.RunID = o.run.id
		s.Executed = o.run.executed
		s.Total = o.run.total
	}
	return s
}

// Tree returns a copy of the tree, or nil when no solution is loaded.
func (o *Orchestrator) Tree(ctx context.Context) (*NodeView, error) {
	return query(ctx, o, func() *NodeView {
		if o.root == nil {
			return nil
		}
		return o.view(o.root, "")
	})
}

func (o *Orchestrator) view(n *tree.Node, path string) *NodeView {
	item := n.Item()
	v := &NodeView{
		Kind:           item.Kind,
		Name:           item.Name,
		FullName:       item.FullName,
		Path:           path,
		TestCount:      item.TestCount,
		State:          n.State(),
		IsStateCurrent: n.IsStateCurrent(),
		IsExpanded:     n.IsExpanded(),
		IsSelected:     n == o.selected,
		Source:         item.Source,
		Result:         n.Result(),
	}
	for _, c := range n.Children() {
		childPath := c.Item().Name
		if path != "" {
			childPath = path + "." + childPath
		}
		v.Children = append(v.Children, o.view(c, childPath))
	}
	return v
}

func (o *Orchestrator) StateGroups(ctx context.Context) ([]GroupView, error) {
	return query(ctx, o, func() []GroupView {
		var out []GroupView
		for _, g := range o.groups.Groups() {
			gv := GroupView{State: g.State, Selected: g.Selected, Count: g.Len()}
			for _, n := range g.Nodes {
				gv.Paths = append(gv.Paths, n.Path())
			}
			out = append(out, gv)
		}
		return out
	})
}
