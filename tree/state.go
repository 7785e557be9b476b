package tree

import (
	"github.com/ethereum-optimism/infra/op-explorer/notify"
	"github.com/ethereum-optimism/infra/op-explorer/types"
)

// SetState records a state on the node, marks it current and rolls it up.
// An ancestor takes the new state when its own state is stale or ranks below
// the new one. Every ancestor up to the root is visited.
func (n *Node) SetState(s types.TestState) {
	n.assign(s)
	for p := n.parent; p != nil; p = p.parent {
		if !p.current || p.state.Less(s) {
			p.assign(s)
		}
	}
}

func (n *Node) assign(s types.TestState) {
	n.state = s
	n.current = true
	n.notify(notify.PropState)
	n.notify(notify.PropStateCurrent)
}

// ResetAll marks the whole subtree stale. States are kept so the previous
// outcome stays visible until it is overwritten.
func (n *Node) ResetAll() {
	n.Walk(func(node *Node) bool {
		node.current = false
		node.notify(notify.PropStateCurrent)
		return true
	})
}

// ScheduleAll sets every node of the subtree to Scheduled, top down.
func (n *Node) ScheduleAll() {
	n.Walk(func(node *Node) bool {
		node.SetState(types.StateScheduled)
		return true
	})
}
