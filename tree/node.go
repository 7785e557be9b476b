// Package tree holds the mutable view of a test inventory: a tree of nodes
// that mirrors a TestItem snapshot, keeps siblings sorted by name, and rolls
// execution state up towards the root.
//
// Nodes are not safe for concurrent use. All mutation is expected to happen
// on a single owner goroutine.
package tree

import (
	"strings"

	"github.com/ethereum-optimism/infra/op-explorer/notify"
	"github.com/ethereum-optimism/infra/op-explorer/types"
)

// Node is one element of the tree.
type Node struct {
	item     *types.TestItem
	parent   *Node
	children []*Node

	state    types.TestState
	current  bool
	result   *types.TestResult
	expanded bool

	notifier notify.Notifier
}

// NewRoot builds a complete tree for the given item. The notifier receives
// every property change raised by the tree and may be nil.
func NewRoot(item *types.TestItem, n notify.Notifier) *Node {
	if n == nil {
		n = notify.Null
	}
	return newNode(nil, item, n)
}

// newNode builds the node and, recursively, one child per child item. The
// node is not attached to parent; see addChild.
func newNode(parent *Node, item *types.TestItem, n notify.Notifier) *Node {
	if item == nil {
		panic("tree: node requires a test item")
	}
	node := &Node{
		item:     item,
		parent:   parent,
		notifier: n,
	}
	for _, c := range item.Children {
		node.addChild(c)
	}
	return node
}

// addChild creates a node for item and inserts it before the first sibling
// whose name compares greater, ignoring case.
func (n *Node) addChild(item *types.TestItem) *Node {
	child := newNode(n, item, n.notifier)
	key := strings.ToLower(item.Name)
	i := 0
	for ; i < len(n.children); i++ {
		if strings.ToLower(n.children[i].item.Name) > key {
			break
		}
	}
	n.children = append(n.children, nil)
	copy(n.children[i+1:], n.children[i:])
	n.children[i] = child
	n.notify(notify.PropChildren)
	return child
}

func (n *Node) removeChild(child *Node) bool {
	for i, c := range n.children {
		if c == child {
			n.children = append(n.children[:i], n.children[i+1:]...)
			child.parent = nil
			n.notify(notify.PropChildren)
			return true
		}
	}
	return false
}

func (n *Node) notify(prop string) {
	n.notifier.Notify(notify.Event{Source: n, Property: prop})
}

func (n *Node) Item() *types.TestItem { return n.item }

// Parent returns nil for the root.
func (n *Node) Parent() *Node { return n.parent }

// Children returns the sorted children. The slice must not be modified.
func (n *Node) Children() []*Node { return n.children }

func (n *Node) State() types.TestState { return n.state }

// IsStateCurrent reports whether the state was set during the current run.
// A stale state is still reported by State.
func (n *Node) IsStateCurrent() bool { return n.current }

func (n *Node) Result() *types.TestResult { return n.result }

func (n *Node) IsExpanded() bool { return n.expanded }

func (n *Node) IsRoot() bool { return n.parent == nil }

// Root walks up to the top of the tree.
func (n *Node) Root() *Node {
	for n.parent != nil {
		n = n.parent
	}
	return n
}

// Depth is 0 for the root.
func (n *Node) Depth() int {
	d := 0
	for p := n.parent; p != nil; p = p.parent {
		d++
	}
	return d
}

// Path returns the dotted path of the node as accepted by Route: the names of
// every ancestor below the root, joined with '.'.
func (n *Node) Path() string {
	var names []string
	for cur := n; cur != nil && cur.parent != nil; cur = cur.parent {
		names = append(names, cur.item.Name)
	}
	for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
		names[i], names[j] = names[j], names[i]
	}
	return strings.Join(names, ".")
}

// Ancestor returns the closest ancestor, or the node itself, of the given kind.
func (n *Node) Ancestor(kind types.TestItemKind) *Node {
	for cur := n; cur != nil; cur = cur.parent {
		if cur.item.Kind == kind {
			return cur
		}
	}
	return nil
}

// SetResult attaches a stored result to the node.
func (n *Node) SetResult(r *types.TestResult) {
	n.result = r
	n.notify(notify.PropResult)
}

// SetExpanded toggles the node. When the node has exactly one child the value
// is propagated to that child, and so on down the chain.
func (n *Node) SetExpanded(expanded bool) {
	for cur := n; cur != nil; {
		cur.expanded = expanded
		cur.notify(notify.PropExpanded)
		if len(cur.children) != 1 {
			break
		}
		cur = cur.children[0]
	}
}

// ExpandAll expands the node and its whole subtree.
func (n *Node) ExpandAll() {
	n.Walk(func(node *Node) bool {
		node.SetExpanded(true)
		return true
	})
}

// CollapseAll collapses the node and its whole subtree.
func (n *Node) CollapseAll() {
	n.Walk(func(node *Node) bool {
		node.SetExpanded(false)
		return true
	})
}
