package tree

import "github.com/ethereum-optimism/infra/op-explorer/types"

// Walk visits the node and its descendants depth first in sorted order.
// Returning false from the visitor skips the children of the visited node.
func (n *Node) Walk(visitor func(*Node) bool) {
	if n == nil {
		return
	}
	if !visitor(n) {
		return
	}
	for _, c := range n.children {
		c.Walk(visitor)
	}
}

// Leaves returns every method node below n.
func (n *Node) Leaves() []*Node {
	var out []*Node
	n.Walk(func(node *Node) bool {
		if node.item.Kind == types.KindMethod {
			out = append(out, node)
		}
		return true
	})
	return out
}

// Count returns the number of nodes in the subtree, n included.
func (n *Node) Count() int {
	c := 0
	n.Walk(func(*Node) bool {
		c++
		return true
	})
	return c
}

// Find returns the first node in the subtree holding item.
func (n *Node) Find(item *types.TestItem) *Node {
	var found *Node
	n.Walk(func(node *Node) bool {
		if found != nil {
			return false
		}
		if node.item == item {
			found = node
			return false
		}
		return true
	})
	return found
}
