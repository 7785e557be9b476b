package tree

import (
	"github.com/ethereum-optimism/infra/op-explorer/notify"
	"github.com/ethereum-optimism/infra/op-explorer/types"
)

// Sync reconciles the tree rooted at root with a new inventory snapshot and
// returns the resulting root.
//
// Children are matched by item identity. A matched child keeps its node, state
// and result and is synchronized recursively; an unmatched item gets a fresh
// node; nodes whose item is no longer present are removed. A nil snapshot tears
// the tree down and returns nil. A nil root builds a new tree.
func Sync(root *Node, snapshot *types.TestItem, n notify.Notifier) *Node {
	if snapshot == nil {
		return nil
	}
	if root == nil {
		return NewRoot(snapshot, n)
	}
	root.update(snapshot)
	return root
}

func (n *Node) update(item *types.TestItem) {
	n.item = item
	n.notify(notify.PropItem)

	stale := make(map[*Node]struct{}, len(n.children))
	byItem := make(map[*types.TestItem]*Node, len(n.children))
	for _, c := range n.children {
		stale[c] = struct{}{}
		if _, dup := byItem[c.item]; !dup {
			byItem[c.item] = c
		}
	}

	for _, childItem := range item.Children {
		if existing, ok := byItem[childItem]; ok {
			if _, pending := stale[existing]; pending {
				delete(stale, existing)
				existing.update(childItem)
				continue
			}
		}
		n.addChild(childItem)
	}

	if len(stale) == 0 {
		return
	}
	// Remove in child order so notifications are deterministic.
	for _, c := range append([]*Node(nil), n.children...) {
		if _, ok := stale[c]; ok {
			n.removeChild(c)
		}
	}
}
