// Package inventory discovers test inventories and hands them to the explorer
// as TestItem snapshots.
package inventory

import (
	"sync"

	"github.com/ethereum-optimism/infra/op-explorer/types"
)

type internKey struct {
	kind     types.TestItemKind
	fullName string
}

// Interner keeps item pointers stable across snapshots. A subtree that is
// structurally equal to the same subtree of the previous snapshot is replaced
// by the previous pointer, so the tree keeps its nodes for it.
type Interner struct {
	mu   sync.Mutex
	prev map[internKey]*types.TestItem
}

// Intern returns root with every unchanged subtree swapped for the item seen
// in the previous call. The returned snapshot becomes the new baseline.
func (in *Interner) Intern(root *types.TestItem) *types.TestItem {
	in.mu.Lock()
	defer in.mu.Unlock()

	if root == nil {
		in.prev = nil
		return nil
	}
	next := make(map[internKey]*types.TestItem)
	out := in.intern(root, next)
	in.prev = next
	return out
}

func (in *Interner) intern(item *types.TestItem, next map[internKey]*types.TestItem) *types.TestItem {
	children := make([]*types.TestItem, len(item.Children))
	for i, c := range item.Children {
		children[i] = in.intern(c, next)
	}

	key := internKey{kind: item.Kind, fullName: item.FullName}
	if old, ok := in.prev[key]; ok && sameItem(old, item, children) {
		next[key] = old
		return old
	}

	fresh := types.NewTestItem(item.Kind, item.Name, item.FullName, children...)
	fresh.Source = item.Source
	next[key] = fresh
	return fresh
}

// sameItem compares old with a candidate whose children are already interned,
// so children can be compared by pointer.
func sameItem(old, item *types.TestItem, children []*types.TestItem) bool {
	if old.Name != item.Name || old.Kind != item.Kind {
		return false
	}
	if (old.Source == nil) != (item.Source == nil) {
		return false
	}
	if old.Source != nil && *old.Source != *item.Source {
		return false
	}
	if len(old.Children) != len(children) {
		return false
	}
	for i := range children {
		if old.Children[i] != children[i] {
			return false
		}
	}
	return true
}
