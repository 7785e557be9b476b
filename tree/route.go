package tree

import "strings"

// Route resolves a dotted path, as reported by a test runner, to a node below
// root. Names may themselves contain dots: segments are accumulated until they
// spell out the name of a child, then the walk descends and starts over.
// It returns nil when the path does not resolve completely.
func Route(root *Node, path string) *Node {
	if root == nil || path == "" {
		return nil
	}
	cur := root
	var pending []string
	for _, segment := range strings.Split(path, ".") {
		pending = append(pending, segment)
		if child := cur.childNamed(strings.Join(pending, ".")); child != nil {
			cur = child
			pending = pending[:0]
		}
	}
	if len(pending) > 0 {
		return nil
	}
	return cur
}

func (n *Node) childNamed(name string) *Node {
	for _, c := range n.children {
		if c.item.Name == name {
			return c
		}
	}
	return nil
}
