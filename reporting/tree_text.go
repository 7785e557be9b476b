package reporting

import (
	"fmt"
	"io"
	"strings"

	"github.com/ethereum-optimism/infra/op-explorer/tree"
	"github.com/ethereum-optimism/infra/op-explorer/ui"
)

// TreeOptions controls WriteTree.
type TreeOptions struct {
	// OnlyExpanded hides the children of collapsed nodes.
	OnlyExpanded bool
	// ShowResults appends stored result durations to leaves.
	ShowResults bool
}

// WriteTree renders the tree rooted at root with box drawing connectors.
func WriteTree(w io.Writer, root *tree.Node, opts TreeOptions) error {
	if root == nil {
		_, err := fmt.Fprintln(w, "(no solution loaded)")
		return err
	}
	return writeNode(w, root, 0, true, nil, opts)
}

func writeNode(w io.Writer, n *tree.Node, depth int, isLast bool, parentIsLast []bool, opts TreeOptions) error {
	var line strings.Builder
	line.WriteString(ui.BuildTreePrefix(depth, isLast, parentIsLast))
	if len(n.Children()) > 0 {
		if n.IsExpanded() {
			line.WriteString(ui.ExpandedMarker)
		} else {
			line.WriteString(ui.CollapsedMarker)
		}
	}
	line.WriteString(ui.StateSymbol(n.State()))
	line.WriteString(" ")
	if icon := ui.KindIcon(n.Item().Kind); icon != "" {
		line.WriteString(icon)
		line.WriteString(" ")
	}
	line.WriteString(n.Item().Name)
	if !n.IsStateCurrent() && n.State().IsOutcome() {
		line.WriteString(" (stale)")
	}
	if opts.ShowResults && n.Result() != nil {
		fmt.Fprintf(&line, " [%s]", formatDuration(n.Result().Duration))
	}
	if _, err := fmt.Fprintln(w, line.String()); err != nil {
		return err
	}

	if opts.OnlyExpanded && !n.IsExpanded() {
		return nil
	}
	children := n.Children()
	var next []bool
	if depth > 0 {
		next = append(append([]bool(nil), parentIsLast...), isLast)
	}
	for i, c := range children {
		if err := writeNode(w, c, depth+1, i == len(children)-1, next, opts); err != nil {
			return err
		}
	}
	return nil
}

// TreeString renders the whole tree to a string.
func TreeString(root *tree.Node) string {
	var b strings.Builder
	_ = WriteTree(&b, root, TreeOptions{})
	return b.String()
}
