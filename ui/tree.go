package ui

import (
	"strings"

	"github.com/ethereum-optimism/infra/op-explorer/types"
)

// Tree hierarchy symbols using box drawing characters
const (
	TreeBranch     = "├── "
	TreeLastBranch = "└── "
	TreeContinue   = "│   "
	TreeIndent     = "    "

	ExpandedMarker  = "▾ "
	CollapsedMarker = "▸ "
)

// BuildTreePrefix returns the connector drawn before a node at the given
// depth. parentIsLast[i] tells whether the ancestor at depth i+1 was the last
// of its siblings.
func BuildTreePrefix(depth int, isLast bool, parentIsLast []bool) string {
	if depth == 0 {
		return ""
	}

	var b strings.Builder
	for i := 0; i < depth-1; i++ {
		if i < len(parentIsLast) && parentIsLast[i] {
			b.WriteString(TreeIndent)
		} else {
			b.WriteString(TreeContinue)
		}
	}
	if isLast {
		b.WriteString(TreeLastBranch)
	} else {
		b.WriteString(TreeBranch)
	}
	return b.String()
}

// StateSymbol is a one character rendering of a state.
func StateSymbol(s types.TestState) string {
	switch s {
	case types.StateScheduled:
		return "…"
	case types.StatePassed:
		return "✓"
	case types.StateSkipped:
		return "-"
	case types.StateInconclusive:
		return "?"
	case types.StateFailed:
		return "✗"
	default:
		return "·"
	}
}

// KindIcon labels non-leaf items in text renderings.
func KindIcon(k types.TestItemKind) string {
	switch k {
	case types.KindSolution:
		return "[sln]"
	case types.KindProject:
		return "[prj]"
	case types.KindClass:
		return "[cls]"
	default:
		return ""
	}
}
