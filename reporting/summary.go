// Package reporting renders the state of a run for humans: a summary table of
// the state groups and a text rendering of the tree.
package reporting

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ethereum-optimism/infra/op-explorer/groups"
	"github.com/ethereum-optimism/infra/op-explorer/types"
	"github.com/ethereum-optimism/infra/op-explorer/ui"
)

// RunSummary describes a finished run.
type RunSummary struct {
	RunID    string
	Solution string
	Target   string
	Total    int
	Executed int
	Duration time.Duration
	Groups   []*groups.Group
}

// Outcome is the highest ranked state reached by any group.
func (s RunSummary) Outcome() types.TestState {
	out := types.StateUnknown
	for _, g := range s.Groups {
		if out.Less(g.State) {
			out = g.State
		}
	}
	return out
}

// WriteSummary renders the summary as a table.
func WriteSummary(w io.Writer, s RunSummary) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(fmt.Sprintf("Test run %s (%s)", s.RunID, formatDuration(s.Duration)))
	t.AppendHeader(table.Row{"State", "Tests", "Examples"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Tests", Align: text.AlignRight},
		{Name: "Examples", WidthMax: 80, WidthMaxEnforcer: text.WrapSoft},
	})

	for _, g := range s.Groups {
		t.AppendRow(table.Row{
			fmt.Sprintf("%s %s", ui.StateSymbol(g.State), g.State),
			g.Len(),
			examples(g, 3),
		})
	}

	switch s.Outcome() {
	case types.StateFailed, types.StateInconclusive:
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	case types.StateSkipped:
		t.SetStyle(table.StyleColoredBlackOnYellowWhite)
	default:
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	}
	t.AppendFooter(table.Row{"TOTAL", fmt.Sprintf("%d/%d", s.Executed, s.Total), s.Target})
	t.Render()
}

// Summary renders the summary table to a string.
func Summary(s RunSummary) string {
	var b strings.Builder
	WriteSummary(&b, s)
	return b.String()
}

func examples(g *groups.Group, max int) string {
	var names []string
	for i, n := range g.Nodes {
		if i == max {
			names = append(names, fmt.Sprintf("(+%d more)", len(g.Nodes)-max))
			break
		}
		names = append(names, n.Path())
	}
	return strings.Join(names, ", ")
}

// Helper function to format duration to seconds with 1 decimal place
func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}

// Counts is a convenience for log lines.
func Counts(idx *groups.Index) []any {
	var kv []any
	for _, g := range idx.Groups() {
		kv = append(kv, g.State.String(), g.Len())
	}
	return kv
}
