package types

import (
	"fmt"
	"strings"
)

// TestItemKind is the level of a TestItem in the solution hierarchy.
type TestItemKind int

const (
	KindSolution TestItemKind = iota
	KindProject
	KindClass
	KindMethod
)

func (k TestItemKind) String() string {
	switch k {
	case KindSolution:
		return "solution"
	case KindProject:
		return "project"
	case KindClass:
		return "class"
	case KindMethod:
		return "method"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseTestItemKind is the inverse of TestItemKind.String.
func ParseTestItemKind(s string) (TestItemKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "solution":
		return KindSolution, nil
	case "project":
		return KindProject, nil
	case "class":
		return KindClass, nil
	case "method":
		return KindMethod, nil
	default:
		return 0, fmt.Errorf("unknown test item kind %q", s)
	}
}

func (k TestItemKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *TestItemKind) UnmarshalText(b []byte) error {
	parsed, err := ParseTestItemKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Child returns the kind that sits one level below k. Methods have no children.
func (k TestItemKind) Child() (TestItemKind, bool) {
	if k >= KindMethod {
		return 0, false
	}
	return k + 1, true
}

// SourceLocation points at the declaration of a class or method.
type SourceLocation struct {
	File string `json:"file" yaml:"file"`
	Line int    `json:"line,omitempty" yaml:"line,omitempty"`
}

// TestItem is one node of a test inventory snapshot. Items are never mutated
// once a snapshot has been handed out; identity across snapshots is pointer
// identity.
type TestItem struct {
	Kind      TestItemKind    `json:"kind"`
	Name      string          `json:"name"`
	FullName  string          `json:"fullName"`
	Children  []*TestItem     `json:"children,omitempty"`
	TestCount int             `json:"testCount"`
	Source    *SourceLocation `json:"source,omitempty"`
}

// NewTestItem builds an item and derives TestCount from its children.
func NewTestItem(kind TestItemKind, name, fullName string, children ...*TestItem) *TestItem {
	item := &TestItem{
		Kind:     kind,
		Name:     name,
		FullName: fullName,
		Children: children,
	}
	item.TestCount = countLeaves(item)
	return item
}

func countLeaves(item *TestItem) int {
	if item.Kind == KindMethod {
		return 1
	}
	n := 0
	for _, c := range item.Children {
		n += c.TestCount
	}
	return n
}

// IsLeaf reports whether the item is a single executable test.
func (t *TestItem) IsLeaf() bool {
	return t.Kind == KindMethod
}

// Walk visits the item and all of its descendants depth first. Returning false
// from the visitor skips the children of the visited item.
func (t *TestItem) Walk(visitor func(*TestItem) bool) {
	if t == nil {
		return
	}
	if !visitor(t) {
		return
	}
	for _, c := range t.Children {
		c.Walk(visitor)
	}
}

// Methods returns every method leaf below the item, in inventory order.
func (t *TestItem) Methods() []*TestItem {
	var out []*TestItem
	t.Walk(func(i *TestItem) bool {
		if i.IsLeaf() {
			out = append(out, i)
		}
		return true
	})
	return out
}

func (t *TestItem) String() string {
	return fmt.Sprintf("%s %s", t.Kind, t.FullName)
}
