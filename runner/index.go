package runner

import (
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/ethereum-optimism/infra/op-explorer/types"
)

type testKey struct {
	pkg  string
	test string
}

type indexedTest struct {
	path     string
	fullName string
}

// testIndex maps go test events back to explorer paths.
type testIndex struct {
	tests    map[testKey]indexedTest
	packages map[string][]string
}

// TestPath returns the dotted explorer path of a Go method item, or false if
// the item does not carry enough information to be routed.
func TestPath(method *types.TestItem) (string, bool) {
	if method == nil || method.Kind != types.KindMethod || method.Source == nil {
		return "", false
	}
	pkg, ok := strings.CutSuffix(method.FullName, "."+method.Name)
	if !ok || pkg == "" {
		return "", false
	}
	class := strings.TrimSuffix(path.Base(method.Source.File), ".go")
	return pkg + "." + class + "." + method.Name, true
}

func newTestIndex(item *types.TestItem) *testIndex {
	idx := &testIndex{
		tests:    make(map[testKey]indexedTest),
		packages: make(map[string][]string),
	}
	for _, m := range item.Methods() {
		p, ok := TestPath(m)
		if !ok {
			continue
		}
		pkg := strings.TrimSuffix(m.FullName, "."+m.Name)
		key := testKey{pkg: pkg, test: m.Name}
		if _, dup := idx.tests[key]; dup {
			continue
		}
		idx.tests[key] = indexedTest{path: p, fullName: m.FullName}
		idx.packages[pkg] = append(idx.packages[pkg], m.Name)
	}
	return idx
}

func (i *testIndex) lookup(pkg, test string) (indexedTest, bool) {
	t, ok := i.tests[testKey{pkg: pkg, test: test}]
	return t, ok
}

func (i *testIndex) empty() bool {
	return len(i.tests) == 0
}

// Packages returns the selected packages in sorted order.
func (i *testIndex) Packages() []string {
	pkgs := make([]string, 0, len(i.packages))
	for p := range i.packages {
		pkgs = append(pkgs, p)
	}
	sort.Strings(pkgs)
	return pkgs
}

// RunPattern matches exactly the selected top level tests.
func (i *testIndex) RunPattern() string {
	seen := make(map[string]struct{})
	var names []string
	for _, tests := range i.packages {
		for _, t := range tests {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			names = append(names, regexp.QuoteMeta(t))
		}
	}
	sort.Strings(names)
	return "^(" + strings.Join(names, "|") + ")$"
}
