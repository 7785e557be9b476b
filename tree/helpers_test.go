package tree

import (
	"fmt"

	"github.com/ethereum-optimism/infra/op-explorer/types"
)

func method(class, name string) *types.TestItem {
	return types.NewTestItem(types.KindMethod, name, fmt.Sprintf("%s.%s", class, name))
}

func class(name string, methods ...string) *types.TestItem {
	children := make([]*types.TestItem, 0, len(methods))
	for _, m := range methods {
		children = append(children, method(name, m))
	}
	return types.NewTestItem(types.KindClass, name, name, children...)
}

func project(name string, classes ...*types.TestItem) *types.TestItem {
	return types.NewTestItem(types.KindProject, name, name, classes...)
}

func solution(projects ...*types.TestItem) *types.TestItem {
	return types.NewTestItem(types.KindSolution, "sol", "sol", projects...)
}

func childNames(n *Node) []string {
	var names []string
	for _, c := range n.Children() {
		names = append(names, c.Item().Name)
	}
	return names
}
