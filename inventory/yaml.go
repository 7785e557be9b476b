package inventory

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ethereum-optimism/infra/op-explorer/types"
)

// File is the on-disk YAML inventory format.
//
//	solution: calculator
//	projects:
//	  - name: ProjectA
//	    classes:
//	      - name: ClassB
//	        methods:
//	          - name: MethodC
//	            line: 12
type File struct {
	Solution string        `yaml:"solution"`
	Projects []ProjectSpec `yaml:"projects"`
}

type ProjectSpec struct {
	Name    string      `yaml:"name"`
	Classes []ClassSpec `yaml:"classes"`
}

type ClassSpec struct {
	Name string `yaml:"name"`
	// FullName defaults to "<project>.<class>".
	FullName string       `yaml:"fullName,omitempty"`
	File     string       `yaml:"file,omitempty"`
	Line     int          `yaml:"line,omitempty"`
	Methods  []MethodSpec `yaml:"methods"`
}

type MethodSpec struct {
	Name string `yaml:"name"`
	// Line is relative to the class file.
	Line int `yaml:"line,omitempty"`
}

// FileProvider reads the inventory from a YAML file on every request.
type FileProvider struct {
	path     string
	interner Interner
}

func NewFileProvider(path string) *FileProvider {
	return &FileProvider{path: path}
}

func (p *FileProvider) GetTestSolution(ctx context.Context, solution string) (*types.TestItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read inventory: %w", err)
	}
	item, err := ParseYAML(data, solution)
	if err != nil {
		return nil, err
	}
	return p.interner.Intern(item), nil
}

// ParseYAML builds a snapshot from a YAML inventory. solution overrides the
// solution name in the document when set.
func ParseYAML(data []byte, solution string) (*types.TestItem, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse inventory: %w", err)
	}
	if solution == "" {
		solution = f.Solution
	}

	projects := make([]*types.TestItem, 0, len(f.Projects))
	for _, ps := range f.Projects {
		if ps.Name == "" {
			return nil, fmt.Errorf("project without a name")
		}
		classes := make([]*types.TestItem, 0, len(ps.Classes))
		for _, cs := range ps.Classes {
			if cs.Name == "" {
				return nil, fmt.Errorf("class without a name in project %s", ps.Name)
			}
			fullName := cs.FullName
			if fullName == "" {
				fullName = ps.Name + "." + cs.Name
			}
			methods := make([]*types.TestItem, 0, len(cs.Methods))
			for _, ms := range cs.Methods {
				if ms.Name == "" {
					return nil, fmt.Errorf("method without a name in class %s", fullName)
				}
				m := types.NewTestItem(types.KindMethod, ms.Name, fullName+"."+ms.Name)
				if cs.File != "" {
					m.Source = &types.SourceLocation{File: cs.File, Line: ms.Line}
				}
				methods = append(methods, m)
			}
			c := types.NewTestItem(types.KindClass, cs.Name, fullName, methods...)
			if cs.File != "" {
				c.Source = &types.SourceLocation{File: cs.File, Line: cs.Line}
			}
			classes = append(classes, c)
		}
		projects = append(projects, types.NewTestItem(types.KindProject, ps.Name, ps.Name, classes...))
	}
	return types.NewTestItem(types.KindSolution, solution, solution, projects...), nil
}
