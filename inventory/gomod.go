package inventory

import (
	"context"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/mod/modfile"

	"github.com/ethereum-optimism/infra/op-explorer/types"
)

// GoModuleProvider discovers the tests of a Go module. Every package with test
// files is a project named by its import path, every _test.go file is a class
// named by its file stem and every TestXxx function is a method.
type GoModuleProvider struct {
	dir      string
	interner Interner
}

func NewGoModuleProvider(dir string) *GoModuleProvider {
	return &GoModuleProvider{dir: dir}
}

func (p *GoModuleProvider) Dir() string {
	return p.dir
}

func (p *GoModuleProvider) GetTestSolution(ctx context.Context, solution string) (*types.TestItem, error) {
	item, err := ScanModule(ctx, p.dir, solution)
	if err != nil {
		return nil, err
	}
	return p.interner.Intern(item), nil
}

// ModulePath reads the module path from dir/go.mod.
func ModulePath(dir string) (string, error) {
	goModPath := filepath.Join(dir, "go.mod")
	content, err := os.ReadFile(goModPath)
	if err != nil {
		return "", fmt.Errorf("failed to read go.mod: %w", err)
	}
	mf, err := modfile.Parse(goModPath, content, nil)
	if err != nil {
		return "", fmt.Errorf("failed to parse go.mod: %w", err)
	}
	if mf.Module == nil || mf.Module.Mod.Path == "" {
		return "", fmt.Errorf("could not find module name in go.mod")
	}
	return mf.Module.Mod.Path, nil
}

// MethodFullName is the key results are stored under for a Go test.
func MethodFullName(importPath, test string) string {
	return importPath + "." + test
}

// ScanModule walks the module rooted at dir. The solution is named after the
// module path unless solution is set.
func ScanModule(ctx context.Context, dir, solution string) (*types.TestItem, error) {
	modPath, err := ModulePath(dir)
	if err != nil {
		return nil, err
	}
	if solution == "" {
		solution = modPath
	}

	var projects []*types.TestItem
	fset := token.NewFileSet()
	err = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != dir {
			name := d.Name()
			if name == "vendor" || name == "testdata" || strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") {
				return filepath.SkipDir
			}
			// Nested modules are scanned on their own.
			if _, err := os.Stat(filepath.Join(p, "go.mod")); err == nil {
				return filepath.SkipDir
			}
		}

		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		importPath := modPath
		if rel != "." {
			importPath = path.Join(modPath, filepath.ToSlash(rel))
		}
		project, err := scanPackage(fset, dir, p, importPath)
		if err != nil {
			return err
		}
		if project != nil {
			projects = append(projects, project)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return types.NewTestItem(types.KindSolution, solution, modPath, projects...), nil
}

func scanPackage(fset *token.FileSet, moduleDir, pkgDir, importPath string) (*types.TestItem, error) {
	entries, err := os.ReadDir(pkgDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read package directory: %w", err)
	}

	var classes []*types.TestItem
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), "_test.go") {
			continue
		}
		filePath := filepath.Join(pkgDir, entry.Name())
		f, err := parser.ParseFile(fset, filePath, nil, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", entry.Name(), err)
		}
		relFile, err := filepath.Rel(moduleDir, filePath)
		if err != nil {
			return nil, err
		}
		relFile = filepath.ToSlash(relFile)

		var methods []*types.TestItem
		for _, decl := range f.Decls {
			fn, ok := decl.(*ast.FuncDecl)
			if !ok || fn.Recv != nil || !isTestFunc(fn.Name.Name) {
				continue
			}
			m := types.NewTestItem(types.KindMethod, fn.Name.Name, MethodFullName(importPath, fn.Name.Name))
			m.Source = &types.SourceLocation{File: relFile, Line: fset.Position(fn.Pos()).Line}
			methods = append(methods, m)
		}
		if len(methods) == 0 {
			continue
		}
		sort.Slice(methods, func(i, j int) bool { return methods[i].Name < methods[j].Name })

		stem := strings.TrimSuffix(entry.Name(), ".go")
		class := types.NewTestItem(types.KindClass, stem, importPath+"/"+entry.Name(), methods...)
		class.Source = &types.SourceLocation{File: relFile, Line: 1}
		classes = append(classes, class)
	}
	if len(classes) == 0 {
		return nil, nil
	}
	return types.NewTestItem(types.KindProject, importPath, importPath, classes...), nil
}

// isTestFunc follows the go tool: TestMain is excluded and the character
// after "Test" must not be lower case.
func isTestFunc(name string) bool {
	if !strings.HasPrefix(name, "Test") || name == "TestMain" {
		return false
	}
	if len(name) == len("Test") {
		return true
	}
	r, _ := utf8.DecodeRuneInString(name[len("Test"):])
	return !unicode.IsLower(r)
}
