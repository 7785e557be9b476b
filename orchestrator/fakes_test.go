package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum-optimism/infra/op-explorer/types"
)

type fakeEditor struct {
	mu          sync.Mutex
	solution    string
	events      EditorEvents
	builds      int
	buildErr    error
	logs        []string
	clears      int
	activations int
	navigations []string
}

func (e *fakeEditor) Solution() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.solution
}

func (e *fakeEditor) BuildSolution() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.builds++
	return e.buildErr
}

func (e *fakeEditor) NavigateToClass(project, fullName string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.navigations = append(e.navigations, fmt.Sprintf("class %s %s", project, fullName))
	return nil
}

func (e *fakeEditor) NavigateToMethod(project, classFullName, methodName string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.navigations = append(e.navigations, fmt.Sprintf("method %s %s %s", project, classFullName, methodName))
	return nil
}

func (e *fakeEditor) ClearLog() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.clears++
	e.logs = nil
}

func (e *fakeEditor) WriteToLog(text string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.logs = append(e.logs, text)
}

func (e *fakeEditor) ActivateLog() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.activations++
}

func (e *fakeEditor) Subscribe(events EditorEvents) {
	e.events = events
}

func (e *fakeEditor) snapshot() (builds, clears, activations int, logs, navigations []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.builds, e.clears, e.activations, append([]string(nil), e.logs...), append([]string(nil), e.navigations...)
}

// fakeProvider returns the configured snapshot. It is swapped between calls to
// simulate rebuilds.
type fakeProvider struct {
	mu       sync.Mutex
	snapshot *types.TestItem
	err      error
	calls    int
}

func (p *fakeProvider) set(item *types.TestItem) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snapshot = item
}

func (p *fakeProvider) GetTestSolution(ctx context.Context, solution string) (*types.TestItem, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return p.snapshot, p.err
}

type fakeRunner struct {
	events  RunnerEvents
	started chan *types.TestItem
	err     error
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{started: make(chan *types.TestItem, 16)}
}

func (r *fakeRunner) Subscribe(events RunnerEvents) {
	r.events = events
}

func (r *fakeRunner) RunTests(ctx context.Context, item *types.TestItem) error {
	r.started <- item
	return r.err
}

type mapResults struct {
	mu      sync.Mutex
	results map[string]*types.TestResult
}

func (m *mapResults) GetTestResult(ctx context.Context, method *types.TestItem) (*types.TestResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.results[method.FullName], nil
}

func method(class, name string) *types.TestItem {
	return types.NewTestItem(types.KindMethod, name, class+"."+name)
}

func class(name string, methods ...string) *types.TestItem {
	var children []*types.TestItem
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
