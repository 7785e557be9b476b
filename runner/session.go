package runner

import (
	"bufio"
	"context"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/acarl005/stripansi"

	"github.com/ethereum-optimism/infra/op-explorer/types"
)

var coverageRe = regexp.MustCompile(`coverage: ([0-9.]+)% of statements`)

type pendingResult struct {
	fullName string
	result   *types.TestResult
}

// session turns one stream of test2json events into runner events and
// results.
type session struct {
	r     *GoTestRunner
	idx   *testIndex
	runID string

	output   map[testKey]*strings.Builder
	reported map[testKey]bool
	pending  map[string][]pendingResult
	coverage map[string]float64
	events   int
	recorded int
}

func newSession(r *GoTestRunner, idx *testIndex, runID string) *session {
	return &session{
		r:        r,
		idx:      idx,
		runID:    runID,
		output:   make(map[testKey]*strings.Builder),
		reported: make(map[testKey]bool),
		pending:  make(map[string][]pendingResult),
		coverage: make(map[string]float64),
	}
}

// consume reads events until rd is exhausted. Lines that are not JSON, such
// as compiler errors, are forwarded to the log as they are.
func (s *session) consume(ctx context.Context, rd io.Reader) error {
	scanner := bufio.NewScanner(rd)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		event, err := parseTestEvent(line)
		if err != nil || event.Action == "" {
			s.r.emitLog(string(line) + "\n")
			continue
		}
		s.events++
		s.handle(ctx, event)
	}
	return scanner.Err()
}

func (s *session) handle(ctx context.Context, event TestEvent) {
	// Subtest output and outcomes belong to their top level test.
	test, _, isSubtest := strings.Cut(event.Test, "/")
	key := testKey{pkg: event.Package, test: test}

	switch {
	case event.Action == ActionOutput:
		s.r.emitLog(event.Output)
		if test == "" {
			if m := coverageRe.FindStringSubmatch(event.Output); m != nil {
				if pct, err := strconv.ParseFloat(m[1], 64); err == nil {
					s.coverage[event.Package] = pct / 100
				}
			}
			return
		}
		b, ok := s.output[key]
		if !ok {
			b = &strings.Builder{}
			s.output[key] = b
		}
		b.WriteString(stripansi.Strip(event.Output))

	case isOutcome(event.Action) && test == "":
		s.finishPackage(ctx, event)

	case isOutcome(event.Action) && !isSubtest:
		t, ok := s.idx.lookup(event.Package, test)
		if !ok || s.reported[key] {
			return
		}
		s.reported[key] = true
		outcome := outcomeOf(event.Action)
		out := ""
		if b, ok := s.output[key]; ok {
			out = b.String()
		}
		s.pending[event.Package] = append(s.pending[event.Package], pendingResult{
			fullName: t.fullName,
			result: &types.TestResult{
				Outcome:   outcome,
				Duration:  time.Duration(event.Elapsed * float64(time.Second)),
				Message:   failureMessage(outcome, out),
				Output:    out,
				RunID:     s.runID,
				Timestamp: eventTime(event),
			},
		})
		s.r.emitExecuted(t.path, outcome)
	}
}

// finishPackage settles the tests of a package that never reported, then
// stores its results with the package coverage attached.
func (s *session) finishPackage(ctx context.Context, event TestEvent) {
	pkg := event.Package
	missing := types.StateInconclusive
	message := "test did not run"
	if event.Action == ActionFail {
		missing = types.StateFailed
		message = "package failed before the test reported"
	}
	for _, name := range s.idx.packages[pkg] {
		key := testKey{pkg: pkg, test: name}
		if s.reported[key] {
			continue
		}
		s.reported[key] = true
		t, _ := s.idx.lookup(pkg, name)
		s.pending[pkg] = append(s.pending[pkg], pendingResult{
			fullName: t.fullName,
			result: &types.TestResult{
				Outcome:   missing,
				Message:   message,
				RunID:     s.runID,
				Timestamp: eventTime(event),
			},
		})
		s.r.emitExecuted(t.path, missing)
	}
	s.flush(ctx, pkg)
}

func (s *session) flush(ctx context.Context, pkg string) {
	cov, hasCov := s.coverage[pkg]
	for _, p := range s.pending[pkg] {
		if hasCov {
			p.result.Coverage = cov
		}
		if err := s.r.results.Record(ctx, p.fullName, p.result); err != nil {
			s.r.log.Warn("Failed to record test result", "test", p.fullName, "err", err)
			continue
		}
		s.recorded++
	}
	delete(s.pending, pkg)
}

// finish settles every package that never sent its own outcome, e.g. when the
// go command failed to start a test binary.
func (s *session) finish(ctx context.Context, outcome string) {
	for _, pkg := range s.idx.Packages() {
		s.finishPackage(ctx, TestEvent{Action: outcome, Package: pkg, Time: time.Now()})
	}
}

func outcomeOf(action string) types.TestState {
	switch action {
	case ActionPass:
		return types.StatePassed
	case ActionFail:
		return types.StateFailed
	case ActionSkip:
		return types.StateSkipped
	default:
		return types.StateUnknown
	}
}

// failureMessage keeps the file:line assertions of a failed test.
func failureMessage(outcome types.TestState, output string) string {
	if outcome != types.StateFailed {
		return ""
	}
	var lines []string
	for _, l := range strings.Split(output, "\n") {
		t := strings.TrimSpace(l)
		if strings.HasPrefix(t, "--- FAIL") || strings.HasPrefix(t, "=== RUN") || t == "" {
			continue
		}
		if strings.Contains(t, ".go:") || strings.HasPrefix(t, "panic:") {
			lines = append(lines, t)
		}
	}
	return strings.Join(lines, "\n")
}

func eventTime(e TestEvent) time.Time {
	if e.Time.IsZero() {
		return time.Now()
	}
	return e.Time
}
