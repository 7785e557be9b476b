package types

import (
	"fmt"
	"strings"
)

// TestState is the execution state of a tree node. Values are ranked: a state
// with a higher rank wins when states are rolled up to ancestors.
type TestState int

const (
	StateUnknown TestState = iota
	StateScheduled
	StatePassed
	StateSkipped
	StateInconclusive
	StateFailed
)

// AllStates lists every state in rank order.
var AllStates = []TestState{
	StateUnknown,
	StateScheduled,
	StatePassed,
	StateSkipped,
	StateInconclusive,
	StateFailed,
}

func (s TestState) String() string {
	switch s {
	case StateUnknown:
		return "unknown"
	case StateScheduled:
		return "scheduled"
	case StatePassed:
		return "passed"
	case StateSkipped:
		return "skipped"
	case StateInconclusive:
		return "inconclusive"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Less reports whether s ranks below other.
func (s TestState) Less(other TestState) bool {
	return s < other
}

// IsOutcome reports whether the state is the result of executing a test.
func (s TestState) IsOutcome() bool {
	return s >= StatePassed
}

func ParseTestState(s string) (TestState, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "unknown", "":
		return StateUnknown, nil
	case "scheduled":
		return StateScheduled, nil
	case "passed", "pass":
		return StatePassed, nil
	case "skipped", "skip":
		return StateSkipped, nil
	case "inconclusive":
		return StateInconclusive, nil
	case "failed", "fail":
		return StateFailed, nil
	default:
		return StateUnknown, fmt.Errorf("unknown test state %q", s)
	}
}

func (s TestState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *TestState) UnmarshalText(b []byte) error {
	parsed, err := ParseTestState(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
