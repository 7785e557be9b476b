package types

import "time"

// TestResult is a previously computed result for a method, as stored by a
// result provider.
type TestResult struct {
	Outcome   TestState     `json:"outcome"`
	Duration  time.Duration `json:"duration"`
	Message   string        `json:"message,omitempty"`
	Output    string        `json:"output,omitempty"`
	Coverage  float64       `json:"coverage,omitempty"`
	RunID     string        `json:"runId,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}
