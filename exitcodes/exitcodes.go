// Package exitcodes defines the process exit codes of op-explorer.
package exitcodes

// In run-once mode the exit code reflects the outcome of the single run:
//
// * Success (0): every executed test passed, or was skipped or inconclusive
// * TestFailure (1): at least one test failed
// * RuntimeErr (2): the run could not be carried out, e.g. discovery or build
// failures, bad configuration or a timeout
const (
	Success     = 0
	TestFailure = 1
	RuntimeErr  = 2
)
