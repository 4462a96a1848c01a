// Package exitcodes defines the exit codes of op-testexec.
//
// * Success (0): the run passed, or finished with warnings or skips
// * TestFailure (1): the root result failed
// * RuntimeErr (2): the run could not be carried out, such as an invalid plan
package exitcodes

const (
	Success     = 0
	TestFailure = 1
	RuntimeErr  = 2
)
