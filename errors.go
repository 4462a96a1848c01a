package testexec

import (
	"errors"
	"fmt"

	"github.com/ethereum-optimism/infra/op-testexec/reporting"
)

// RuntimeError means no trustworthy verdict exists: the plan did not load,
// the runner refused the tree, or abandoned tests piled up. cmd maps it to
// exitcodes.RuntimeErr.
type RuntimeError struct {
	// Stage names the step that broke (plan, run, watchdog). Empty outside a run.
	Stage string
	Err   error
}

func (e *RuntimeError) Error() string {
	if e.Stage == "" {
		return fmt.Sprintf("runtime error: %v", e.Err)
	}
	return fmt.Sprintf("runtime error during %s: %v", e.Stage, e.Err)
}

func (e *RuntimeError) Unwrap() error { return e.Err }

func NewRuntimeError(err error) *RuntimeError {
	return &RuntimeError{Err: err}
}

func newStageError(stage string, err error) *RuntimeError {
	return &RuntimeError{Stage: stage, Err: err}
}

func IsRuntimeError(err error) bool {
	var rt *RuntimeError
	return errors.As(err, &rt)
}

// TestFailureError carries the summary of a run whose root failed
type TestFailureError struct {
	Run *reporting.RunSummary
}

func (e *TestFailureError) Error() string {
	if e.Run == nil {
		return "test failure"
	}
	return "test failure: " + e.Run.String()
}

func NewTestFailureError(run *reporting.RunSummary) *TestFailureError {
	return &TestFailureError{Run: run}
}

func IsTestFailureError(err error) bool {
	var tf *TestFailureError
	return errors.As(err, &tf)
}
