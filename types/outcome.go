package types

import "fmt"

// OutcomeError lets a body end with a non-failing state such as skipped or
// inconclusive by returning it as an error.
type OutcomeError struct {
	State   ResultState
	Message string
}

func (e *OutcomeError) Error() string {
	return fmt.Sprintf("%s: %s", e.State, e.Message)
}

// Skip ends the body as skipped
func Skip(format string, args ...any) error {
	return &OutcomeError{State: StateSkipped, Message: fmt.Sprintf(format, args...)}
}

// Ignore ends the body as ignored
func Ignore(format string, args ...any) error {
	return &OutcomeError{State: StateIgnored, Message: fmt.Sprintf(format, args...)}
}

// Inconclusive ends the body without a verdict
func Inconclusive(format string, args ...any) error {
	return &OutcomeError{State: StateInconclusive, Message: fmt.Sprintf(format, args...)}
}

// Warn ends the body with a warning
func Warn(format string, args ...any) error {
	return &OutcomeError{State: StateWarning, Message: fmt.Sprintf(format, args...)}
}
