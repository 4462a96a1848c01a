package types

import (
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"
)

// Messages recorded on a suite when a child changes its state
const (
	ChildErrorsMessage   = "One or more child tests had errors"
	ChildWarningsMessage = "One or more child tests had warnings"
	ChildIgnoredMessage  = "One or more child tests were ignored"
	TearDownPrefix       = "TearDown : "
	OneTimeSetUpPrefix   = "OneTimeSetUp: "
)

// TestInfo identifies the unit a result or an event belongs to
type TestInfo struct {
	ID       string
	Name     string
	FullName string
	IsSuite  bool
}

// Counts tallies leaf outcomes below a suite
type Counts struct {
	Passed       int `json:"passed"`
	Failed       int `json:"failed"`
	Warnings     int `json:"warnings"`
	Skipped      int `json:"skipped"`
	Inconclusive int `json:"inconclusive"`
}

// Total returns the number of leaves counted
func (c Counts) Total() int {
	return c.Passed + c.Failed + c.Warnings + c.Skipped + c.Inconclusive
}

func (c *Counts) add(o Counts) {
	c.Passed += o.Passed
	c.Failed += o.Failed
	c.Warnings += o.Warnings
	c.Skipped += o.Skipped
	c.Inconclusive += o.Inconclusive
}

// Result is the outcome of running a leaf or a suite. It is owned by a single
// work unit while running; everyone else receives a Clone.
type Result struct {
	Info        TestInfo
	State       ResultState
	Message     string
	Trace       string
	Start       time.Time
	End         time.Time
	Duration    time.Duration
	AssertCount int
	Children    []*Result

	suiteCounts Counts
}

// NewResult creates an inconclusive result for the given unit
func NewResult(info TestInfo) *Result {
	return &Result{
		Info:  info,
		State: StateInconclusive,
	}
}

// SetResult replaces the state and message
func (r *Result) SetResult(state ResultState, message string) {
	r.State = state
	r.Message = message
}

// SetResultWithTrace replaces the state, message and trace
func (r *Result) SetResultWithTrace(state ResultState, message, trace string) {
	r.SetResult(state, message)
	r.Trace = trace
}

// Counts returns the leaf tallies. A leaf counts itself.
func (r *Result) Counts() Counts {
	if r.Info.IsSuite {
		return r.suiteCounts
	}
	var c Counts
	switch r.State.Status {
	case TestStatusPass:
		c.Passed = 1
	case TestStatusFail:
		c.Failed = 1
	case TestStatusWarning:
		c.Warnings = 1
	case TestStatusSkip:
		c.Skipped = 1
	default:
		c.Inconclusive = 1
	}
	return c
}

// Passed reports whether the result is a pass or a warning-free success
func (r *Result) Passed() bool {
	return r.State.Status == TestStatusPass
}

// Failed reports whether the result is a failure of any kind
func (r *Result) Failed() bool {
	return r.State.Status == TestStatusFail
}

// AddChild folds a completed child result into this suite result. The child
// is copied; later changes to it are not observed.
func (r *Result) AddChild(child *Result) {
	switch child.State.Status {
	case TestStatusPass:
		if r.State.Status == TestStatusInconclusive {
			r.SetResult(StateSuccess, "")
		}
	case TestStatusWarning:
		switch r.State.Status {
		case TestStatusInconclusive, TestStatusPass, TestStatusSkip:
			r.SetResult(StateChildWarning, ChildWarningsMessage)
		}
	case TestStatusFail:
		if r.State.Status != TestStatusFail {
			r.SetResult(StateChildFailure, ChildErrorsMessage)
		}
	case TestStatusSkip:
		if child.State.Label == LabelIgnored {
			switch r.State.Status {
			case TestStatusInconclusive, TestStatusPass:
				r.SetResult(StateChildIgnored, ChildIgnoredMessage)
			}
		}
	}

	r.AssertCount += child.AssertCount
	r.suiteCounts.add(child.Counts())
	r.Children = append(r.Children, child.Clone())
}

// HasCancelledChild reports whether any direct child ended cancelled
func (r *Result) HasCancelledChild() bool {
	for _, c := range r.Children {
		if c.State.IsCancelled() {
			return true
		}
	}
	return false
}

// RecordError converts an error returned by user code into result data,
// attributed to the given site.
func (r *Result) RecordError(err error, site FailureSite) {
	var outcome *OutcomeError
	if errors.As(err, &outcome) {
		r.SetResult(outcome.State.WithSite(site), outcome.Message)
		return
	}
	var p *PanicError
	if errors.As(err, &p) {
		r.SetResultWithTrace(StateError.WithSite(site), p.Error(), p.Stack)
		return
	}
	r.SetResult(StateFailure.WithSite(site), err.Error())
}

// RecordTearDownError records an error from one-time teardown. The previous
// message is kept and the teardown message appended.
func (r *Result) RecordTearDownError(err error) {
	state := StateTearDownError
	if r.State.IsCancelled() {
		state = StateCancelled.WithSite(SiteTearDown)
	}
	msg := TearDownPrefix + err.Error()
	if r.Message != "" {
		msg = r.Message + "\n" + msg
	}
	trace := r.Trace
	var p *PanicError
	if errors.As(err, &p) {
		trace = strings.TrimSpace(trace + "\n--TearDown\n" + p.Stack)
	}
	r.SetResultWithTrace(state, msg, trace)
}

// Clone returns a deep copy of the result
func (r *Result) Clone() *Result {
	if r == nil {
		return nil
	}
	c := *r
	if r.Children != nil {
		c.Children = make([]*Result, len(r.Children))
		for i, child := range r.Children {
			c.Children[i] = child.Clone()
		}
	}
	return &c
}

// Walk visits the result and all its descendants depth first
func (r *Result) Walk(fn func(res *Result, depth int)) {
	r.walk(fn, 0)
}

func (r *Result) walk(fn func(res *Result, depth int), depth int) {
	fn(r, depth)
	for _, c := range r.Children {
		c.walk(fn, depth+1)
	}
}

// PanicError wraps a value recovered from a panicking body
type PanicError struct {
	Value any
	Stack string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// NewPanicError captures the current stack for a recovered value
func NewPanicError(v any) *PanicError {
	return &PanicError{Value: v, Stack: string(debug.Stack())}
}
