package types

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Kind discriminates leaf tests from composite suites
type Kind int

const (
	KindLeaf Kind = iota
	KindSuite
)

func (k Kind) String() string {
	switch k {
	case KindLeaf:
		return "test"
	case KindSuite:
		return "suite"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// RunState tells whether a declaration may be executed
type RunState int

const (
	RunStateRunnable RunState = iota
	RunStateNotRunnable
	RunStateSkipped
	RunStateIgnored
	RunStateExplicit
)

func (s RunState) String() string {
	switch s {
	case RunStateRunnable:
		return "runnable"
	case RunStateNotRunnable:
		return "not-runnable"
	case RunStateSkipped:
		return "skipped"
	case RunStateIgnored:
		return "ignored"
	case RunStateExplicit:
		return "explicit"
	default:
		return fmt.Sprintf("runstate(%d)", int(s))
	}
}

// ParallelScope is a set of flags declaring which units may run concurrently with their siblings
type ParallelScope uint8

const (
	ParallelScopeDefault  ParallelScope = 0
	ParallelScopeSelf     ParallelScope = 1 << 0
	ParallelScopeChildren ParallelScope = 1 << 1
	ParallelScopeFixtures ParallelScope = 1 << 2
	ParallelScopeNone     ParallelScope = 1 << 3

	ParallelScopeAll = ParallelScopeSelf | ParallelScopeChildren
)

// Has reports whether any of the given flags are set
func (p ParallelScope) Has(flag ParallelScope) bool {
	return p&flag != 0
}

func (p ParallelScope) String() string {
	if p == ParallelScopeDefault {
		return "default"
	}
	var parts []string
	for _, f := range []struct {
		flag ParallelScope
		name string
	}{
		{ParallelScopeSelf, "self"},
		{ParallelScopeChildren, "children"},
		{ParallelScopeFixtures, "fixtures"},
		{ParallelScopeNone, "none"},
	} {
		if p.Has(f.flag) {
			parts = append(parts, f.name)
		}
	}
	return strings.Join(parts, "|")
}

// ParseParallelScope parses a comma or pipe separated list of scope names
func ParseParallelScope(s string) (ParallelScope, error) {
	var scope ParallelScope
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == '|' }) {
		switch strings.TrimSpace(strings.ToLower(part)) {
		case "", "default":
		case "self":
			scope |= ParallelScopeSelf
		case "children":
			scope |= ParallelScopeChildren
		case "fixtures":
			scope |= ParallelScopeFixtures
		case "all":
			scope |= ParallelScopeAll
		case "none":
			scope |= ParallelScopeNone
		default:
			return 0, fmt.Errorf("unknown parallel scope %q", part)
		}
	}
	if scope.Has(ParallelScopeNone) && scope.Has(ParallelScopeSelf) {
		return 0, fmt.Errorf("parallel scope %q combines none with self", s)
	}
	return scope, nil
}

// Affinity names a class of threads a unit must run on. Units sharing a
// class are serialized onto a single worker. The empty affinity means any thread.
type Affinity string

const (
	AffinityNone Affinity = ""
	AffinityMain Affinity = "main"
)

// T is handed to test bodies and to suite setup and teardown
type T interface {
	// Context is cancelled when the body times out or the run is aborted
	Context() context.Context
	// Assert counts an assertion and records a failure when ok is false
	Assert(ok bool, format string, args ...any) bool
	// Warn records a warning without failing the test
	Warn(format string, args ...any)
	// Log writes a message to the run logger, tagged with the test name
	Log(msg string, ctx ...any)
	// Name returns the full name of the running test or suite
	Name() string
}

// Func is the body of a test, or a suite setup or teardown
type Func func(t T) error

// Test is an immutable declaration of a runnable leaf or a suite of children
type Test struct {
	ID   string
	Name string
	Kind Kind

	RunState   RunState
	SkipReason string

	ParallelScope  ParallelScope
	Affinity       Affinity
	RequiresThread bool
	Timeout        time.Duration
	Order          int

	// Body runs a leaf test
	Body Func
	// SetUp and TearDown run once around a suite's children
	SetUp    Func
	TearDown Func

	Children []*Test
}

// NewTest declares a leaf test
func NewTest(name string, body Func) *Test {
	return &Test{
		Name: name,
		Kind: KindLeaf,
		Body: body,
	}
}

// NewSuite declares a suite holding the given children
func NewSuite(name string, children ...*Test) *Test {
	return &Test{
		Name:     name,
		Kind:     KindSuite,
		Children: children,
	}
}

// IsSuite reports whether the declaration is a composite
func (t *Test) IsSuite() bool {
	return t.Kind == KindSuite
}

// HasFixture reports whether a suite carries one-time setup or teardown state.
// Leaves always run inside their parent's fixture.
func (t *Test) HasFixture() bool {
	if t.Kind == KindLeaf {
		return true
	}
	return t.SetUp != nil || t.TearDown != nil
}

// CountTestCases counts the leaves below t that pass the filter
func (t *Test) CountTestCases(filter Filter) int {
	if filter == nil {
		filter = EmptyFilter
	}
	return t.countTestCases(filter, t.Name)
}

func (t *Test) countTestCases(filter Filter, fullName string) int {
	if !filter.Pass(t, fullName) {
		return 0
	}
	if !t.IsSuite() {
		return 1
	}
	childFilter := ForChildren(filter, t, fullName)
	count := 0
	for _, child := range t.Children {
		count += child.countTestCases(childFilter, JoinName(fullName, child.Name))
	}
	return count
}

// JoinName builds the full name of a child from its parent's full name
func JoinName(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "/" + name
}
