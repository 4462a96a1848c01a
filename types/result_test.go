package types

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func leafResult(name string, state ResultState) *Result {
	r := NewResult(TestInfo{Name: name, FullName: name})
	r.SetResult(state, "")
	return r
}

func suiteResult(name string) *Result {
	r := NewResult(TestInfo{Name: name, FullName: name, IsSuite: true})
	r.SetResult(StateSuccess, "")
	return r
}

func TestAddChildAggregation(t *testing.T) {
	tests := []struct {
		name     string
		children []ResultState
		expected ResultState
		message  string
	}{
		{
			name:     "all passed",
			children: []ResultState{StateSuccess, StateSuccess},
			expected: StateSuccess,
		},
		{
			name:     "failure wins over warning",
			children: []ResultState{StateWarning, StateFailure, StateSuccess},
			expected: StateChildFailure,
			message:  ChildErrorsMessage,
		},
		{
			name:     "warning without failure",
			children: []ResultState{StateSuccess, StateWarning},
			expected: StateChildWarning,
			message:  ChildWarningsMessage,
		},
		{
			name:     "ignored child",
			children: []ResultState{StateIgnored, StateSuccess},
			expected: StateChildIgnored,
			message:  ChildIgnoredMessage,
		},
		{
			name:     "plain skip keeps success",
			children: []ResultState{StateSkipped, StateSuccess},
			expected: StateSuccess,
		},
		{
			name:     "not runnable child fails the suite",
			children: []ResultState{StateNotRunnable},
			expected: StateChildFailure,
			message:  ChildErrorsMessage,
		},
		{
			name:     "cancelled child is a failure until overwritten",
			children: []ResultState{StateCancelled, StateSuccess},
			expected: StateChildFailure,
			message:  ChildErrorsMessage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			suite := suiteResult("suite")
			for i, s := range tt.children {
				suite.AddChild(leafResult(string(rune('a'+i)), s))
			}
			assert.Equal(t, tt.expected, suite.State)
			assert.Equal(t, tt.message, suite.Message)
			assert.Len(t, suite.Children, len(tt.children))
		})
	}
}

func TestAddChildInconclusiveSuiteBecomesSuccess(t *testing.T) {
	suite := NewResult(TestInfo{Name: "s", IsSuite: true})
	require.Equal(t, StateInconclusive, suite.State)
	suite.AddChild(leafResult("a", StateSuccess))
	assert.Equal(t, StateSuccess, suite.State)
}

func TestAddChildCounts(t *testing.T) {
	inner := suiteResult("inner")
	inner.AddChild(leafResult("a", StateSuccess))
	inner.AddChild(leafResult("b", StateFailure))
	inner.AssertCount = 2

	outer := suiteResult("outer")
	outer.AddChild(inner)
	outer.AddChild(leafResult("c", StateWarning))
	outer.AddChild(leafResult("d", StateSkipped))
	outer.AddChild(leafResult("e", StateInconclusive))

	c := outer.Counts()
	assert.Equal(t, Counts{Passed: 1, Failed: 1, Warnings: 1, Skipped: 1, Inconclusive: 1}, c)
	assert.Equal(t, 5, c.Total())
	assert.Equal(t, 2, outer.AssertCount)
}

func TestAddChildCopiesResult(t *testing.T) {
	suite := suiteResult("suite")
	child := leafResult("a", StateSuccess)
	suite.AddChild(child)
	child.SetResult(StateFailure, "changed later")

	require.Len(t, suite.Children, 1)
	assert.Equal(t, StateSuccess, suite.Children[0].State)
}

func TestRecordError(t *testing.T) {
	t.Run("plain error is a failure", func(t *testing.T) {
		r := leafResult("a", StateSuccess)
		r.RecordError(errors.New("boom"), SiteTest)
		assert.Equal(t, StateFailure, r.State)
		assert.Equal(t, "boom", r.Message)
	})

	t.Run("outcome error sets its state", func(t *testing.T) {
		r := leafResult("a", StateSuccess)
		r.RecordError(Skip("not today %d", 1), SiteTest)
		assert.Equal(t, StateSkipped, r.State)
		assert.Equal(t, "not today 1", r.Message)
	})

	t.Run("wrapped outcome error", func(t *testing.T) {
		r := leafResult("a", StateSuccess)
		r.RecordError(errors.Join(errors.New("ctx"), Ignore("later")), SiteTest)
		assert.Equal(t, StateIgnored, r.State)
	})

	t.Run("panic is an error with trace", func(t *testing.T) {
		r := leafResult("a", StateSuccess)
		r.RecordError(NewPanicError("kaboom"), SiteSetUp)
		assert.Equal(t, StateSetUpError, r.State)
		assert.Equal(t, "panic: kaboom", r.Message)
		assert.NotEmpty(t, r.Trace)
	})

	t.Run("setup site", func(t *testing.T) {
		r := suiteResult("s")
		r.RecordError(errors.New("X"), SiteSetUp)
		assert.Equal(t, StateSetUpFailure, r.State)
		assert.Equal(t, "X", r.Message)
	})
}

func TestRecordTearDownError(t *testing.T) {
	r := suiteResult("s")
	r.AddChild(leafResult("a", StateFailure))
	r.RecordTearDownError(errors.New("cleanup failed"))

	assert.Equal(t, StateTearDownError, r.State)
	assert.Equal(t, ChildErrorsMessage+"\n"+TearDownPrefix+"cleanup failed", r.Message)

	cancelled := suiteResult("c")
	cancelled.SetResult(StateCancelled, "cancelled")
	cancelled.RecordTearDownError(errors.New("x"))
	assert.True(t, cancelled.State.IsCancelled())
	assert.Equal(t, SiteTearDown, cancelled.State.Site)
}

func TestHasCancelledChild(t *testing.T) {
	r := suiteResult("s")
	r.AddChild(leafResult("a", StateSuccess))
	assert.False(t, r.HasCancelledChild())
	r.AddChild(leafResult("b", StateCancelled))
	assert.True(t, r.HasCancelledChild())
}

func TestWalk(t *testing.T) {
	inner := suiteResult("inner")
	inner.AddChild(leafResult("a", StateSuccess))
	outer := suiteResult("outer")
	outer.AddChild(inner)

	var names []string
	var depths []int
	outer.Walk(func(r *Result, depth int) {
		names = append(names, r.Info.Name)
		depths = append(depths, depth)
	})
	assert.Equal(t, []string{"outer", "inner", "a"}, names)
	assert.Equal(t, []int{0, 1, 2}, depths)
}
