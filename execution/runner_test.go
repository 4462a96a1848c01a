package execution

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum-optimism/infra/op-testexec/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParallelChildrenAllPass(t *testing.T) {
	listener := &RecordingListener{}
	r := newRunner(t, Settings{Workers: 2}, listener, nil)

	suite := types.NewSuite("suite",
		types.NewTest("a", passBody),
		types.NewTest("b", passBody),
		types.NewTest("c", passBody),
	)
	suite.ParallelScope = types.ParallelScopeChildren

	res := runTree(t, r, suite)
	assert.Equal(t, types.StateSuccess, res.State)
	assert.Equal(t, 3, res.Counts().Passed)
	assert.Equal(t, 0, res.Counts().Failed)
	assert.Len(t, res.Children, 3)

	events := listener.Events()
	var childStarted, childFinished int
	for _, ev := range events {
		if ev.Info.IsSuite {
			continue
		}
		switch ev.Kind {
		case EventStarted:
			childStarted++
		case EventFinished:
			childFinished++
		}
	}
	assert.Equal(t, 3, childStarted)
	assert.Equal(t, 3, childFinished)

	last := events[len(events)-1]
	assert.Equal(t, EventFinished, last.Kind)
	assert.Equal(t, "suite", last.Info.FullName)
	assert.Equal(t, 3, last.Result.Counts().Passed)
}

func TestChildrenFinishBeforeParent(t *testing.T) {
	listener := &RecordingListener{}
	r := newRunner(t, Settings{Workers: 3}, listener, nil)

	inner := types.NewSuite("inner", types.NewTest("x", passBody), types.NewTest("y", passBody))
	inner.SetUp = func(types.T) error { return nil }
	inner.ParallelScope = types.ParallelScopeChildren
	root := types.NewSuite("root", inner, types.NewTest("z", passBody), types.NewTest("w", passBody))
	root.ParallelScope = types.ParallelScopeAll

	runTree(t, r, root)
	events := listener.Events()

	parents := map[string][]string{
		"root":       {"root/inner", "root/z", "root/w"},
		"root/inner": {"root/inner/x", "root/inner/y"},
	}
	for parent, children := range parents {
		pi := finishedIndex(events, parent)
		require.GreaterOrEqual(t, pi, 0, parent)
		for _, c := range children {
			ci := finishedIndex(events, c)
			require.GreaterOrEqual(t, ci, 0, c)
			assert.Less(t, ci, pi, "%s finished after its parent %s", c, parent)
		}
	}
}

func TestSetUpFailureSkipsChildren(t *testing.T) {
	listener := &RecordingListener{}
	r := newRunner(t, Settings{Workers: 2}, listener, nil)

	var tearDowns atomic.Int32
	suite := types.NewSuite("suite",
		types.NewTest("a", passBody),
		types.NewTest("b", passBody),
	)
	suite.SetUp = func(types.T) error { return errors.New("X") }
	suite.TearDown = func(types.T) error {
		tearDowns.Add(1)
		return nil
	}

	res := runTree(t, r, suite)
	assert.Equal(t, types.StateSetUpFailure, res.State)
	assert.Equal(t, "X", res.Message)
	assert.EqualValues(t, 1, tearDowns.Load())

	assert.Equal(t, []string{"suite"}, startedNames(listener.Events()))
	require.Len(t, res.Children, 2)
	for _, c := range res.Children {
		assert.Equal(t, types.StateFailure.WithSite(types.SiteParent), c.State)
		assert.Equal(t, "OneTimeSetUp: X", c.Message)
	}
	assert.Equal(t, 2, res.Counts().Failed)
}

func TestSetUpPanicIsRecorded(t *testing.T) {
	r := newRunner(t, Settings{Workers: 0}, nil, nil)
	suite := types.NewSuite("suite", types.NewTest("a", passBody))
	suite.SetUp = func(types.T) error { panic("broken fixture") }

	res := runTree(t, r, suite)
	assert.Equal(t, types.StateSetUpError, res.State)
	assert.Equal(t, "panic: broken fixture", res.Message)
	assert.NotEmpty(t, res.Trace)
}

func TestTearDownRunsOnceWhenChildrenFail(t *testing.T) {
	for _, workers := range []int{0, 1, 4} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			r := newRunner(t, Settings{Workers: workers}, nil, nil)
			var tearDowns atomic.Int32
			suite := types.NewSuite("suite",
				types.NewTest("ok", passBody),
				types.NewTest("bad", func(types.T) error { return errors.New("nope") }),
				types.NewTest("worse", func(types.T) error { panic("boom") }),
			)
			suite.ParallelScope = types.ParallelScopeChildren
			suite.SetUp = func(types.T) error { return nil }
			suite.TearDown = func(types.T) error {
				tearDowns.Add(1)
				return nil
			}

			res := runTree(t, r, suite)
			assert.EqualValues(t, 1, tearDowns.Load())
			assert.Equal(t, types.StateChildFailure, res.State)
			assert.Equal(t, types.ChildErrorsMessage, res.Message)
			assert.Equal(t, 1, res.Counts().Passed)
			assert.Equal(t, 2, res.Counts().Failed)
		})
	}
}

func TestTearDownErrorIsAppended(t *testing.T) {
	r := newRunner(t, Settings{Workers: 1}, nil, nil)
	suite := types.NewSuite("suite", types.NewTest("a", passBody))
	suite.TearDown = func(types.T) error { return errors.New("cleanup failed") }

	res := runTree(t, r, suite)
	assert.Equal(t, types.StateTearDownError, res.State)
	assert.Equal(t, "TearDown : cleanup failed", res.Message)
}

func TestTimeoutFailsOnlyTheSlowChild(t *testing.T) {
	r := newRunner(t, Settings{Workers: 2}, nil, nil)

	var exited atomic.Bool
	slow := types.NewTest("slow", func(tt types.T) error {
		defer exited.Store(true)
		select {
		case <-tt.Context().Done():
			return tt.Context().Err()
		case <-time.After(500 * time.Millisecond):
			return nil
		}
	})
	slow.Timeout = 50 * time.Millisecond

	suite := types.NewSuite("suite", types.NewTest("a", passBody), slow, types.NewTest("b", passBody))
	suite.ParallelScope = types.ParallelScopeChildren

	res := runTree(t, r, suite)
	assert.True(t, exited.Load(), "timed out body kept running after the run returned")

	slowRes := childResult(t, res, "slow")
	assert.Equal(t, types.StateFailure, slowRes.State)
	assert.Contains(t, slowRes.Message, "50")
	assert.Equal(t, types.StateSuccess, childResult(t, res, "a").State)
	assert.Equal(t, types.StateSuccess, childResult(t, res, "b").State)
	assert.Equal(t, types.StateChildFailure, res.State)
}

func TestTimeoutAbandonsUncooperativeBody(t *testing.T) {
	m := newCountingMetrics()
	watchdog := NewWatchdog(0)
	r := newRunner(t, Settings{Workers: 1, AbandonGrace: 10 * time.Millisecond, Watchdog: watchdog}, nil, m)

	release := make(chan struct{})
	bodyDone := make(chan struct{})
	stuck := types.NewTest("stuck", func(types.T) error {
		defer close(bodyDone)
		<-release
		return nil
	})
	stuck.Timeout = 20 * time.Millisecond

	res := runTree(t, r, types.NewSuite("suite", stuck))
	assert.Equal(t, 1, watchdog.Live())
	assert.Error(t, watchdog.Err())
	close(release)
	<-bodyDone
	require.Eventually(t, func() bool { return watchdog.Live() == 0 }, 5*time.Second, time.Millisecond)

	stuckRes := childResult(t, res, "stuck")
	assert.Equal(t, "Test exceeded Timeout value of 20ms", stuckRes.Message)
	assert.EqualValues(t, 1, m.timeouts.Load())
	assert.EqualValues(t, 1, m.abandoned.Load())
}

func TestDefaultTimeoutApplies(t *testing.T) {
	r := newRunner(t, Settings{Workers: 0, DefaultTimeout: 20 * time.Millisecond}, nil, nil)
	slow := types.NewTest("slow", func(tt types.T) error {
		<-tt.Context().Done()
		return tt.Context().Err()
	})

	res := runTree(t, r, types.NewSuite("suite", slow))
	assert.Equal(t, "Test exceeded Timeout value of 20ms", childResult(t, res, "slow").Message)
}

func TestCancelWithQueuedChildren(t *testing.T) {
	listener := &RecordingListener{}
	var r *TestRunner
	r = newRunner(t, Settings{Workers: 1}, listener, nil)

	children := []*types.Test{
		types.NewTest("first", func(types.T) error {
			r.Cancel(false)
			return nil
		}),
	}
	for i := 0; i < 4; i++ {
		children = append(children, types.NewTest(fmt.Sprintf("queued-%d", i), passBody))
	}
	suite := types.NewSuite("suite", children...)
	suite.ParallelScope = types.ParallelScopeChildren

	res := runTree(t, r, suite)
	assert.Equal(t, types.StateSuccess, childResult(t, res, "first").State)
	for i := 0; i < 4; i++ {
		assert.True(t, childResult(t, res, fmt.Sprintf("queued-%d", i)).State.IsCancelled())
	}
	assert.True(t, res.State.IsCancelled())
	assert.Equal(t, "suite", listener.Events()[len(listener.Events())-1].Info.FullName)
}

func TestCancelSettlesUndispatchedChildren(t *testing.T) {
	listener := &RecordingListener{}
	var r *TestRunner
	r = newRunner(t, Settings{Workers: 2}, listener, nil)

	var tearDowns atomic.Int32
	children := []*types.Test{
		types.NewTest("first", func(types.T) error {
			r.Cancel(false)
			return nil
		}),
		types.NewSuite("nested", types.NewTest("deep", passBody)),
		types.NewTest("last", passBody),
	}
	suite := types.NewSuite("suite", children...)
	suite.SetUp = func(types.T) error { return nil }
	suite.TearDown = func(types.T) error {
		tearDowns.Add(1)
		return nil
	}

	res := runTree(t, r, suite)
	assert.Equal(t, []string{"suite", "suite/first"}, startedNames(listener.Events()))
	assert.True(t, childResult(t, res, "last").State.IsCancelled())
	nested := childResult(t, res, "nested")
	assert.True(t, nested.State.IsCancelled())
	require.Len(t, nested.Children, 1)
	assert.True(t, nested.Children[0].State.IsCancelled())
	assert.GreaterOrEqual(t, finishedIndex(listener.Events(), "suite/nested/deep"), 0)

	assert.True(t, res.State.IsCancelled())
	assert.EqualValues(t, 1, tearDowns.Load(), "teardown still runs after a cooperative stop")
}

func TestForcedCancelCancelsBodiesAndSkipsTearDown(t *testing.T) {
	for _, workers := range []int{0, 2} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			r := newRunner(t, Settings{Workers: workers}, nil, nil)

			started := make(chan struct{})
			var tearDowns atomic.Int32
			blocking := types.NewTest("blocking", func(tt types.T) error {
				close(started)
				<-tt.Context().Done()
				return tt.Context().Err()
			})
			suite := types.NewSuite("suite", blocking, types.NewTest("after", passBody))
			suite.SetUp = func(types.T) error { return nil }
			suite.TearDown = func(types.T) error {
				tearDowns.Add(1)
				return nil
			}

			go func() {
				<-started
				r.Cancel(true)
			}()
			res := runTree(t, r, suite)

			assert.True(t, childResult(t, res, "blocking").State.IsCancelled())
			assert.True(t, childResult(t, res, "after").State.IsCancelled())
			assert.True(t, res.State.IsCancelled())
			assert.EqualValues(t, 0, tearDowns.Load())
		})
	}
}

func TestContextCancellationStopsRun(t *testing.T) {
	r := newRunner(t, Settings{Workers: 2}, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	suite := types.NewSuite("suite",
		types.NewTest("first", func(types.T) error {
			cancel()
			time.Sleep(20 * time.Millisecond)
			return nil
		}),
		types.NewTest("second", passBody),
	)

	done := make(chan *types.Result, 1)
	go func() {
		res, err := r.Run(ctx, suite, nil)
		assert.NoError(t, err)
		done <- res
	}()

	select {
	case res := <-done:
		require.NotNil(t, res)
		assert.True(t, childResult(t, res, "second").State.IsCancelled())
		assert.True(t, res.State.IsCancelled())
	case <-time.After(10 * time.Second):
		t.Fatal("run did not finish after context cancellation")
	}
}

func TestAlreadyCancelledContext(t *testing.T) {
	listener := &RecordingListener{}
	r := newRunner(t, Settings{Workers: 2}, listener, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := r.Run(ctx, types.NewSuite("suite", types.NewTest("a", passBody)), nil)
	require.NoError(t, err)
	assert.True(t, res.State.IsCancelled())
	assert.Equal(t, "Cancelled by user", res.Message)
	assert.Equal(t, []string{"suite"}, startedNames(listener.Events()))
}

func TestSameAffinityNeverConcurrent(t *testing.T) {
	r := newRunner(t, Settings{Workers: 4}, nil, nil)
	gauge := &concurrencyGauge{}

	var children []*types.Test
	for i := 0; i < 4; i++ {
		c := types.NewTest(fmt.Sprintf("ui-%d", i), gauge.body(15*time.Millisecond))
		c.ParallelScope = types.ParallelScopeSelf
		c.Affinity = "ui"
		children = append(children, c)
	}
	res := runTree(t, r, types.NewSuite("suite", children...))

	assert.Equal(t, types.StateSuccess, res.State)
	assert.Equal(t, 4, res.Counts().Passed)
	assert.EqualValues(t, 1, gauge.max.Load())
}

func TestSameAffinityDirectUnitWaitsForAffinityWorker(t *testing.T) {
	r := newRunner(t, Settings{Workers: 4}, nil, nil)
	gauge := &concurrencyGauge{}

	queued := types.NewTest("a", gauge.body(100*time.Millisecond))
	queued.Affinity = "ui"
	// b inherits no parallel scope from inner, so it is dispatched directly
	direct := types.NewTest("b", gauge.body(100*time.Millisecond))
	direct.Affinity = "ui"
	inner := types.NewSuite("inner", direct)
	inner.ParallelScope = types.ParallelScopeSelf
	inner.SetUp = passBody

	root := types.NewSuite("suite", queued, inner)
	root.ParallelScope = types.ParallelScopeChildren
	res := runTree(t, r, root)

	assert.Equal(t, types.StateSuccess, res.State)
	assert.Equal(t, 2, res.Counts().Passed)
	assert.EqualValues(t, 1, gauge.max.Load(), "same-affinity units overlapped")
}

func TestDirectUnitWithOtherAffinityIsQueued(t *testing.T) {
	d := NewParallelDispatcher(testLogger(), nil, 2, []types.Affinity{"ui"})
	run := newTestRun(Settings{Workers: 2}, nil)
	run.dispatcher = d

	test := types.NewTest("b", passBody)
	test.Affinity = "ui"
	unit := newWorkUnit(test, "b", nil, newRootContext(run, test), nil)
	require.Equal(t, StrategyDirect, unit.ExecutionStrategy())

	// no shift is running, so the unit waits in the non-parallel class queue
	d.Dispatch(unit, types.AffinityNone)
	assert.Equal(t, UnitReady, unit.State())
	assert.Equal(t, 1, d.Queue(false, "ui").Len())
	assert.Equal(t, 0, d.Queue(true, "ui").Len())
}

func TestNonParallelChildrenRunOneAtATime(t *testing.T) {
	m := newCountingMetrics()
	r := newRunner(t, Settings{Workers: 4}, nil, m)
	gauge := &concurrencyGauge{}

	var children []*types.Test
	for i := 0; i < 4; i++ {
		c := types.NewTest(fmt.Sprintf("serial-%d", i), gauge.body(10*time.Millisecond))
		c.ParallelScope = types.ParallelScopeNone
		children = append(children, c)
	}
	res := runTree(t, r, types.NewSuite("suite", children...))

	assert.Equal(t, 4, res.Counts().Passed)
	assert.EqualValues(t, 1, gauge.max.Load())
	assert.GreaterOrEqual(t, m.shiftStarts("NonParallel"), 1)
	assert.GreaterOrEqual(t, m.shiftStarts("Parallel"), 1)
}

func TestParallelChildrenRunConcurrently(t *testing.T) {
	r := newRunner(t, Settings{Workers: 4}, nil, nil)

	var arrived atomic.Int32
	barrier := func(tt types.T) error {
		arrived.Add(1)
		deadline := time.Now().Add(5 * time.Second)
		for arrived.Load() < 4 {
			if time.Now().After(deadline) {
				return errors.New("siblings never arrived")
			}
			time.Sleep(time.Millisecond)
		}
		return nil
	}

	var children []*types.Test
	for i := 0; i < 4; i++ {
		children = append(children, types.NewTest(fmt.Sprintf("p-%d", i), barrier))
	}
	suite := types.NewSuite("suite", children...)
	suite.ParallelScope = types.ParallelScopeChildren

	res := runTree(t, r, suite)
	assert.Equal(t, types.StateSuccess, res.State)
	assert.Equal(t, 4, res.Counts().Passed)
}

func TestParallelFixtures(t *testing.T) {
	r := newRunner(t, Settings{Workers: 2}, nil, nil)

	var setUps, tearDowns atomic.Int32
	fixture := func(name string) *types.Test {
		s := types.NewSuite(name, types.NewTest("one", passBody), types.NewTest("two", passBody))
		s.SetUp = func(types.T) error {
			setUps.Add(1)
			return nil
		}
		s.TearDown = func(types.T) error {
			tearDowns.Add(1)
			return nil
		}
		return s
	}
	root := types.NewSuite("root", fixture("f1"), fixture("f2"), fixture("f3"))
	root.ParallelScope = types.ParallelScopeFixtures

	res := runTree(t, r, root)
	assert.Equal(t, types.StateSuccess, res.State)
	assert.Equal(t, 6, res.Counts().Passed)
	assert.EqualValues(t, 3, setUps.Load())
	assert.EqualValues(t, 3, tearDowns.Load())
}

func TestStopOnError(t *testing.T) {
	r := newRunner(t, Settings{Workers: 0, StopOnError: true}, nil, nil)
	suite := types.NewSuite("suite",
		types.NewTest("fails", func(types.T) error { return errors.New("bad") }),
		types.NewTest("never", passBody),
	)

	res := runTree(t, r, suite)
	assert.Equal(t, types.StateFailure, childResult(t, res, "fails").State)
	assert.True(t, childResult(t, res, "never").State.IsCancelled())
	assert.True(t, res.State.IsCancelled())
}

func TestEmptySuiteSucceedsWithoutFixture(t *testing.T) {
	r := newRunner(t, Settings{Workers: 1}, nil, nil)
	var setUps atomic.Int32
	suite := types.NewSuite("empty")
	suite.SetUp = func(types.T) error {
		setUps.Add(1)
		return nil
	}

	res := runTree(t, r, suite)
	assert.Equal(t, types.StateSuccess, res.State)
	assert.EqualValues(t, 0, setUps.Load())
	assert.Empty(t, res.Children)
}

func TestSkippedSuiteSynthesizesChildren(t *testing.T) {
	listener := &RecordingListener{}
	r := newRunner(t, Settings{Workers: 1}, listener, nil)

	inner := types.NewSuite("inner", types.NewTest("leaf", passBody))
	inner.RunState = types.RunStateIgnored
	inner.SkipReason = "flaky"
	root := types.NewSuite("root", inner, types.NewTest("other", passBody))

	res := runTree(t, r, root)
	innerRes := childResult(t, res, "inner")
	assert.Equal(t, types.StateIgnored.WithSite(types.SiteSetUp), innerRes.State)
	assert.Equal(t, "flaky", innerRes.Message)
	require.Len(t, innerRes.Children, 1)
	assert.Equal(t, types.StateIgnored.WithSite(types.SiteParent), innerRes.Children[0].State)
	assert.Equal(t, "OneTimeSetUp: flaky", innerRes.Children[0].Message)

	assert.Equal(t, types.StateChildIgnored, res.State)
	assert.NotContains(t, startedNames(listener.Events()), "root/inner/leaf")
}

func TestExplicitSuiteRunsOnlyWhenSelected(t *testing.T) {
	build := func() *types.Test {
		explicit := types.NewSuite("slow", types.NewTest("leaf", passBody))
		explicit.RunState = types.RunStateExplicit
		return types.NewSuite("root", explicit, types.NewTest("fast", passBody))
	}

	r := newRunner(t, Settings{Workers: 1}, nil, nil)
	res := runTree(t, r, build())
	assert.Equal(t, types.StateExplicit.WithSite(types.SiteSetUp), childResult(t, res, "slow").State)

	f, err := types.NewNameFilter("root/slow")
	require.NoError(t, err)
	res, err = r.Run(context.Background(), build(), f)
	require.NoError(t, err)
	assert.Equal(t, types.StateSuccess, childResult(t, res, "slow").State)
	assert.Len(t, res.Children, 1)
}

func TestFilterSelectsSubset(t *testing.T) {
	r := newRunner(t, Settings{Workers: 2}, nil, nil)
	root := types.NewSuite("root",
		types.NewSuite("alpha", types.NewTest("one", passBody), types.NewTest("two", passBody)),
		types.NewSuite("beta", types.NewTest("one", passBody)),
	)
	f, err := types.NewNameFilter("/one$")
	require.NoError(t, err)

	res, err := r.Run(context.Background(), root, f)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Counts().Passed)
	assert.Len(t, childResult(t, res, "alpha").Children, 1)

	none, err := types.NewNameFilter("nothing-matches")
	require.NoError(t, err)
	_, err = r.Run(context.Background(), root, none)
	require.ErrorIs(t, err, ErrNoTestsSelected)
}

func TestOrderedChildrenRunFirst(t *testing.T) {
	r := newRunner(t, Settings{Workers: 1}, nil, nil)
	var mu sync.Mutex
	var order []string
	record := func(name string) types.Func {
		return func(types.T) error {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
			return nil
		}
	}
	a := types.NewTest("a", record("a"))
	b := types.NewTest("b", record("b"))
	b.Order = 2
	c := types.NewTest("c", record("c"))
	c.Order = 1

	runTree(t, r, types.NewSuite("suite", a, b, c))
	assert.Equal(t, []string{"c", "b", "a"}, order)
}

func TestAssertCountsAggregate(t *testing.T) {
	r := newRunner(t, Settings{Workers: 2}, nil, nil)
	asserting := func(n int) types.Func {
		return func(tt types.T) error {
			for i := 0; i < n; i++ {
				tt.Assert(true, "ok")
			}
			return nil
		}
	}
	suite := types.NewSuite("suite", types.NewTest("a", asserting(2)), types.NewTest("b", asserting(3)))
	suite.SetUp = asserting(1)
	suite.ParallelScope = types.ParallelScopeChildren

	res := runTree(t, r, suite)
	assert.Equal(t, 2, childResult(t, res, "a").AssertCount)
	assert.Equal(t, 3, childResult(t, res, "b").AssertCount)
	assert.Equal(t, 6, res.AssertCount)
}

func TestRequiresThreadAndAffinityWithSimpleDispatcher(t *testing.T) {
	r := newRunner(t, Settings{Workers: 0}, nil, nil)
	own := types.NewTest("own", passBody)
	own.RequiresThread = true
	pinned := types.NewTest("pinned", passBody)
	pinned.Affinity = "ui"
	suite := types.NewSuite("suite", own, pinned)
	suite.RequiresThread = true

	res := runTree(t, r, suite)
	assert.Equal(t, types.StateSuccess, res.State)
	assert.Equal(t, 2, res.Counts().Passed)
}

func TestRunMetrics(t *testing.T) {
	m := newCountingMetrics()
	r := newRunner(t, Settings{Workers: 2}, nil, m)
	suite := types.NewSuite("suite",
		types.NewTest("a", passBody),
		types.NewTest("b", func(types.T) error { return errors.New("x") }),
	)
	runTree(t, r, suite)

	m.mu.Lock()
	defer m.mu.Unlock()
	assert.Equal(t, 1, m.units[types.TestStatusPass])
	assert.Equal(t, 2, m.units[types.TestStatusFail])
}

func TestRunRejectsNilRoot(t *testing.T) {
	r := newRunner(t, Settings{Workers: 1}, nil, nil)
	_, err := r.Run(context.Background(), nil, nil)
	require.Error(t, err)
}

func TestCollectAffinities(t *testing.T) {
	a := types.NewTest("a", passBody)
	a.Affinity = "ui"
	b := types.NewTest("b", passBody)
	b.Affinity = "io"
	c := types.NewTest("c", passBody)
	c.Affinity = "ui"
	got := CollectAffinities(types.NewSuite("root", a, types.NewSuite("s", b, c)))
	assert.Equal(t, []types.Affinity{"io", "ui"}, got)
}

func TestSettingsString(t *testing.T) {
	s := Settings{Workers: 2, DefaultTimeout: time.Second, AbandonGrace: time.Second}
	assert.True(t, strings.HasPrefix(s.String(), "workers=2"))
}
