package execution

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum-optimism/infra/op-testexec/types"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// UnitKind discriminates the three kinds of work unit
type UnitKind int

const (
	KindLeaf UnitKind = iota
	KindComposite
	KindTearDown
)

func (k UnitKind) String() string {
	switch k {
	case KindLeaf:
		return "leaf"
	case KindComposite:
		return "composite"
	case KindTearDown:
		return "teardown"
	default:
		return "unknown"
	}
}

// UnitState only ever moves forward
type UnitState int32

const (
	UnitReady UnitState = iota
	UnitRunning
	UnitCancelled
	UnitComplete
)

func (s UnitState) String() string {
	switch s {
	case UnitReady:
		return "ready"
	case UnitRunning:
		return "running"
	case UnitCancelled:
		return "cancelled"
	case UnitComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// Strategy is how the dispatcher runs a unit
type Strategy int

const (
	StrategyDirect Strategy = iota
	StrategyParallel
	StrategyNonParallel
)

func (s Strategy) String() string {
	switch s {
	case StrategyDirect:
		return "direct"
	case StrategyParallel:
		return "parallel"
	case StrategyNonParallel:
		return "non-parallel"
	default:
		return "unknown"
	}
}

const (
	cancelledTestMessage  = "Test cancelled by user"
	cancelledSuiteMessage = "Cancelled by user"
	timeoutMessage        = "Test exceeded Timeout value of %dms"
	noBodyMessage         = "No test body"
)

// WorkUnit is one schedulable node of a run. A unit is created right before
// it is dispatched and is never reused.
type WorkUnit struct {
	id       string
	kind     UnitKind
	test     *types.Test
	fullName string
	filter   types.Filter
	ctx      *ExecutionContext
	parent   *WorkUnit
	// owner is the composite a teardown unit finishes
	owner *WorkUnit

	state   atomic.Int32
	claimed atomic.Bool
	done    chan struct{}

	// set by prepare before the unit runs
	bodyCtx    context.Context
	cancelBody context.CancelFunc

	mu       sync.Mutex
	result   *types.Result
	traceCtx context.Context
	span     trace.Span

	// composite state; remaining and setUpRan are guarded by mu
	children        []*WorkUnit
	childrenCreated bool
	remaining       int
	setUpRan        bool
	tearDownRan     atomic.Bool
}

func newWorkUnit(test *types.Test, fullName string, filter types.Filter, ec *ExecutionContext, parent *WorkUnit) *WorkUnit {
	kind := KindLeaf
	if test.IsSuite() {
		kind = KindComposite
	}
	if filter == nil {
		filter = types.EmptyFilter
	}
	id := test.ID
	if id == "" {
		id = ulid.Make().String()
	}
	u := &WorkUnit{
		id:       id,
		kind:     kind,
		test:     test,
		fullName: fullName,
		filter:   filter,
		ctx:      ec,
		parent:   parent,
		done:     make(chan struct{}),
	}
	u.result = types.NewResult(u.Info())
	return u
}

func newTearDownUnit(owner *WorkUnit) *WorkUnit {
	return &WorkUnit{
		id:       ulid.Make().String(),
		kind:     KindTearDown,
		test:     owner.test,
		fullName: owner.fullName,
		filter:   owner.filter,
		ctx:      owner.ctx,
		owner:    owner,
		done:     make(chan struct{}),
	}
}

func (u *WorkUnit) ID() string       { return u.id }
func (u *WorkUnit) Name() string     { return u.test.Name }
func (u *WorkUnit) FullName() string { return u.fullName }
func (u *WorkUnit) Kind() UnitKind   { return u.kind }
func (u *WorkUnit) Test() *types.Test {
	return u.test
}

// State returns the current lifecycle state
func (u *WorkUnit) State() UnitState {
	return UnitState(u.state.Load())
}

// Done is closed once the unit is complete and its result is final
func (u *WorkUnit) Done() <-chan struct{} {
	return u.done
}

// Info identifies the unit in events and results
func (u *WorkUnit) Info() types.TestInfo {
	return types.TestInfo{
		ID:       u.id,
		Name:     u.test.Name,
		FullName: u.fullName,
		IsSuite:  u.test.IsSuite(),
	}
}

// Result returns a copy of the unit's current result
func (u *WorkUnit) Result() *types.Result {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.result.Clone()
}

// TargetAffinity is the affinity class the unit must run on
func (u *WorkUnit) TargetAffinity() types.Affinity {
	return u.ctx.Affinity
}

// ExecutionStrategy classifies the unit for the dispatcher. A teardown
// unit is classified like the composite it belongs to.
func (u *WorkUnit) ExecutionStrategy() Strategy {
	if u.kind == KindTearDown {
		return u.owner.ExecutionStrategy()
	}
	if !u.test.HasFixture() {
		return StrategyDirect
	}
	declared := u.test.ParallelScope
	if declared.Has(types.ParallelScopeNone) {
		return StrategyNonParallel
	}
	if declared.Has(types.ParallelScopeSelf) {
		return StrategyParallel
	}
	inherited := u.ctx.ParallelScope
	if inherited.Has(types.ParallelScopeChildren) || (u.test.IsSuite() && inherited.Has(types.ParallelScopeFixtures)) {
		return StrategyParallel
	}
	return StrategyDirect
}

func (u *WorkUnit) timeout() time.Duration {
	if u.kind != KindLeaf {
		return 0
	}
	if u.test.Timeout > 0 {
		return u.test.Timeout
	}
	return u.ctx.run.defaultTimeout
}

// Execute runs the unit. current is the affinity class of the calling
// goroutine. Units that need a private goroutine, a different affinity or a
// timeout are run on a new goroutine which the caller joins.
func (u *WorkUnit) Execute(current types.Affinity) {
	u.prepare()

	target := u.TargetAffinity()
	timeout := u.timeout()
	if !u.test.RequiresThread && timeout <= 0 && (target == types.AffinityNone || target == current) {
		u.run(current)
		return
	}

	finished := make(chan struct{})
	go func() {
		defer close(finished)
		if target != types.AffinityNone {
			runtime.LockOSThread()
			defer runtime.UnlockOSThread()
		}
		u.run(target)
	}()

	if timeout <= 0 {
		<-finished
		return
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-finished:
		return
	case <-timer.C:
	}
	u.handleTimeout(timeout, finished, current)
}

func (u *WorkUnit) prepare() {
	if u.kind == KindTearDown || u.bodyCtx != nil {
		return
	}
	base := u.ctx.run.bodyCtx
	if u.parent != nil {
		if tc := u.parent.traceContext(); tc != nil {
			base = tc
		}
	}
	u.bodyCtx, u.cancelBody = context.WithCancel(base)
}

func (u *WorkUnit) run(threadAffinity types.Affinity) {
	if !u.state.CompareAndSwap(int32(UnitReady), int32(UnitRunning)) {
		return
	}
	switch u.kind {
	case KindTearDown:
		u.owner.performTearDown()
		u.owner.claimAndComplete(threadAffinity)
		u.state.Store(int32(UnitComplete))
		close(u.done)
	case KindLeaf:
		u.start()
		u.performLeaf(threadAffinity)
	case KindComposite:
		u.start()
		u.performComposite(threadAffinity)
	}
}

func (u *WorkUnit) start() {
	run := u.ctx.run
	now := time.Now()
	spanCtx, span := run.tracer.Start(u.bodyCtx, fmt.Sprintf("%s %s", u.test.Kind, u.fullName))

	u.mu.Lock()
	u.result.Start = now
	u.traceCtx = spanCtx
	u.span = span
	u.mu.Unlock()

	run.log.Debug("Work unit started", "unit", u.fullName, "kind", u.kind)
	run.listener.TestStarted(u.Info())
}

func (u *WorkUnit) traceContext() context.Context {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.traceCtx != nil {
		return u.traceCtx
	}
	return u.bodyCtx
}

func (u *WorkUnit) setResult(state types.ResultState, message string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.result.SetResult(state, message)
}

func (u *WorkUnit) resultState() (types.ResultState, string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.result.State, u.result.Message
}

// transition moves the state forward; it never moves backwards
func (u *WorkUnit) transition(to UnitState) bool {
	for {
		cur := u.state.Load()
		if cur >= int32(to) {
			return false
		}
		if u.state.CompareAndSwap(cur, int32(to)) {
			return true
		}
	}
}

// claimAndComplete completes a unit whose completion is not contended
func (u *WorkUnit) claimAndComplete(threadAffinity types.Affinity) {
	if !u.claimed.CompareAndSwap(false, true) {
		u.ctx.run.log.Error("Work unit completed more than once", "unit", u.fullName)
		return
	}
	u.complete(threadAffinity)
}

// complete publishes the final result. Only the holder of the claim calls it.
func (u *WorkUnit) complete(threadAffinity types.Affinity) {
	run := u.ctx.run
	now := time.Now()

	u.mu.Lock()
	r := u.result
	if r.Start.IsZero() {
		r.Start = now
	}
	r.End = now
	r.Duration = now.Sub(r.Start)
	r.AssertCount += u.ctx.AssertCount()
	snapshot := r.Clone()
	span := u.span
	u.mu.Unlock()

	if u.cancelBody != nil {
		u.cancelBody()
	}
	if span != nil {
		span.SetAttributes(
			attribute.String("status", string(snapshot.State.Status)),
			attribute.String("state", snapshot.State.String()),
		)
		span.End()
	}

	if snapshot.State.IsCancelled() {
		u.transition(UnitCancelled)
	}
	u.state.Store(int32(UnitComplete))

	run.metrics.RecordUnit(u.kind.String(), snapshot.State.Status, snapshot.Duration)
	run.log.Debug("Work unit finished", "unit", u.fullName, "state", snapshot.State, "duration", snapshot.Duration)
	run.listener.TestFinished(snapshot)
	close(u.done)

	if u.parent != nil {
		u.parent.childCompleted(snapshot, threadAffinity)
	}
}

// eachChild visits the children of a suite that pass the filter, ordered
// children first.
func eachChild(test *types.Test, fullName string, filter types.Filter, fn func(child *types.Test, childName string, childFilter types.Filter)) {
	childFilter := types.ForChildren(filter, test, fullName)
	children := make([]*types.Test, 0, len(test.Children))
	for _, c := range test.Children {
		if childFilter.Pass(c, types.JoinName(fullName, c.Name)) {
			children = append(children, c)
		}
	}
	sort.SliceStable(children, func(i, j int) bool {
		oi, oj := children[i].Order, children[j].Order
		if oi > 0 && oj > 0 {
			return oi < oj
		}
		return oi > 0 && oj <= 0
	})
	for _, c := range children {
		fn(c, types.JoinName(fullName, c.Name), childFilter)
	}
}
