package execution

import (
	"time"

	"github.com/ethereum-optimism/infra/op-testexec/types"
	"github.com/oklog/ulid/v2"
)

func (u *WorkUnit) performComposite(threadAffinity types.Affinity) {
	if u.ctx.Status() != StatusRunning {
		u.setResult(types.StateCancelled, cancelledSuiteMessage)
		u.settleChildren(types.StateCancelled.WithSite(types.SiteParent), cancelledSuiteMessage, threadAffinity)
		return
	}

	if u.test.RunState == types.RunStateExplicit && !u.filter.IsExplicitMatch(u.test, u.fullName) {
		u.skipFixture(types.StateExplicit, threadAffinity)
		return
	}
	switch u.test.RunState {
	case types.RunStateSkipped:
		u.skipFixture(types.StateSkipped, threadAffinity)
		return
	case types.RunStateIgnored:
		u.skipFixture(types.StateIgnored, threadAffinity)
		return
	case types.RunStateNotRunnable:
		u.skipFixture(types.StateNotRunnable, threadAffinity)
		return
	}

	u.setResult(types.StateSuccess, "")
	u.createChildren()
	if len(u.children) == 0 {
		u.claimAndComplete(threadAffinity)
		return
	}

	u.performSetUp()

	if u.ctx.Status() != StatusRunning {
		u.setResult(types.StateCancelled, cancelledSuiteMessage)
		u.settleChildren(types.StateCancelled.WithSite(types.SiteParent), cancelledSuiteMessage, threadAffinity)
		return
	}

	state, message := u.resultState()
	switch state.Status {
	case types.TestStatusPass, types.TestStatusWarning:
		u.runChildren(threadAffinity)
	default:
		u.settleChildren(state.WithSite(types.SiteParent), types.OneTimeSetUpPrefix+message, threadAffinity)
	}
}

func (u *WorkUnit) skipFixture(state types.ResultState, threadAffinity types.Affinity) {
	reason := u.test.SkipReason
	u.setResult(state.WithSite(types.SiteSetUp), reason)
	u.settleChildren(state.WithSite(types.SiteParent), types.OneTimeSetUpPrefix+reason, threadAffinity)
}

func (u *WorkUnit) createChildren() {
	if u.childrenCreated {
		return
	}
	u.childrenCreated = true
	eachChild(u.test, u.fullName, u.filter, func(child *types.Test, childName string, childFilter types.Filter) {
		u.children = append(u.children, newWorkUnit(child, childName, childFilter, u.ctx.forChild(u.test, child), u))
	})
}

func (u *WorkUnit) performSetUp() {
	u.mu.Lock()
	u.setUpRan = true
	u.mu.Unlock()

	if u.test.SetUp == nil {
		return
	}
	t := newUnitT(u, u.traceContext())
	err := callSafely(u.test.SetUp, t)
	if err == nil {
		err = t.failureError()
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	if err != nil {
		u.result.RecordError(err, types.SiteSetUp)
		return
	}
	if w := t.warningMessage(); w != "" {
		u.result.SetResult(types.StateWarning.WithSite(types.SiteSetUp), w)
	}
}

func (u *WorkUnit) performTearDown() {
	if !u.tearDownRan.CompareAndSwap(false, true) {
		return
	}
	if u.test.TearDown == nil {
		return
	}
	t := newUnitT(u, u.traceContext())
	err := callSafely(u.test.TearDown, t)
	if err == nil {
		err = t.failureError()
	}
	if err != nil {
		u.mu.Lock()
		u.result.RecordTearDownError(err)
		u.mu.Unlock()
	}
}

// runChildren hands every child to the dispatcher. Children left undispatched
// by a cancellation are settled as cancelled so the counter still drains.
func (u *WorkUnit) runChildren(threadAffinity types.Affinity) {
	children := u.children
	u.mu.Lock()
	u.remaining = len(children)
	u.mu.Unlock()

	dispatcher := u.ctx.run.dispatcher
	for i, child := range children {
		if u.ctx.Status() != StatusRunning {
			u.ctx.run.log.Debug("Skipping undispatched children", "suite", u.fullName, "count", len(children)-i)
			for _, rest := range children[i:] {
				rest.settle(types.StateCancelled.WithSite(types.SiteParent), cancelledSuiteMessage, threadAffinity)
			}
			return
		}
		dispatcher.Dispatch(child, threadAffinity)
	}
}

// settleChildren gives every child a synthesized result without running it.
// The results travel the same counting path as real completions.
func (u *WorkUnit) settleChildren(state types.ResultState, message string, threadAffinity types.Affinity) {
	u.createChildren()
	children := u.children
	u.mu.Lock()
	u.remaining = len(children)
	u.mu.Unlock()

	if len(children) == 0 {
		u.childrenFinished(threadAffinity)
		return
	}
	for _, child := range children {
		child.settle(state, message, threadAffinity)
	}
}

// settle completes a unit that never ran with the given result. Descendants
// of a composite receive the same result and their own Finished events first.
func (u *WorkUnit) settle(state types.ResultState, message string, threadAffinity types.Affinity) {
	if !u.claimed.CompareAndSwap(false, true) {
		return
	}
	run := u.ctx.run
	u.mu.Lock()
	u.result.SetResult(state, message)
	if u.kind == KindComposite {
		eachChild(u.test, u.fullName, u.filter, func(child *types.Test, childName string, childFilter types.Filter) {
			u.result.AddChild(synthesizeResult(run, child, childName, childFilter, state, message))
		})
	}
	u.mu.Unlock()
	u.complete(threadAffinity)
}

func synthesizeResult(run *runState, test *types.Test, fullName string, filter types.Filter, state types.ResultState, message string) *types.Result {
	id := test.ID
	if id == "" {
		id = ulid.Make().String()
	}
	r := types.NewResult(types.TestInfo{ID: id, Name: test.Name, FullName: fullName, IsSuite: test.IsSuite()})
	r.SetResult(state, message)
	now := time.Now()
	r.Start, r.End = now, now
	if test.IsSuite() {
		eachChild(test, fullName, filter, func(child *types.Test, childName string, childFilter types.Filter) {
			r.AddChild(synthesizeResult(run, child, childName, childFilter, state, message))
		})
	}
	kind := KindLeaf
	if test.IsSuite() {
		kind = KindComposite
	}
	run.metrics.RecordUnit(kind.String(), r.State.Status, 0)
	run.listener.TestFinished(r.Clone())
	return r
}

// childCompleted folds a finished child into the suite and counts it down.
// The last child to arrive moves the suite on to its teardown.
func (u *WorkUnit) childCompleted(child *types.Result, threadAffinity types.Affinity) {
	run := u.ctx.run
	u.mu.Lock()
	u.result.AddChild(child)
	u.remaining--
	last := u.remaining == 0
	u.mu.Unlock()

	if run.stopOnError && child.Failed() && !child.State.IsCancelled() {
		run.requestStop(false)
	}
	if last {
		u.childrenFinished(threadAffinity)
	}
}

func (u *WorkUnit) childrenFinished(threadAffinity types.Affinity) {
	u.mu.Lock()
	if u.result.HasCancelledChild() {
		u.result.SetResult(types.StateCancelled, cancelledSuiteMessage)
	}
	setUpRan := u.setUpRan
	u.mu.Unlock()

	if !setUpRan || u.ctx.Status() == StatusAbortRequested {
		u.claimAndComplete(threadAffinity)
		return
	}
	u.ctx.run.dispatcher.Dispatch(newTearDownUnit(u), threadAffinity)
}
