package execution

import (
	"fmt"
	"time"

	"github.com/ethereum-optimism/infra/op-testexec/types"
)

func (u *WorkUnit) performLeaf(threadAffinity types.Affinity) {
	outcome := u.runLeafBody()
	if !u.claimed.CompareAndSwap(false, true) {
		u.ctx.run.log.Debug("Discarding outcome of timed out test", "test", u.fullName, "state", outcome.State)
		return
	}
	u.mu.Lock()
	u.result.SetResultWithTrace(outcome.State, outcome.Message, outcome.Trace)
	u.mu.Unlock()
	u.complete(threadAffinity)
}

// runLeafBody computes the outcome of a leaf without touching the unit's
// result, so a body that outlives its timeout cannot race the timeout path.
func (u *WorkUnit) runLeafBody() *types.Result {
	outcome := types.NewResult(u.Info())

	if u.ctx.Status() != StatusRunning {
		outcome.SetResult(types.StateCancelled, cancelledTestMessage)
		return outcome
	}

	switch u.test.RunState {
	case types.RunStateSkipped:
		outcome.SetResult(types.StateSkipped, u.test.SkipReason)
		return outcome
	case types.RunStateIgnored:
		outcome.SetResult(types.StateIgnored, u.test.SkipReason)
		return outcome
	case types.RunStateNotRunnable:
		outcome.SetResult(types.StateNotRunnable, u.test.SkipReason)
		return outcome
	case types.RunStateExplicit:
		if !u.filter.IsExplicitMatch(u.test, u.fullName) {
			outcome.SetResult(types.StateExplicit, u.test.SkipReason)
			return outcome
		}
	}
	if u.test.Body == nil {
		outcome.SetResult(types.StateNotRunnable, noBodyMessage)
		return outcome
	}

	ctx := u.traceContext()
	t := newUnitT(u, ctx)
	err := callSafely(u.test.Body, t)

	switch {
	case err != nil:
		outcome.RecordError(err, types.SiteTest)
	case t.failureError() != nil:
		outcome.SetResult(types.StateFailure, t.failureError().Error())
	case t.warningMessage() != "":
		outcome.SetResult(types.StateWarning, t.warningMessage())
	default:
		outcome.SetResult(types.StateSuccess, "")
	}

	if outcome.Failed() && u.ctx.Status() == StatusAbortRequested && ctx.Err() != nil {
		outcome.SetResult(types.StateCancelled, cancelledTestMessage)
	}
	return outcome
}

// handleTimeout runs on the goroutine that spawned the leaf. It claims
// completion, cancels the body's context and waits a grace period for the
// body to return before giving up on it.
func (u *WorkUnit) handleTimeout(timeout time.Duration, finished <-chan struct{}, current types.Affinity) {
	run := u.ctx.run
	if !u.claimed.CompareAndSwap(false, true) {
		// the body returned at the deadline and is completing normally
		<-finished
		return
	}

	u.cancelBody()
	grace := time.NewTimer(run.abandonGrace)
	defer grace.Stop()
	select {
	case <-finished:
	case <-grace.C:
		run.log.Warn("Abandoning goroutine of timed out test", "test", u.fullName, "grace", run.abandonGrace)
		run.metrics.RecordAbandoned(u.fullName)
		if run.watchdog != nil {
			run.watchdog.Abandon(finished)
		}
	}

	u.setResult(types.StateFailure, fmt.Sprintf(timeoutMessage, timeout.Milliseconds()))
	run.metrics.RecordTimeout(u.fullName)
	run.log.Warn("Test exceeded timeout", "test", u.fullName, "timeout", timeout)
	u.complete(current)
}
