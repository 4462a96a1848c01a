package execution

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/ethereum-optimism/infra/op-testexec/types"
	"github.com/ethereum/go-ethereum/log"
	"go.opentelemetry.io/otel/trace"
)

// ExecutionStatus is the cooperative cancellation flag shared by a run
type ExecutionStatus int32

const (
	StatusRunning ExecutionStatus = iota
	StatusStopRequested
	StatusAbortRequested
)

func (s ExecutionStatus) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusStopRequested:
		return "stop-requested"
	case StatusAbortRequested:
		return "abort-requested"
	default:
		return "unknown"
	}
}

// runState is shared by every unit of a single run
type runState struct {
	status atomic.Int32

	// bodyCtx is handed to bodies. It outlives the caller's context and is
	// only cancelled by a forced stop.
	bodyCtx context.Context
	abort   context.CancelFunc

	dispatcher Dispatcher
	listener   Listener
	log        log.Logger
	tracer     trace.Tracer
	metrics    Metricer

	defaultTimeout time.Duration
	abandonGrace   time.Duration
	stopOnError    bool
	watchdog       *Watchdog
}

func newRunState(parent context.Context, settings Settings, logger log.Logger, listener Listener, m Metricer, tracer trace.Tracer) *runState {
	bodyCtx, abort := context.WithCancel(context.WithoutCancel(parent))
	return &runState{
		bodyCtx:        bodyCtx,
		abort:          abort,
		listener:       listener,
		log:            logger,
		tracer:         tracer,
		metrics:        m,
		defaultTimeout: settings.DefaultTimeout,
		abandonGrace:   settings.AbandonGrace,
		stopOnError:    settings.StopOnError,
		watchdog:       settings.Watchdog,
	}
}

func (r *runState) Status() ExecutionStatus {
	return ExecutionStatus(r.status.Load())
}

// requestStop raises the status; it never lowers it
func (r *runState) requestStop(force bool) {
	target := StatusStopRequested
	if force {
		target = StatusAbortRequested
	}
	for {
		cur := r.status.Load()
		if cur >= int32(target) {
			break
		}
		if r.status.CompareAndSwap(cur, int32(target)) {
			r.log.Info("Run cancellation requested", "status", target)
			break
		}
	}
	if force {
		r.abort()
	}
}

// ExecutionContext is the ambient state of one branch of the tree. Each unit
// gets its own copy derived from its parent's; assertions recorded on it are
// folded into the unit's result on completion.
type ExecutionContext struct {
	run *runState

	// ParallelScope is the scope inherited from enclosing suites
	ParallelScope types.ParallelScope
	// Affinity is the affinity class the unit must run on
	Affinity types.Affinity

	assertCount atomic.Int64
}

func newRootContext(run *runState, root *types.Test) *ExecutionContext {
	return &ExecutionContext{run: run, Affinity: root.Affinity}
}

// forChild derives the context of a child of the suite this context belongs to
func (c *ExecutionContext) forChild(suite, child *types.Test) *ExecutionContext {
	scope := c.ParallelScope
	if suite.ParallelScope != types.ParallelScopeDefault {
		scope = suite.ParallelScope &^ types.ParallelScopeSelf
	}
	affinity := child.Affinity
	if affinity == types.AffinityNone {
		affinity = c.Affinity
	}
	return &ExecutionContext{
		run:           c.run,
		ParallelScope: scope,
		Affinity:      affinity,
	}
}

// Status returns the run's cancellation status
func (c *ExecutionContext) Status() ExecutionStatus {
	return c.run.Status()
}

// IncrementAssertCount records a single assertion
func (c *ExecutionContext) IncrementAssertCount() {
	c.assertCount.Add(1)
}

// AssertCount returns the assertions recorded on this context
func (c *ExecutionContext) AssertCount() int {
	return int(c.assertCount.Load())
}
