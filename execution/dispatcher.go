package execution

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/ethereum-optimism/infra/op-testexec/types"
	"github.com/ethereum/go-ethereum/log"
)

// Dispatcher receives units in tree order and decides where they run
type Dispatcher interface {
	// Start takes the root unit and begins execution
	Start(top *WorkUnit)
	// Dispatch runs or queues a unit. current is the affinity of the caller.
	Dispatch(unit *WorkUnit, current types.Affinity)
	// CancelRun asks all work to stop. force also cancels running bodies.
	CancelRun(force bool)
	// Wait blocks until every goroutine started by the dispatcher has exited
	Wait()
}

type queueKey struct {
	parallel bool
	affinity types.Affinity
}

// ParallelDispatcher routes units to queues by parallelism and affinity and
// runs the queues in shifts: the parallel shift, the non-parallel shift, and
// one non-parallel shift per affinity class.
type ParallelDispatcher struct {
	log     log.Logger
	metrics Metricer
	workers int

	queues map[queueKey]*WorkQueue
	shifts []*Shift

	mu       sync.Mutex
	top      *WorkUnit
	started  atomic.Bool
	finished chan struct{}
	wg       sync.WaitGroup
}

var _ Dispatcher = (*ParallelDispatcher)(nil)

// NewParallelDispatcher creates the queues and shifts for the given number of
// parallel workers and affinity classes.
func NewParallelDispatcher(logger log.Logger, m Metricer, workers int, affinities []types.Affinity) *ParallelDispatcher {
	if workers < 1 {
		panic("parallel dispatcher needs at least one worker")
	}
	if m == nil {
		m = NoopMetrics{}
	}
	d := &ParallelDispatcher{
		log:      logger.New("component", "dispatcher"),
		metrics:  m,
		workers:  workers,
		queues:   make(map[queueKey]*WorkQueue),
		finished: make(chan struct{}),
	}

	classes := uniqueAffinities(affinities)

	parallel := newShift("Parallel", d.log, m, d.onEndOfShift)
	d.addQueue(parallel, queueKey{parallel: true}, workers)
	for _, a := range classes {
		d.addQueue(parallel, queueKey{parallel: true, affinity: a}, 1)
	}

	nonParallel := newShift("NonParallel", d.log, m, d.onEndOfShift)
	d.addQueue(nonParallel, queueKey{}, 1)

	d.shifts = []*Shift{parallel, nonParallel}
	for _, a := range classes {
		s := newShift("NonParallel-"+string(a), d.log, m, d.onEndOfShift)
		d.addQueue(s, queueKey{affinity: a}, 1)
		d.shifts = append(d.shifts, s)
	}
	return d
}

func (d *ParallelDispatcher) addQueue(s *Shift, key queueKey, workers int) {
	q := NewWorkQueue(queueName(key), key.parallel, key.affinity, d.metrics)
	d.queues[key] = q
	s.AddQueue(q, workers)
}

func queueName(key queueKey) string {
	name := "NonParallel"
	if key.parallel {
		name = "Parallel"
	}
	if key.affinity != types.AffinityNone {
		name += "-" + string(key.affinity)
	}
	return name
}

func workerName(q *WorkQueue, i int) string {
	return fmt.Sprintf("%s#%d", q.Name(), i)
}

func uniqueAffinities(in []types.Affinity) []types.Affinity {
	seen := make(map[types.Affinity]bool)
	var out []types.Affinity
	for _, a := range in {
		if a == types.AffinityNone || seen[a] {
			continue
		}
		seen[a] = true
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Shifts returns the shifts in the order they are considered
func (d *ParallelDispatcher) Shifts() []*Shift {
	return d.shifts
}

// Queue returns the queue for a classification, if one exists
func (d *ParallelDispatcher) Queue(parallel bool, affinity types.Affinity) *WorkQueue {
	return d.queues[queueKey{parallel: parallel, affinity: affinity}]
}

// Start launches the workers, queues the root and starts the first shift
// that has work.
func (d *ParallelDispatcher) Start(top *WorkUnit) {
	if !d.started.CompareAndSwap(false, true) {
		panic("dispatcher started twice")
	}
	d.mu.Lock()
	d.top = top
	d.mu.Unlock()

	for _, s := range d.shifts {
		for _, w := range s.Workers() {
			d.wg.Add(1)
			go func(w *Worker) {
				defer d.wg.Done()
				w.run()
			}(w)
		}
	}

	strategy := StrategyParallel
	if top.Test().ParallelScope.Has(types.ParallelScopeNone) {
		strategy = StrategyNonParallel
	}
	d.log.Info("Starting run", "root", top.FullName(), "workers", d.workers, "shifts", len(d.shifts))
	d.enqueue(top, strategy)
	d.startNextShift()
}

// Dispatch runs direct units on the calling goroutine and queues the rest.
// A direct unit bound to another affinity class goes to that class's queue,
// since only its single worker may run units of the class.
func (d *ParallelDispatcher) Dispatch(unit *WorkUnit, current types.Affinity) {
	strategy := unit.ExecutionStrategy()
	d.log.Trace("Dispatching unit", "unit", unit.FullName(), "kind", unit.Kind(), "strategy", strategy)
	if strategy == StrategyDirect {
		target := unit.TargetAffinity()
		if target == types.AffinityNone || target == current {
			unit.Execute(current)
			return
		}
		strategy = StrategyNonParallel
		if d.shifts[0].IsActive() {
			strategy = StrategyParallel
		}
	}
	d.enqueue(unit, strategy)
}

func (d *ParallelDispatcher) enqueue(unit *WorkUnit, strategy Strategy) {
	key := queueKey{parallel: strategy == StrategyParallel, affinity: unit.TargetAffinity()}
	q, ok := d.queues[key]
	if !ok {
		d.log.Error("No queue for affinity class, running directly", "unit", unit.FullName(), "affinity", key.affinity)
		unit.Execute(types.AffinityNone)
		return
	}
	q.Enqueue(unit)
}

// CancelRun requests a stop. Queues keep draining so every unit still
// completes, as cancelled.
func (d *ParallelDispatcher) CancelRun(force bool) {
	d.mu.Lock()
	top := d.top
	d.mu.Unlock()
	if top == nil {
		return
	}
	for _, s := range d.shifts {
		if s.IsActive() {
			d.log.Info("Draining shift", "shift", s.Name(), "force", force, "busy", s.BusyWorkers())
		}
	}
	top.ctx.run.requestStop(force)
}

func (d *ParallelDispatcher) onEndOfShift(ended *Shift) {
	d.log.Debug("Shift finished", "shift", ended.Name())
	d.startNextShift()
}

// startNextShift starts the first shift with pending work, or shuts every
// shift down when none is left.
func (d *ParallelDispatcher) startNextShift() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, s := range d.shifts {
		if s.HasWork() {
			s.Start()
			return
		}
	}

	select {
	case <-d.finished:
		return
	default:
	}
	if d.top != nil && d.top.State() != UnitComplete {
		d.log.Error("No shift has work but the run is incomplete", "root", d.top.FullName(), "state", d.top.State())
	}
	for _, s := range d.shifts {
		s.ShutDown()
	}
	close(d.finished)
	d.log.Info("All shifts finished")
}

// Wait blocks until every shift was shut down and all workers exited
func (d *ParallelDispatcher) Wait() {
	<-d.finished
	d.wg.Wait()
}

// SimpleDispatcher runs the whole tree on a single goroutine. Units still
// move to a private goroutine for timeouts and affinity.
type SimpleDispatcher struct {
	log      log.Logger
	top      atomic.Pointer[WorkUnit]
	finished chan struct{}
}

var _ Dispatcher = (*SimpleDispatcher)(nil)

func NewSimpleDispatcher(logger log.Logger) *SimpleDispatcher {
	return &SimpleDispatcher{
		log:      logger.New("component", "dispatcher"),
		finished: make(chan struct{}),
	}
}

func (d *SimpleDispatcher) Start(top *WorkUnit) {
	if !d.top.CompareAndSwap(nil, top) {
		panic("dispatcher started twice")
	}
	d.log.Info("Starting run", "root", top.FullName(), "workers", 0)
	go func() {
		defer close(d.finished)
		top.Execute(types.AffinityNone)
	}()
}

func (d *SimpleDispatcher) Dispatch(unit *WorkUnit, current types.Affinity) {
	unit.Execute(current)
}

func (d *SimpleDispatcher) CancelRun(force bool) {
	if top := d.top.Load(); top != nil {
		top.ctx.run.requestStop(force)
	}
}

func (d *SimpleDispatcher) Wait() {
	<-d.finished
}
