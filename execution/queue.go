package execution

import (
	"sync"

	"github.com/ethereum-optimism/infra/op-testexec/types"
)

// QueueState is the lifecycle of a WorkQueue
type QueueState int

const (
	QueuePaused QueueState = iota
	QueueRunning
	QueueStopped
)

func (s QueueState) String() string {
	switch s {
	case QueuePaused:
		return "paused"
	case QueueRunning:
		return "running"
	case QueueStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// WorkQueue is a blocking FIFO of units ready to run. Dequeue only yields
// items while the queue is Running and returns immediately once it is Stopped.
type WorkQueue struct {
	name      string
	parallel  bool
	affinity  types.Affinity
	metrics   Metricer
	mu        sync.Mutex
	cond      *sync.Cond
	items     []*WorkUnit
	state     QueueState
	processed int64
	highWater int
}

// NewWorkQueue creates a paused queue
func NewWorkQueue(name string, parallel bool, affinity types.Affinity, m Metricer) *WorkQueue {
	if m == nil {
		m = NoopMetrics{}
	}
	q := &WorkQueue{
		name:     name,
		parallel: parallel,
		affinity: affinity,
		metrics:  m,
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *WorkQueue) Name() string             { return q.name }
func (q *WorkQueue) Parallel() bool           { return q.parallel }
func (q *WorkQueue) Affinity() types.Affinity { return q.affinity }

// Enqueue appends a unit and wakes one waiting worker
func (q *WorkQueue) Enqueue(unit *WorkUnit) {
	q.mu.Lock()
	q.items = append(q.items, unit)
	depth := len(q.items)
	raised := depth > q.highWater
	if raised {
		q.highWater = depth
	}
	q.mu.Unlock()
	q.cond.Signal()

	if raised {
		q.metrics.RecordQueueHighWater(q.name, depth)
	}
}

// Dequeue blocks until an item is available on a running queue. onTake, if
// set, runs under the queue lock as the item is removed, so no observer can
// see the queue empty before the taker is accounted for. ok is false once
// the queue is stopped.
func (q *WorkQueue) Dequeue(onTake func()) (unit *WorkUnit, ok bool) {
	q.mu.Lock()
	for q.state != QueueStopped && (q.state != QueueRunning || len(q.items) == 0) {
		q.cond.Wait()
	}
	if q.state == QueueStopped {
		q.mu.Unlock()
		return nil, false
	}
	unit = q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	q.processed++
	if onTake != nil {
		onTake()
	}
	q.mu.Unlock()

	q.metrics.RecordQueueItem(q.name)
	return unit, true
}

// Start lets workers take items
func (q *WorkQueue) Start() {
	q.setState(QueueRunning)
}

// Pause makes workers wait without releasing them
func (q *WorkQueue) Pause() {
	q.setState(QueuePaused)
}

// Stop releases every waiting worker. A stopped queue stays stopped.
func (q *WorkQueue) Stop() {
	q.setState(QueueStopped)
}

func (q *WorkQueue) setState(s QueueState) {
	q.mu.Lock()
	if q.state != QueueStopped {
		q.state = s
	}
	q.mu.Unlock()
	q.cond.Broadcast()
}

func (q *WorkQueue) State() QueueState {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

func (q *WorkQueue) IsEmpty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) == 0
}

func (q *WorkQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// ItemsProcessed counts items handed out by Dequeue
func (q *WorkQueue) ItemsProcessed() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.processed
}

// HighWaterMark is the largest depth the queue reached
func (q *WorkQueue) HighWaterMark() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.highWater
}
