package execution

import (
	"runtime"
	"sync/atomic"

	"github.com/ethereum-optimism/infra/op-testexec/types"
	"github.com/ethereum/go-ethereum/log"
)

// Worker is a goroutine bound to one queue and one affinity class. A worker
// with an affinity stays on a single OS thread for its whole life.
type Worker struct {
	name     string
	queue    *WorkQueue
	affinity types.Affinity
	shift    *Shift
	log      log.Logger

	current atomic.Pointer[WorkUnit]
}

func newWorker(name string, queue *WorkQueue, shift *Shift, logger log.Logger) *Worker {
	return &Worker{
		name:     name,
		queue:    queue,
		affinity: queue.Affinity(),
		shift:    shift,
		log:      logger.New("worker", name),
	}
}

func (w *Worker) Name() string { return w.name }

// Current returns the unit being executed, if any
func (w *Worker) Current() *WorkUnit {
	return w.current.Load()
}

// run loops until the queue is stopped
func (w *Worker) run() {
	if w.affinity != types.AffinityNone {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
	}
	w.log.Debug("Worker started", "queue", w.queue.Name())
	defer w.log.Debug("Worker stopped", "queue", w.queue.Name())

	for {
		unit, ok := w.queue.Dequeue(w.shift.markBusy)
		if !ok {
			return
		}
		w.current.Store(unit)
		unit.Execute(w.affinity)
		w.current.Store(nil)
		w.shift.markIdle()
	}
}
