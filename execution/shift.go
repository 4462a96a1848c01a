package execution

import (
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/log"
)

// Shift groups queues and their workers into a phase that never overlaps
// with another shift. It ends when all of its queues are empty and none of
// its workers are busy.
type Shift struct {
	name    string
	log     log.Logger
	metrics Metricer
	onEnd   func(*Shift)

	mu      sync.Mutex
	active  bool
	queues  []*WorkQueue
	workers []*Worker

	busy atomic.Int32
}

func newShift(name string, logger log.Logger, m Metricer, onEnd func(*Shift)) *Shift {
	return &Shift{
		name:    name,
		log:     logger.New("shift", name),
		metrics: m,
		onEnd:   onEnd,
	}
}

func (s *Shift) Name() string { return s.name }

// AddQueue assigns a queue and its workers to the shift
func (s *Shift) AddQueue(q *WorkQueue, workers int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queues = append(s.queues, q)
	for i := 0; i < workers; i++ {
		s.workers = append(s.workers, newWorker(workerName(q, i), q, s, s.log))
	}
	if s.active {
		q.Start()
	}
}

func (s *Shift) Queues() []*WorkQueue {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*WorkQueue(nil), s.queues...)
}

func (s *Shift) Workers() []*Worker {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Worker(nil), s.workers...)
}

func (s *Shift) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// HasWork reports whether any queue holds an item
func (s *Shift) HasWork() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasWork()
}

func (s *Shift) hasWork() bool {
	for _, q := range s.queues {
		if !q.IsEmpty() {
			return true
		}
	}
	return false
}

// BusyWorkers is the number of workers executing a unit
func (s *Shift) BusyWorkers() int {
	return int(s.busy.Load())
}

// Start makes the shift's queues hand out work
func (s *Shift) Start() {
	s.mu.Lock()
	s.active = true
	for _, q := range s.queues {
		q.Start()
	}
	s.mu.Unlock()
	s.log.Debug("Shift started")
	s.metrics.RecordShiftStart(s.name)
}

// ShutDown stops every queue, releasing the workers
func (s *Shift) ShutDown() {
	s.mu.Lock()
	s.active = false
	for _, q := range s.queues {
		q.Stop()
	}
	s.mu.Unlock()
	s.log.Debug("Shift shut down")
}

func (s *Shift) markBusy() {
	n := s.busy.Add(1)
	s.metrics.RecordBusyWorkers(s.name, int(n))
}

// markIdle ends the shift when the last busy worker finds nothing left to
// do. The cheap counter check is repeated under the lock; queues are
// inspected before the counter since a worker becomes busy atomically with
// taking an item.
func (s *Shift) markIdle() {
	n := s.busy.Add(-1)
	s.metrics.RecordBusyWorkers(s.name, int(n))
	if n != 0 {
		return
	}

	s.mu.Lock()
	end := s.active && !s.hasWork() && s.busy.Load() == 0
	if end {
		s.active = false
		for _, q := range s.queues {
			q.Pause()
		}
	}
	s.mu.Unlock()

	if end {
		s.log.Debug("Shift ended")
		s.onEnd(s)
	}
}
