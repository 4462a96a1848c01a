package execution

import (
	"sync"

	"github.com/ethereum-optimism/infra/op-testexec/types"
)

// QueuingListener forwards events to a wrapped listener from a single pump
// goroutine. Events are delivered in the order they were queued, so events
// raised by one goroutine keep their relative order.
type QueuingListener struct {
	inner  Listener
	events chan Event

	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
	drained   chan struct{}
}

// NewQueuingListener starts the pump. Close must be called to stop it.
func NewQueuingListener(inner Listener, buffer int) *QueuingListener {
	if buffer <= 0 {
		buffer = 64
	}
	q := &QueuingListener{
		inner:   inner,
		events:  make(chan Event, buffer),
		drained: make(chan struct{}),
	}
	go q.pump()
	return q
}

func (q *QueuingListener) pump() {
	defer close(q.drained)
	for ev := range q.events {
		switch ev.Kind {
		case EventStarted:
			q.inner.TestStarted(ev.Info)
		case EventFinished:
			q.inner.TestFinished(ev.Result)
		}
	}
}

func (q *QueuingListener) send(ev Event) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return
	}
	q.events <- ev
}

func (q *QueuingListener) TestStarted(info types.TestInfo) {
	q.send(Event{Kind: EventStarted, Info: info})
}

func (q *QueuingListener) TestFinished(result *types.Result) {
	q.send(Event{Kind: EventFinished, Info: result.Info, Result: result})
}

// Close stops accepting events and waits until every queued event was delivered
func (q *QueuingListener) Close() {
	q.closeOnce.Do(func() {
		q.mu.Lock()
		q.closed = true
		close(q.events)
		q.mu.Unlock()
	})
	<-q.drained
}
