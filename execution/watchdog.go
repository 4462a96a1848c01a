package execution

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// DefaultAbandonLimit is how many abandoned bodies may keep running before
// the watchdog trips
const DefaultAbandonLimit = 8

// Watchdog counts bodies that outlived their timeout and grace period and
// are still running. Goroutines cannot be killed, so once more than limit
// of them are alive the watchdog trips and the process is expected to exit.
// One watchdog may be shared by consecutive runs.
type Watchdog struct {
	limit int

	live    atomic.Int64
	once    sync.Once
	tripped chan struct{}
}

// NewWatchdog creates a watchdog. A negative limit never trips.
func NewWatchdog(limit int) *Watchdog {
	return &Watchdog{
		limit:   limit,
		tripped: make(chan struct{}),
	}
}

// Abandon records a body that was given up on. The count drops again when
// finished is closed.
func (w *Watchdog) Abandon(finished <-chan struct{}) {
	n := w.live.Add(1)
	if w.limit >= 0 && n > int64(w.limit) {
		w.once.Do(func() { close(w.tripped) })
	}
	go func() {
		<-finished
		w.live.Add(-1)
	}()
}

// Live is the number of abandoned bodies still running
func (w *Watchdog) Live() int {
	return int(w.live.Load())
}

// Tripped is closed once the limit was exceeded. It stays closed.
func (w *Watchdog) Tripped() <-chan struct{} {
	return w.tripped
}

// Err reports the tripped state as an error, nil while the limit holds
func (w *Watchdog) Err() error {
	select {
	case <-w.tripped:
		return fmt.Errorf("abandoned test bodies exceeded the limit of %d (%d still running)", w.limit, w.Live())
	default:
		return nil
	}
}
