package execution

import (
	"sync"

	"github.com/ethereum-optimism/infra/op-testexec/types"
)

// Listener receives progress events. Finished always carries a copy the
// listener may keep. Events for different branches may arrive from
// different goroutines.
type Listener interface {
	TestStarted(info types.TestInfo)
	TestFinished(result *types.Result)
}

// NoopListener ignores every event
type NoopListener struct{}

func (NoopListener) TestStarted(types.TestInfo)   {}
func (NoopListener) TestFinished(*types.Result) {}

// MultiListener fans events out to several listeners in order
type MultiListener []Listener

func (m MultiListener) TestStarted(info types.TestInfo) {
	for _, l := range m {
		l.TestStarted(info)
	}
}

func (m MultiListener) TestFinished(result *types.Result) {
	for _, l := range m {
		l.TestFinished(result)
	}
}

// EventKind tells started and finished events apart
type EventKind int

const (
	EventStarted EventKind = iota
	EventFinished
)

// Event is a recorded listener callback
type Event struct {
	Kind   EventKind
	Info   types.TestInfo
	Result *types.Result
}

// RecordingListener keeps every event in arrival order
type RecordingListener struct {
	mu     sync.Mutex
	events []Event
}

func (r *RecordingListener) TestStarted(info types.TestInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Event{Kind: EventStarted, Info: info})
}

func (r *RecordingListener) TestFinished(result *types.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Event{Kind: EventFinished, Info: result.Info, Result: result})
}

// Events returns a snapshot of the recorded events
func (r *RecordingListener) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}
