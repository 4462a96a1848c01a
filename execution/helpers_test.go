package execution

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum-optimism/infra/op-testexec/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
)

func testLogger() log.Logger {
	return log.NewLogger(log.DiscardHandler())
}

func newTestRun(settings Settings, listener Listener) *runState {
	if listener == nil {
		listener = NoopListener{}
	}
	if settings.AbandonGrace == 0 {
		settings.AbandonGrace = DefaultAbandonGrace
	}
	run := newRunState(context.Background(), settings, testLogger(), listener, NoopMetrics{}, noop.NewTracerProvider().Tracer("test"))
	run.dispatcher = NewSimpleDispatcher(testLogger())
	return run
}

func newLeafUnit(run *runState, name string, body types.Func) *WorkUnit {
	test := types.NewTest(name, body)
	return newWorkUnit(test, name, nil, newRootContext(run, test), nil)
}

func passBody(types.T) error { return nil }

func newRunner(t *testing.T, settings Settings, listener Listener, m Metricer) *TestRunner {
	t.Helper()
	return NewTestRunner(settings, testLogger(), listener, m)
}

func runTree(t *testing.T, r *TestRunner, root *types.Test) *types.Result {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	res, err := r.Run(ctx, root, nil)
	require.NoError(t, err)
	require.NotNil(t, res)
	return res
}

func childResult(t *testing.T, res *types.Result, name string) *types.Result {
	t.Helper()
	for _, c := range res.Children {
		if c.Info.Name == name {
			return c
		}
	}
	require.Failf(t, "child not found", "no child %q in %q", name, res.Info.FullName)
	return nil
}

func startedNames(events []Event) []string {
	var out []string
	for _, ev := range events {
		if ev.Kind == EventStarted {
			out = append(out, ev.Info.FullName)
		}
	}
	return out
}

func finishedIndex(events []Event, fullName string) int {
	for i, ev := range events {
		if ev.Kind == EventFinished && ev.Info.FullName == fullName {
			return i
		}
	}
	return -1
}

// concurrencyGauge tracks how many bodies run at once
type concurrencyGauge struct {
	current atomic.Int32
	max     atomic.Int32
}

func (p *concurrencyGauge) body(hold time.Duration) types.Func {
	return func(types.T) error {
		n := p.current.Add(1)
		for {
			m := p.max.Load()
			if n <= m || p.max.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(hold)
		p.current.Add(-1)
		return nil
	}
}

// countingMetrics records the counters tests care about
type countingMetrics struct {
	NoopMetrics
	mu        sync.Mutex
	units     map[types.TestStatus]int
	timeouts  atomic.Int32
	abandoned atomic.Int32
	shifts    map[string]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{
		units:  make(map[types.TestStatus]int),
		shifts: make(map[string]int),
	}
}

func (m *countingMetrics) RecordUnit(_ string, status types.TestStatus, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.units[status]++
}

func (m *countingMetrics) RecordShiftStart(shift string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shifts[shift]++
}

func (m *countingMetrics) RecordTimeout(string)   { m.timeouts.Add(1) }
func (m *countingMetrics) RecordAbandoned(string) { m.abandoned.Add(1) }

func (m *countingMetrics) shiftStarts(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shifts[name]
}
