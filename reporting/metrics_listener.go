package reporting

import (
	"sync"

	"github.com/ethereum-optimism/infra/op-testexec/execution"
	"github.com/ethereum-optimism/infra/op-testexec/types"
)

// TestMetricer is the part of the metrics the listener feeds
type TestMetricer interface {
	RecordTestStarted()
	RecordTestFinished()
	RecordTestFailure(name string, site types.FailureSite)
}

// MetricsListener tracks tests in flight and counts failed leaves by name.
// Units settled without starting only count as failures.
type MetricsListener struct {
	m       TestMetricer
	mu      sync.Mutex
	started map[string]struct{}
}

var _ execution.Listener = (*MetricsListener)(nil)

func NewMetricsListener(m TestMetricer) *MetricsListener {
	return &MetricsListener{
		m:       m,
		started: make(map[string]struct{}),
	}
}

func (l *MetricsListener) TestStarted(info types.TestInfo) {
	l.mu.Lock()
	l.started[info.ID] = struct{}{}
	l.mu.Unlock()
	l.m.RecordTestStarted()
}

func (l *MetricsListener) TestFinished(result *types.Result) {
	l.mu.Lock()
	_, ok := l.started[result.Info.ID]
	delete(l.started, result.Info.ID)
	l.mu.Unlock()
	if ok {
		l.m.RecordTestFinished()
	}
	if result.Failed() && !result.Info.IsSuite {
		l.m.RecordTestFailure(result.Info.FullName, result.State.Site)
	}
}
