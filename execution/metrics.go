package execution

import (
	"time"

	"github.com/ethereum-optimism/infra/op-testexec/types"
)

// Metricer records scheduler and result metrics
type Metricer interface {
	RecordUnit(kind string, status types.TestStatus, duration time.Duration)
	RecordQueueItem(queue string)
	RecordQueueHighWater(queue string, depth int)
	RecordShiftStart(shift string)
	RecordBusyWorkers(shift string, busy int)
	RecordTimeout(name string)
	RecordAbandoned(name string)
}

// NoopMetrics discards everything
type NoopMetrics struct{}

func (NoopMetrics) RecordUnit(string, types.TestStatus, time.Duration) {}
func (NoopMetrics) RecordQueueItem(string)                             {}
func (NoopMetrics) RecordQueueHighWater(string, int)                   {}
func (NoopMetrics) RecordShiftStart(string)                            {}
func (NoopMetrics) RecordBusyWorkers(string, int)                      {}
func (NoopMetrics) RecordTimeout(string)                               {}
func (NoopMetrics) RecordAbandoned(string)                             {}

var _ Metricer = NoopMetrics{}
