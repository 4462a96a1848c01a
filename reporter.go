package testexec

import (
	"time"

	"github.com/ethereum-optimism/infra/op-testexec/reporting"
	"github.com/ethereum-optimism/infra/op-testexec/types"
)

// MetricsReporter is responsible for reporting metrics from run summaries.
type MetricsReporter interface {
	ReportResults(summary *reporting.RunSummary)
}

// RunRecorder is the part of the metrics that records run summaries
type RunRecorder interface {
	RecordRun(runID string, result types.TestStatus, counts types.Counts, duration time.Duration)
}

// DefaultMetricsReporter implements the MetricsReporter interface.
type DefaultMetricsReporter struct {
	recorder RunRecorder
}

func NewDefaultMetricsReporter(recorder RunRecorder) *DefaultMetricsReporter {
	return &DefaultMetricsReporter{recorder: recorder}
}

func (r *DefaultMetricsReporter) ReportResults(summary *reporting.RunSummary) {
	duration := summary.End.Sub(summary.Start)
	if duration < 0 {
		duration = 0
	}
	r.recorder.RecordRun(summary.RunID, summary.Status, summary.Counts, duration)
}
