package reporting

import (
	"fmt"
	"time"

	"github.com/ethereum-optimism/infra/op-testexec/types"
)

// RunSummary describes a finished run. It is what the HTTP service serves
// and what gets logged at the end of a run.
type RunSummary struct {
	RunID    string           `json:"run_id"`
	Plan     string           `json:"plan"`
	Status   types.TestStatus `json:"status"`
	State    string           `json:"state"`
	Message  string           `json:"message,omitempty"`
	Start    time.Time        `json:"start"`
	End      time.Time        `json:"end"`
	Duration string           `json:"duration"`
	Asserts  int              `json:"asserts"`
	Counts   types.Counts     `json:"counts"`
	Failed   []string         `json:"failed,omitempty"`
}

// NewRunSummary combines the root result with the tallies of a SummaryListener
func NewRunSummary(runID, plan string, root *types.Result, s Summary) *RunSummary {
	return &RunSummary{
		RunID:    runID,
		Plan:     plan,
		Status:   root.State.Status,
		State:    root.State.String(),
		Message:  root.Message,
		Start:    root.Start,
		End:      root.End,
		Duration: root.Duration.String(),
		Asserts:  root.AssertCount,
		Counts:   root.Counts(),
		Failed:   s.Failed,
	}
}

func (s *RunSummary) String() string {
	return fmt.Sprintf("Run %s %s: %d tests, %d passed, %d failed, %d skipped, %d warnings, %d inconclusive (%s)",
		s.RunID, s.Status, s.Counts.Total(), s.Counts.Passed, s.Counts.Failed, s.Counts.Skipped,
		s.Counts.Warnings, s.Counts.Inconclusive, s.Duration)
}
