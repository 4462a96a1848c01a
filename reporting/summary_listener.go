package reporting

import (
	"sort"
	"sync"

	"github.com/ethereum-optimism/infra/op-testexec/execution"
	"github.com/ethereum-optimism/infra/op-testexec/types"
)

// Summary is a snapshot of what a SummaryListener has seen
type Summary struct {
	Started  int
	Finished int
	Counts   types.Counts
	// Failed holds the full names of failed leaves and of suites whose own
	// setup or teardown failed, sorted
	Failed []string
}

// SummaryListener counts leaf outcomes as they finish
type SummaryListener struct {
	mu      sync.Mutex
	summary Summary
}

var _ execution.Listener = (*SummaryListener)(nil)

func NewSummaryListener() *SummaryListener {
	return &SummaryListener{}
}

func (l *SummaryListener) TestStarted(types.TestInfo) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.summary.Started++
}

func (l *SummaryListener) TestFinished(result *types.Result) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.summary.Finished++
	if !result.Info.IsSuite {
		c := result.Counts()
		l.summary.Counts.Passed += c.Passed
		l.summary.Counts.Failed += c.Failed
		l.summary.Counts.Warnings += c.Warnings
		l.summary.Counts.Skipped += c.Skipped
		l.summary.Counts.Inconclusive += c.Inconclusive
	}
	if ownFailure(result) {
		l.summary.Failed = append(l.summary.Failed, result.Info.FullName)
	}
}

func ownFailure(result *types.Result) bool {
	if !result.Failed() {
		return false
	}
	if !result.Info.IsSuite {
		return true
	}
	switch result.State.Site {
	case types.SiteSetUp, types.SiteTearDown:
		return true
	}
	return false
}

// Summary returns a copy of the current tallies
func (l *SummaryListener) Summary() Summary {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := l.summary
	s.Failed = append([]string(nil), l.summary.Failed...)
	sort.Strings(s.Failed)
	return s
}
