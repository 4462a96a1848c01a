// Package reporting contains listeners that turn run events into logs,
// metrics and summaries.
package reporting

import (
	"github.com/ethereum-optimism/infra/op-testexec/execution"
	"github.com/ethereum-optimism/infra/op-testexec/types"
	"github.com/ethereum/go-ethereum/log"
)

// LogListener writes one structured log line per event
type LogListener struct {
	log log.Logger
}

var _ execution.Listener = (*LogListener)(nil)

func NewLogListener(logger log.Logger) *LogListener {
	return &LogListener{log: logger.New("component", "reporting")}
}

func (l *LogListener) TestStarted(info types.TestInfo) {
	l.log.Debug("Test started", "test", info.FullName, "suite", info.IsSuite)
}

func (l *LogListener) TestFinished(result *types.Result) {
	ctx := []any{
		"test", result.Info.FullName,
		"state", result.State,
		"duration", result.Duration,
		"asserts", result.AssertCount,
	}
	if result.Message != "" {
		ctx = append(ctx, "message", result.Message)
	}
	switch result.State.Status {
	case types.TestStatusFail:
		l.log.Error("Test failed", ctx...)
	case types.TestStatusWarning:
		l.log.Warn("Test finished with warnings", ctx...)
	case types.TestStatusSkip:
		l.log.Info("Test skipped", ctx...)
	default:
		l.log.Info("Test finished", ctx...)
	}
}
