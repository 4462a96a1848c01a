package reporting

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ethereum-optimism/infra/op-testexec/execution"
	"github.com/ethereum-optimism/infra/op-testexec/types"
)

// GoTestEvent is one line of `go test -json` output, so tools such as
// gotestsum can consume the event stream
type GoTestEvent struct {
	Time    time.Time `json:"Time"`
	Action  string    `json:"Action"`
	Package string    `json:"Package"`
	Test    string    `json:"Test,omitempty"`
	Output  string    `json:"Output,omitempty"`
	Elapsed float64   `json:"Elapsed,omitempty"`
}

// JSONEventSink writes run events as JSON lines. Write errors are kept and
// returned from Close.
type JSONEventSink struct {
	pkg string

	mu  sync.Mutex
	out io.WriteCloser
	buf *bufio.Writer
	enc *json.Encoder
	err error
}

var _ execution.Listener = (*JSONEventSink)(nil)

func NewJSONEventSink(out io.WriteCloser, pkg string) *JSONEventSink {
	buf := bufio.NewWriter(out)
	return &JSONEventSink{
		pkg: pkg,
		out: out,
		buf: buf,
		enc: json.NewEncoder(buf),
	}
}

// OpenJSONEventSink appends events to the file at path, creating it and its directory
func OpenJSONEventSink(path, pkg string) (*JSONEventSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create events directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open events file: %w", err)
	}
	return NewJSONEventSink(f, pkg), nil
}

func (s *JSONEventSink) TestStarted(info types.TestInfo) {
	s.write(GoTestEvent{Time: time.Now(), Action: "run", Package: s.pkg, Test: info.FullName})
}

func (s *JSONEventSink) TestFinished(result *types.Result) {
	now := time.Now()
	if result.Message != "" {
		s.write(GoTestEvent{Time: now, Action: "output", Package: s.pkg, Test: result.Info.FullName, Output: result.Message + "\n"})
	}
	s.write(GoTestEvent{
		Time:    now,
		Action:  goTestAction(result.State.Status),
		Package: s.pkg,
		Test:    result.Info.FullName,
		Elapsed: result.Duration.Seconds(),
	})
}

func goTestAction(status types.TestStatus) string {
	switch status {
	case types.TestStatusPass, types.TestStatusWarning:
		return "pass"
	case types.TestStatusFail:
		return "fail"
	default:
		return "skip"
	}
}

func (s *JSONEventSink) write(ev GoTestEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil || s.enc == nil {
		return
	}
	s.err = s.enc.Encode(ev)
}

// Close flushes buffered events and closes the output
func (s *JSONEventSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.enc == nil {
		return s.err
	}
	s.enc = nil
	err := errors.Join(s.err, s.buf.Flush(), s.out.Close())
	s.err = err
	return err
}
