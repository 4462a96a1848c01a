package execution

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum-optimism/infra/op-testexec/types"
	"github.com/ethereum/go-ethereum/log"
)

// unitT is the types.T handed to bodies, setups and teardowns
type unitT struct {
	ctx  context.Context
	name string
	ec   *ExecutionContext
	log  log.Logger

	mu       sync.Mutex
	failures []string
	warnings []string
}

var _ types.T = (*unitT)(nil)

func newUnitT(u *WorkUnit, ctx context.Context) *unitT {
	return &unitT{
		ctx:  ctx,
		name: u.fullName,
		ec:   u.ctx,
		log:  u.ctx.run.log.New("test", u.fullName),
	}
}

func (t *unitT) Context() context.Context { return t.ctx }
func (t *unitT) Name() string             { return t.name }

func (t *unitT) Assert(ok bool, format string, args ...any) bool {
	t.ec.IncrementAssertCount()
	if !ok {
		t.mu.Lock()
		t.failures = append(t.failures, fmt.Sprintf(format, args...))
		t.mu.Unlock()
	}
	return ok
}

func (t *unitT) Warn(format string, args ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.warnings = append(t.warnings, fmt.Sprintf(format, args...))
}

func (t *unitT) Log(msg string, ctx ...any) {
	t.log.Info(msg, ctx...)
}

func (t *unitT) failureError() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.failures) == 0 {
		return nil
	}
	return errors.New(strings.Join(t.failures, "\n"))
}

func (t *unitT) warningMessage() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.Join(t.warnings, "\n")
}

// callSafely runs user code, turning a panic into an error
func callSafely(fn types.Func, t types.T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = types.NewPanicError(r)
		}
	}()
	return fn(t)
}
