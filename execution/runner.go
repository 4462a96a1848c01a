package execution

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/ethereum-optimism/infra/op-testexec/types"
	"github.com/ethereum/go-ethereum/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// ErrNoTestsSelected is returned when the filter excludes the whole tree
var ErrNoTestsSelected = errors.New("no tests match the filter")

// ErrRunInProgress is returned when Run is called while another run is active
var ErrRunInProgress = errors.New("a run is already in progress")

// DefaultAbandonGrace is how long a timed out body may take to return after
// its context was cancelled
const DefaultAbandonGrace = time.Second

// Settings are read once at the start of a run
type Settings struct {
	// Workers is the degree of parallelism. Zero runs everything on one goroutine.
	Workers        int
	DefaultTimeout time.Duration
	AbandonGrace   time.Duration
	StopOnError    bool
	// Watchdog counts abandoned bodies across runs. Nil disables it.
	Watchdog *Watchdog
}

// DefaultSettings uses one worker per CPU
func DefaultSettings() Settings {
	return Settings{
		Workers:      runtime.NumCPU(),
		AbandonGrace: DefaultAbandonGrace,
	}
}

// TestRunner runs test trees, one at a time
type TestRunner struct {
	settings Settings
	log      log.Logger
	listener Listener
	metrics  Metricer
	tracer   trace.Tracer

	mu         sync.Mutex
	dispatcher Dispatcher
}

// NewTestRunner creates a runner. listener and m may be nil.
func NewTestRunner(settings Settings, logger log.Logger, listener Listener, m Metricer) *TestRunner {
	if settings.Workers < 0 {
		panic("workers cannot be negative")
	}
	if settings.AbandonGrace <= 0 {
		settings.AbandonGrace = DefaultAbandonGrace
	}
	if listener == nil {
		listener = NoopListener{}
	}
	if m == nil {
		m = NoopMetrics{}
	}
	return &TestRunner{
		settings: settings,
		log:      logger.New("component", "test-runner"),
		listener: listener,
		metrics:  m,
		tracer:   otel.Tracer("test runner"),
	}
}

// Run executes root and returns its aggregated result. Cancelling ctx stops
// the run cooperatively; the result then reports the cancelled units.
func (r *TestRunner) Run(ctx context.Context, root *types.Test, filter types.Filter) (*types.Result, error) {
	if root == nil {
		return nil, errors.New("root test cannot be nil")
	}
	if filter == nil {
		filter = types.EmptyFilter
	}
	if !filter.Pass(root, root.Name) {
		return nil, ErrNoTestsSelected
	}

	run := newRunState(ctx, r.settings, r.log, r.listener, r.metrics, r.tracer)
	var dispatcher Dispatcher
	if r.settings.Workers == 0 {
		dispatcher = NewSimpleDispatcher(r.log)
	} else {
		dispatcher = NewParallelDispatcher(r.log, r.metrics, r.settings.Workers, CollectAffinities(root))
	}
	run.dispatcher = dispatcher

	r.mu.Lock()
	if r.dispatcher != nil {
		r.mu.Unlock()
		return nil, ErrRunInProgress
	}
	r.dispatcher = dispatcher
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.dispatcher = nil
		r.mu.Unlock()
	}()

	top := newWorkUnit(root, root.Name, filter, newRootContext(run, root), nil)

	start := time.Now()
	r.log.Info("Running tests", "root", root.Name, "tests", root.CountTestCases(filter), "workers", r.settings.Workers)

	if ctx.Err() != nil {
		run.requestStop(false)
	}
	dispatcher.Start(top)

	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		select {
		case <-ctx.Done():
			r.log.Warn("Context cancelled, stopping run", "err", ctx.Err())
			dispatcher.CancelRun(false)
		case <-top.Done():
		}
	}()

	<-top.Done()
	dispatcher.Wait()
	<-watchDone
	run.abort()

	result := top.Result()
	r.log.Info("Run finished", "root", root.Name, "state", result.State, "duration", time.Since(start))
	return result, nil
}

// Cancel stops the active run, if any. A forced cancel also cancels the
// context of running bodies and skips pending teardowns.
func (r *TestRunner) Cancel(force bool) {
	r.mu.Lock()
	d := r.dispatcher
	r.mu.Unlock()
	if d == nil {
		return
	}
	d.CancelRun(force)
}

// CollectAffinities returns every affinity class declared in the tree
func CollectAffinities(root *types.Test) []types.Affinity {
	var out []types.Affinity
	var walk func(t *types.Test)
	walk = func(t *types.Test) {
		if t.Affinity != types.AffinityNone {
			out = append(out, t.Affinity)
		}
		for _, c := range t.Children {
			walk(c)
		}
	}
	walk(root)
	return uniqueAffinities(out)
}

// String describes the settings for logs
func (s Settings) String() string {
	return fmt.Sprintf("workers=%d default-timeout=%s abandon-grace=%s stop-on-error=%t",
		s.Workers, s.DefaultTimeout, s.AbandonGrace, s.StopOnError)
}
