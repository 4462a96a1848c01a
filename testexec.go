package testexec

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ethereum-optimism/infra/op-testexec/execution"
	"github.com/ethereum-optimism/infra/op-testexec/metrics"
	"github.com/ethereum-optimism/infra/op-testexec/registry"
	"github.com/ethereum-optimism/infra/op-testexec/reporting"
	"github.com/ethereum-optimism/infra/op-testexec/service"
	"github.com/ethereum-optimism/infra/op-testexec/types"
	"github.com/ethereum-optimism/optimism/op-service/cliapp"
	"github.com/ethereum-optimism/optimism/op-service/httputil"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
)

const defaultShutdownTimeout = 10 * time.Second

var _ cliapp.Lifecycle = (*TestExec)(nil)

// TestExec loads the plan, runs it and reports the outcome, once or on an
// interval. It implements cliapp.Lifecycle.
type TestExec struct {
	config    *Config
	version   string
	metrics   *metrics.Metrics
	scheduler TestScheduler
	formatter ResultFormatter
	reporter  MetricsReporter

	server        *service.Server
	metricsServer *httputil.HTTPServer

	// Register adds extra body factories to each run's registry
	Register func(r *registry.Registry) error

	runMu     sync.Mutex
	cancelMu  sync.Mutex
	cancelRun context.CancelFunc
	current   atomic.Pointer[execution.TestRunner]
	latest    atomic.Pointer[reporting.RunSummary]

	watchdog *execution.Watchdog
	done     chan struct{}

	running          atomic.Bool
	shutdownCallback func(error)
}

// New creates the lifecycle. out receives the result table, stdout when nil.
func New(config *Config, version string, out io.Writer, shutdownCallback func(error)) (*TestExec, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}
	if config.Log == nil {
		return nil, errors.New("config has no logger")
	}
	if shutdownCallback == nil {
		shutdownCallback = func(error) {}
	}
	config.Log.Debug("Creating test executor",
		"plan", config.PlanFile,
		"settings", config.Settings,
		"filter", config.Filter,
		"runInterval", config.RunInterval,
		"runOnce", config.RunOnce)

	m := metrics.NewMetrics(opmetrics.NewRegistry())
	e := &TestExec{
		config:           config,
		version:          version,
		metrics:          m,
		scheduler:        NewDefaultTestScheduler(config.RunInterval, config.RunOnce, config.Log),
		formatter:        NewConsoleResultFormatter(config.Log, out),
		reporter:         NewDefaultMetricsReporter(m),
		watchdog:         execution.NewWatchdog(config.AbandonLimit),
		done:             make(chan struct{}),
		shutdownCallback: shutdownCallback,
	}
	if config.HealthzAddr != "" {
		e.server = service.New(config.HealthzAddr, e, m, config.Log)
	}
	e.scheduler.RegisterCallback(e.runTests)
	return e, nil
}

// Start implements the cliapp.Lifecycle interface.
func (e *TestExec) Start(ctx context.Context) error {
	e.running.Store(true)
	if err := e.startServers(ctx); err != nil {
		return NewRuntimeError(err)
	}

	if e.config.RunOnce {
		e.config.Log.Info("Starting op-testexec in run-once mode", "version", e.version)
	} else {
		e.config.Log.Info("Starting op-testexec in continuous mode", "version", e.version, "interval", e.config.RunInterval)
	}

	if !e.config.RunOnce {
		go e.watchAbandoned()
	}

	// runs outlive the start context; Stop cancels them
	runCtx := context.WithoutCancel(ctx)
	if err := e.scheduler.Start(runCtx); err != nil {
		e.config.Log.Error("Runtime error running tests", "error", err)
		return err
	}

	if e.config.RunOnce {
		if latest := e.latest.Load(); latest != nil && latest.Status == types.TestStatusFail {
			e.config.Log.Warn("Run-once test run completed with failures, returning exit code 1")
			return NewTestFailureError(latest)
		}
		go e.shutdownCallback(nil)
	}
	return nil
}

// watchAbandoned shuts the service down once too many timed out tests are
// still running. Between runs nothing else would notice them.
func (e *TestExec) watchAbandoned() {
	select {
	case <-e.watchdog.Tripped():
		err := e.watchdog.Err()
		e.config.Log.Error("Too many abandoned tests, shutting down", "error", err)
		e.shutdownCallback(e.fail("watchdog", err))
	case <-e.done:
	}
}

func (e *TestExec) startServers(ctx context.Context) error {
	if e.server != nil {
		if err := e.server.Start(ctx); err != nil {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
	}
	if e.config.MetricsConfig.Enabled {
		cfg := e.config.MetricsConfig
		e.config.Log.Info("Starting metrics server", "addr", cfg.ListenAddr, "port", cfg.ListenPort)
		srv, err := opmetrics.StartServer(e.metrics.Registry(), cfg.ListenAddr, cfg.ListenPort)
		if err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		e.config.Log.Info("Started metrics server", "endpoint", srv.Addr())
		e.metricsServer = srv
	}
	return nil
}

// runTests performs one run: a fresh registry, the plan, the runner, then
// the table and the metrics
func (e *TestExec) runTests(ctx context.Context) error {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	if !e.running.Load() {
		return nil
	}

	runID := uuid.New().String()
	logger := e.config.Log.New("run_id", runID)
	logger.Info("Running all tests...", "plan", e.config.PlanFile)

	reg := registry.NewRegistry(registry.Config{Log: logger})
	defer func() {
		if err := reg.Close(); err != nil {
			logger.Warn("Failed to close registry", "error", err)
		}
	}()
	if e.Register != nil {
		if err := e.Register(reg); err != nil {
			return e.fail("register", fmt.Errorf("failed to register functions: %w", err))
		}
	}

	root, err := reg.LoadPlan(e.config.PlanFile)
	if err != nil {
		return e.fail("plan", err)
	}
	filter, err := types.NewNameFilter(e.config.Filter)
	if err != nil {
		return e.fail("filter", err)
	}

	if e.config.EventsFile != "" {
		sink, err := reporting.OpenJSONEventSink(e.config.EventsFile, root.Name)
		if err != nil {
			return e.fail("events", err)
		}
		if err := reg.AddListener(sink); err != nil {
			_ = sink.Close()
			return e.fail("events", err)
		}
	}

	summary := reporting.NewSummaryListener()
	events := execution.NewQueuingListener(execution.MultiListener{
		reporting.NewLogListener(logger),
		reporting.NewMetricsListener(e.metrics),
		summary,
	}, 0)
	if err := reg.AddListener(events); err != nil {
		return e.fail("register", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	e.cancelMu.Lock()
	e.cancelRun = cancel
	e.cancelMu.Unlock()

	settings := e.config.Settings
	settings.Watchdog = e.watchdog
	runner := execution.NewTestRunner(settings, logger, reg.Listener(), e.metrics)
	e.current.Store(runner)
	result, err := runner.Run(runCtx, root, filter)
	e.current.Store(nil)
	e.cancelMu.Lock()
	e.cancelRun = nil
	e.cancelMu.Unlock()
	// drain the event queue before reading the summary
	events.Close()
	if err != nil {
		return e.fail("run", err)
	}

	run := reporting.NewRunSummary(runID, e.config.PlanFile, result, summary.Summary())
	e.latest.Store(run)

	if err := e.formatter.FormatResults(run, result); err != nil {
		logger.Warn("Failed to print results", "error", err)
	}
	e.reporter.ReportResults(run)
	logger.Info("Test run completed", "status", run.Status, "state", run.State, "tests", run.Counts.Total())
	if err := e.watchdog.Err(); err != nil {
		return e.fail("watchdog", err)
	}
	return nil
}

// fail counts the error by stage and wraps it for exit code 2
func (e *TestExec) fail(stage string, err error) error {
	e.metrics.RecordErrorDetails(stage, err)
	return newStageError(stage, err)
}

// LatestRun returns the summary of the last finished run
func (e *TestExec) LatestRun() *reporting.RunSummary {
	return e.latest.Load()
}

// Stop implements the cliapp.Lifecycle interface.
func (e *TestExec) Stop(ctx context.Context) error {
	if !e.running.CompareAndSwap(true, false) {
		e.config.Log.Debug("Service already stopped, nothing to do")
		return nil
	}
	e.config.Log.Info("Stopping op-testexec")
	close(e.done)

	var errs []error
	e.cancelMu.Lock()
	if e.cancelRun != nil {
		e.config.Log.Info("Cancelling active run")
		e.cancelRun()
	}
	e.cancelMu.Unlock()
	if err := e.scheduler.Stop(); err != nil {
		errs = append(errs, err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, e.shutdownTimeout())
	defer cancel()
	if err := e.scheduler.WaitForShutdown(waitCtx); err != nil {
		if runner := e.current.Load(); runner != nil {
			runner.Cancel(true)
		}
		errs = append(errs, fmt.Errorf("scheduler did not stop: %w", err))
	}

	if e.server != nil {
		if err := e.server.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop HTTP server: %w", err))
		}
	}
	if e.metricsServer != nil {
		if err := e.metricsServer.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop metrics server: %w", err))
		}
	}
	e.config.Log.Info("op-testexec stopped")
	return errors.Join(errs...)
}

func (e *TestExec) shutdownTimeout() time.Duration {
	if e.config.ShutdownTimeout > 0 {
		return e.config.ShutdownTimeout
	}
	return defaultShutdownTimeout
}

// Stopped implements the cliapp.Lifecycle interface.
func (e *TestExec) Stopped() bool {
	return !e.running.Load()
}
