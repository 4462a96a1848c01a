package metrics

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/ethereum-optimism/infra/op-testexec/execution"
	"github.com/ethereum-optimism/infra/op-testexec/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	MetricsNamespace = "testexec"
)

var (
	Debug        = false
	validResults = []types.TestStatus{
		types.TestStatusPass,
		types.TestStatusFail,
		types.TestStatusSkip,
		types.TestStatusWarning,
		types.TestStatusInconclusive,
	}
	nonAlphanumericRegex = regexp.MustCompile(`[^a-zA-Z ]+`)
)

// Metrics holds every collector of the executor, registered on one registry
type Metrics struct {
	registry *prometheus.Registry

	errorsTotal    *prometheus.CounterVec
	unitsTotal     *prometheus.CounterVec
	unitDuration   *prometheus.HistogramVec
	queueItems     *prometheus.CounterVec
	queueHighWater *prometheus.GaugeVec
	shiftStarts    *prometheus.CounterVec
	busyWorkers    *prometheus.GaugeVec
	timeoutsTotal  *prometheus.CounterVec
	abandonedTotal *prometheus.CounterVec
	testsInFlight  prometheus.Gauge
	testFailures   *prometheus.CounterVec

	runResults  *prometheus.GaugeVec
	runTests    *prometheus.CounterVec
	runDuration *prometheus.GaugeVec
}

var _ execution.Metricer = (*Metrics)(nil)

// NewMetrics registers the collectors on registry. A nil registry gets a fresh one.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	factory := promauto.With(registry)
	return &Metrics{
		registry: registry,
		errorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Name:      "errors_total",
			Help:      "Count of errors",
		}, []string{
			"error",
		}),
		unitsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Name:      "units_total",
			Help:      "Count of completed work units",
		}, []string{
			"kind",
			"result",
		}),
		unitDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: MetricsNamespace,
			Name:      "unit_duration_seconds",
			Help:      "Duration of completed work units",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{
			"kind",
		}),
		queueItems: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Name:      "queue_items_processed_total",
			Help:      "Count of items handed out by a work queue",
		}, []string{
			"queue",
		}),
		queueHighWater: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: MetricsNamespace,
			Name:      "queue_high_water_mark",
			Help:      "Largest depth a work queue reached",
		}, []string{
			"queue",
		}),
		shiftStarts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Name:      "shift_starts_total",
			Help:      "Count of shift starts",
		}, []string{
			"shift",
		}),
		busyWorkers: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: MetricsNamespace,
			Name:      "busy_workers",
			Help:      "Workers currently executing a unit",
		}, []string{
			"shift",
		}),
		timeoutsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Name:      "timeouts_total",
			Help:      "Count of tests that exceeded their timeout",
		}, []string{
			"name",
		}),
		abandonedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Name:      "abandoned_goroutines_total",
			Help:      "Count of timed out bodies that did not return within the grace period",
		}, []string{
			"name",
		}),
		testsInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: MetricsNamespace,
			Name:      "tests_in_flight",
			Help:      "Tests and suites started but not yet finished",
		}),
		testFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Name:      "test_failures_total",
			Help:      "Count of failed leaf tests by full name and failure site",
		}, []string{
			"name",
			"site",
		}),
		runResults: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: MetricsNamespace,
			Name:      "run_results",
			Help:      "Result of a run",
		}, []string{
			"run_id",
			"result",
		}),
		runTests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Name:      "run_tests_total",
			Help:      "Tests counted in a run by outcome",
		}, []string{
			"run_id",
			"outcome",
		}),
		runDuration: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: MetricsNamespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of a run",
		}, []string{
			"run_id",
		}),
	}
}

// Registry returns the registry the collectors live on
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// errToLabel tries to make the error string a more valid Prometheus label
func errToLabel(err error) string {
	if err == nil {
		return "nil"
	}
	errClean := nonAlphanumericRegex.ReplaceAllString(err.Error(), "")
	errClean = strings.ReplaceAll(errClean, " ", "_")
	errClean = strings.ReplaceAll(errClean, "__", "_")
	return errClean
}

func (m *Metrics) RecordError(label string) {
	if Debug {
		log.Debug("metric inc", "m", "errors_total", "error", label)
	}
	m.errorsTotal.WithLabelValues(label).Inc()
}

// RecordErrorDetails concats the error message to the label
// and also tries to clean the label to be a valid Prometheus label
func (m *Metrics) RecordErrorDetails(label string, err error) {
	if err == nil {
		return
	}
	m.RecordError(fmt.Sprintf("%s.%s", label, errToLabel(err)))
}

func (m *Metrics) RecordUnit(kind string, status types.TestStatus, duration time.Duration) {
	if !isValidResult(status) {
		log.Error("RecordUnit - invalid result", "result", status)
		return
	}
	if Debug {
		log.Debug("metric inc", "m", "units_total", "kind", kind, "result", status)
	}
	m.unitsTotal.WithLabelValues(kind, string(status)).Inc()
	m.unitDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

func (m *Metrics) RecordQueueItem(queue string) {
	m.queueItems.WithLabelValues(queue).Inc()
}

func (m *Metrics) RecordQueueHighWater(queue string, depth int) {
	m.queueHighWater.WithLabelValues(queue).Set(float64(depth))
}

func (m *Metrics) RecordShiftStart(shift string) {
	m.shiftStarts.WithLabelValues(shift).Inc()
}

func (m *Metrics) RecordBusyWorkers(shift string, busy int) {
	m.busyWorkers.WithLabelValues(shift).Set(float64(busy))
}

func (m *Metrics) RecordTimeout(name string) {
	m.timeoutsTotal.WithLabelValues(name).Inc()
}

func (m *Metrics) RecordAbandoned(name string) {
	m.abandonedTotal.WithLabelValues(name).Inc()
}

// RecordTestStarted marks a test or suite as running
func (m *Metrics) RecordTestStarted() {
	m.testsInFlight.Inc()
}

// RecordTestFinished marks a test or suite as done
func (m *Metrics) RecordTestFinished() {
	m.testsInFlight.Dec()
}

func (m *Metrics) RecordTestFailure(name string, site types.FailureSite) {
	m.testFailures.WithLabelValues(name, string(site)).Inc()
}

// RecordRun records the summary of a finished run
func (m *Metrics) RecordRun(runID string, result types.TestStatus, counts types.Counts, duration time.Duration) {
	m.runResults.WithLabelValues(runID, string(result)).Set(1)
	m.runTests.WithLabelValues(runID, "total").Add(float64(counts.Total()))
	m.runTests.WithLabelValues(runID, "passed").Add(float64(counts.Passed))
	m.runTests.WithLabelValues(runID, "failed").Add(float64(counts.Failed))
	m.runTests.WithLabelValues(runID, "skipped").Add(float64(counts.Skipped))
	m.runTests.WithLabelValues(runID, "warnings").Add(float64(counts.Warnings))
	m.runTests.WithLabelValues(runID, "inconclusive").Add(float64(counts.Inconclusive))
	m.runDuration.WithLabelValues(runID).Set(duration.Seconds())
}

func isValidResult(result types.TestStatus) bool {
	return slices.Contains(validResults, result)
}
