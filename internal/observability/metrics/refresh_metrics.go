package metrics

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Config carries the constant labels applied to every instrument.
type Config struct {
	ServiceName string
	Environment string
}

const (
	RefreshErrorReasonAuth       = "auth"
	RefreshErrorReasonRateLimit  = "rate_limit"
	RefreshErrorReasonConnection = "connection"
	RefreshErrorReasonRemote     = "remote"
	RefreshErrorReasonUnknown    = "unknown"
)

// RefreshMetrics captures refresh-cycle health signals.
type RefreshMetrics struct {
	cycleRuns        prometheus.Counter
	cycleDuration    prometheus.Observer
	cycleErrors      *prometheus.CounterVec
	sectionDegraded  *prometheus.CounterVec
	coalescedRequest prometheus.Counter
	deviceCount      prometheus.Gauge
	mutationCalls    *prometheus.CounterVec
}

var (
	refreshMetricsOnce sync.Once
	refreshMetrics     *RefreshMetrics
)

// Refresh returns the singleton refresh metrics registry.
func Refresh() *RefreshMetrics {
	return RefreshWithConfig(Config{})
}

// RefreshWithConfig returns the singleton refresh metrics registry using config labels.
func RefreshWithConfig(cfg Config) *RefreshMetrics {
	refreshMetricsOnce.Do(func() {
		refreshMetrics = newRefreshMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return refreshMetrics
}

// ResetRefreshMetricsForTest resets the refresh metrics singleton for tests.
func ResetRefreshMetricsForTest() {
	refreshMetricsOnce = sync.Once{}
	refreshMetrics = nil
}

func newRefreshMetrics(registerer prometheus.Registerer, cfg Config) *RefreshMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "simwatch"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	cycleRuns := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "simwatch_refresh_cycle_runs_total",
		Help:        "Refresh cycles started.",
		ConstLabels: constLabels,
	})
	cycleDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "simwatch_refresh_cycle_duration_seconds",
		Help:        "Refresh cycle latency including all remote fetches.",
		Buckets:     []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
		ConstLabels: constLabels,
	})
	cycleErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "simwatch_refresh_cycle_errors_total",
		Help:        "Failed refresh cycles by low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"reason"})
	sectionDegraded := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "simwatch_refresh_section_degraded_total",
		Help:        "Optional snapshot sections that degraded to empty in a cycle.",
		ConstLabels: constLabels,
	}, []string{"section"})
	coalescedRequest := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "simwatch_refresh_requests_coalesced_total",
		Help:        "Manual refresh requests coalesced into an already pending cycle.",
		ConstLabels: constLabels,
	})
	deviceCount := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "simwatch_snapshot_devices",
		Help:        "Devices in the last published snapshot.",
		ConstLabels: constLabels,
	})
	mutationCalls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "simwatch_mutation_calls_total",
		Help:        "Remote mutating calls by operation and outcome.",
		ConstLabels: constLabels,
	}, []string{"operation", "outcome"})

	collectors := []prometheus.Collector{
		cycleRuns, cycleDuration, cycleErrors, sectionDegraded,
		coalescedRequest, deviceCount, mutationCalls,
	}
	for _, collector := range collectors {
		if err := registerer.Register(collector); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				panic(err)
			}
		}
	}

	return &RefreshMetrics{
		cycleRuns:        cycleRuns,
		cycleDuration:    cycleDuration,
		cycleErrors:      cycleErrors,
		sectionDegraded:  sectionDegraded,
		coalescedRequest: coalescedRequest,
		deviceCount:      deviceCount,
		mutationCalls:    mutationCalls,
	}
}

func (m *RefreshMetrics) IncCycleRun() {
	if m == nil {
		return
	}
	m.cycleRuns.Inc()
}

func (m *RefreshMetrics) ObserveCycleDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.cycleDuration.Observe(d.Seconds())
}

func (m *RefreshMetrics) IncCycleError(reason string) {
	if m == nil {
		return
	}
	m.cycleErrors.WithLabelValues(normalizeReason(reason)).Inc()
}

func (m *RefreshMetrics) IncSectionDegraded(section string) {
	if m == nil {
		return
	}
	m.sectionDegraded.WithLabelValues(section).Inc()
}

func (m *RefreshMetrics) IncCoalescedRequest() {
	if m == nil {
		return
	}
	m.coalescedRequest.Inc()
}

func (m *RefreshMetrics) SetDeviceCount(n int) {
	if m == nil {
		return
	}
	m.deviceCount.Set(float64(n))
}

func (m *RefreshMetrics) IncMutation(operation string, ok bool) {
	if m == nil {
		return
	}
	outcome := "success"
	if !ok {
		outcome = "error"
	}
	m.mutationCalls.WithLabelValues(operation, outcome).Inc()
}

func normalizeReason(reason string) string {
	reason = strings.TrimSpace(strings.ToLower(reason))
	switch reason {
	case RefreshErrorReasonAuth, RefreshErrorReasonRateLimit,
		RefreshErrorReasonConnection, RefreshErrorReasonRemote:
		return reason
	default:
		return RefreshErrorReasonUnknown
	}
}
