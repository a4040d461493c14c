package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func newIsolatedRefreshMetrics(t *testing.T) (*RefreshMetrics, *prometheus.Registry) {
	t.Helper()
	registry := prometheus.NewRegistry()
	m := newRefreshMetrics(registry, Config{ServiceName: "simwatch", Environment: "test"})
	return m, registry
}

func counterValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	metricFamilies, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metricFamilies {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			matched := true
			for _, label := range metric.GetLabel() {
				if want, ok := labels[label.GetName()]; ok && want != label.GetValue() {
					matched = false
					break
				}
			}
			if !matched {
				continue
			}
			if metric.GetCounter() != nil {
				return metric.GetCounter().GetValue()
			}
			if metric.GetGauge() != nil {
				return metric.GetGauge().GetValue()
			}
		}
	}
	return 0
}

func TestRefreshMetricsCounters(t *testing.T) {
	m, registry := newIsolatedRefreshMetrics(t)

	m.IncCycleRun()
	m.IncCycleRun()
	m.IncCycleError(RefreshErrorReasonAuth)
	m.IncSectionDegraded("usage")
	m.IncCoalescedRequest()
	m.SetDeviceCount(7)
	m.ObserveCycleDuration(125 * time.Millisecond)

	if got := counterValue(t, registry, "simwatch_refresh_cycle_runs_total", nil); got != 2 {
		t.Fatalf("expected 2 cycle runs, got %v", got)
	}
	if got := counterValue(t, registry, "simwatch_refresh_cycle_errors_total", map[string]string{"reason": "auth"}); got != 1 {
		t.Fatalf("expected 1 auth error, got %v", got)
	}
	if got := counterValue(t, registry, "simwatch_refresh_section_degraded_total", map[string]string{"section": "usage"}); got != 1 {
		t.Fatalf("expected 1 degraded usage section, got %v", got)
	}
	if got := counterValue(t, registry, "simwatch_snapshot_devices", nil); got != 7 {
		t.Fatalf("expected device gauge 7, got %v", got)
	}
}

func TestRefreshMetricsNormalizesUnknownReason(t *testing.T) {
	m, registry := newIsolatedRefreshMetrics(t)

	m.IncCycleError("surprise_reason")

	if got := counterValue(t, registry, "simwatch_refresh_cycle_errors_total", map[string]string{"reason": RefreshErrorReasonUnknown}); got != 1 {
		t.Fatalf("expected unknown-reason bucket, got %v", got)
	}
}

func TestMutationOutcomeLabels(t *testing.T) {
	m, registry := newIsolatedRefreshMetrics(t)

	m.IncMutation("activate", true)
	m.IncMutation("activate", false)
	m.IncMutation("send_sms", true)

	if got := counterValue(t, registry, "simwatch_mutation_calls_total", map[string]string{"operation": "activate", "outcome": "ok"}); got != 1 {
		t.Fatalf("expected 1 ok activation, got %v", got)
	}
	if got := counterValue(t, registry, "simwatch_mutation_calls_total", map[string]string{"operation": "activate", "outcome": "error"}); got != 1 {
		t.Fatalf("expected 1 failed activation, got %v", got)
	}
}
