package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestSchedulerMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSchedulerMetrics(reg)
	m.ObserveAllocation("advance", "ok")
	m.ObserveConflictRetry("advance")
	m.ObserveAllocationLatency("walkin", 0.02)
	m.SetDoctorDelay("doc-1", 18)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(families) != 4 {
		t.Fatalf("expected 4 metric families, got %d", len(families))
	}
}

func TestSchedulerMetricsNilSafe(t *testing.T) {
	var m *SchedulerMetrics
	m.ObserveAllocation("advance", "ok")
	m.ObserveConflictRetry("walkin")
	m.ObserveAllocationLatency("advance", 0.1)
	m.SetDoctorDelay("doc-1", 0)
}
