package metrics

import "github.com/prometheus/client_golang/prometheus"

// SchedulerMetrics exposes counters/histograms/gauges for the slot and token
// allocation flow.
type SchedulerMetrics struct {
	allocationsTotal  *prometheus.CounterVec
	conflictRetries   *prometheus.CounterVec
	allocationLatency *prometheus.HistogramVec
	doctorDelay       *prometheus.GaugeVec
}

func NewSchedulerMetrics(reg prometheus.Registerer) *SchedulerMetrics {
	m := &SchedulerMetrics{
		allocationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicqueue",
			Subsystem: "scheduler",
			Name:      "allocations_total",
			Help:      "Total token/slot allocation attempts by outcome",
		}, []string{"channel", "outcome"}),
		conflictRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicqueue",
			Subsystem: "scheduler",
			Name:      "conflict_retries_total",
			Help:      "Allocation transaction retries after a concurrent writer won",
		}, []string{"channel"}),
		allocationLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinicqueue",
			Subsystem: "scheduler",
			Name:      "allocation_latency_seconds",
			Help:      "Latency of the full allocation including retries",
			Buckets:   prometheus.DefBuckets,
		}, []string{"channel"}),
		doctorDelay: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "clinicqueue",
			Subsystem: "scheduler",
			Name:      "doctor_delay_minutes",
			Help:      "Estimated minutes a doctor is running behind",
		}, []string{"doctor_id"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.allocationsTotal, m.conflictRetries, m.allocationLatency, m.doctorDelay)
	return m
}

func (m *SchedulerMetrics) ObserveAllocation(channel, outcome string) {
	if m == nil {
		return
	}
	m.allocationsTotal.WithLabelValues(channel, outcome).Inc()
}

func (m *SchedulerMetrics) ObserveConflictRetry(channel string) {
	if m == nil {
		return
	}
	m.conflictRetries.WithLabelValues(channel).Inc()
}

func (m *SchedulerMetrics) ObserveAllocationLatency(channel string, seconds float64) {
	if m == nil {
		return
	}
	m.allocationLatency.WithLabelValues(channel).Observe(seconds)
}

func (m *SchedulerMetrics) SetDoctorDelay(doctorID string, minutes float64) {
	if m == nil {
		return
	}
	m.doctorDelay.WithLabelValues(doctorID).Set(minutes)
}
