package observability

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type moduleMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	lendingMetricsOnce sync.Once
	lendingRegistry    *LendingMetricsRegistry
)

// ModuleMetrics returns the lazily-initialised registry recording HTTP API
// activity per route.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "foxylend",
				Subsystem: "api",
				Name:      "requests_total",
				Help:      "Total API requests segmented by route and outcome.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "foxylend",
				Subsystem: "api",
				Name:      "errors_total",
				Help:      "Total API errors segmented by route and status code.",
			}, []string{"module", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "foxylend",
				Subsystem: "api",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for API handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "foxylend",
				Subsystem: "api",
				Name:      "throttles_total",
				Help:      "Count of API requests rejected due to throttling policies.",
			}, []string{"module", "reason"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
			moduleRegistry.throttles,
		)
	})
	return moduleRegistry
}

// Observe records the outcome of a request. The status code should be the HTTP
// status that was ultimately written to the response writer.
func (m *moduleMetrics) Observe(module, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(module, method, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(module, method, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(module, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter for the supplied module and
// reason. Reasons should be stable strings such as "rate_limit".
func (m *moduleMetrics) RecordThrottle(module, reason string) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(module, reason).Inc()
}

// LendingMetricsRegistry tracks ledger operations and the transfer outbox.
type LendingMetricsRegistry struct {
	operations   *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	openOffers   prometheus.Gauge
	activeLoans  prometheus.Gauge
	outboxJobs   *prometheus.CounterVec
	outboxQueued prometheus.Gauge
}

// LendingMetrics returns the lazily-initialised lending metrics registry.
func LendingMetrics() *LendingMetricsRegistry {
	lendingMetricsOnce.Do(func() {
		lendingRegistry = &LendingMetricsRegistry{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "foxylend",
				Subsystem: "lending",
				Name:      "operations_total",
				Help:      "Lending operations segmented by action and outcome (success, default, rejected).",
			}, []string{"action", "outcome"}),
			duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "foxylend",
				Subsystem: "lending",
				Name:      "operation_duration_seconds",
				Help:      "Latency of lending operations including the storage commit.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"action"}),
			openOffers: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "foxylend",
				Subsystem: "lending",
				Name:      "open_offers",
				Help:      "Offers waiting for a borrower.",
			}),
			activeLoans: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "foxylend",
				Subsystem: "lending",
				Name:      "active_loans",
				Help:      "Accepted offers awaiting repayment or default.",
			}),
			outboxJobs: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "foxylend",
				Subsystem: "outbox",
				Name:      "jobs_total",
				Help:      "Transfer instructions processed by the outbox worker segmented by kind and status.",
			}, []string{"kind", "status"}),
			outboxQueued: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "foxylend",
				Subsystem: "outbox",
				Name:      "pending_jobs",
				Help:      "Transfer instructions claimed in the last worker pass.",
			}),
		}
		prometheus.MustRegister(
			lendingRegistry.operations,
			lendingRegistry.duration,
			lendingRegistry.openOffers,
			lendingRegistry.activeLoans,
			lendingRegistry.outboxJobs,
			lendingRegistry.outboxQueued,
		)
	})
	return lendingRegistry
}

// ObserveOperation records one lending operation. outcome should be the
// result's outcome or "rejected" when the operation failed.
func (m *LendingMetricsRegistry) ObserveOperation(action, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	if action == "" {
		action = "unknown"
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.operations.WithLabelValues(action, outcome).Inc()
	m.duration.WithLabelValues(action).Observe(duration.Seconds())
}

// SetOfferCounts publishes the current ledger population.
func (m *LendingMetricsRegistry) SetOfferCounts(open, active uint64) {
	if m == nil {
		return
	}
	m.openOffers.Set(float64(open))
	m.activeLoans.Set(float64(active))
}

// RecordOutboxJob counts one processed transfer instruction.
func (m *LendingMetricsRegistry) RecordOutboxJob(kind, status string) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = "unknown"
	}
	m.outboxJobs.WithLabelValues(kind, status).Inc()
}

// SetOutboxPending reports the size of the last claimed batch.
func (m *LendingMetricsRegistry) SetOutboxPending(n int) {
	if m == nil {
		return
	}
	m.outboxQueued.Set(float64(n))
}
