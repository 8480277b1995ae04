// Package metrics holds the Prometheus collectors of the reservation engine.
//
// All methods are safe to call on a nil *Metrics, which records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "rezervator"

// Metrics groups the collectors registered by New.
type Metrics struct {
	LimiterWait        prometheus.Histogram
	RetryAttempts      *prometheus.CounterVec
	CacheLookups       *prometheus.CounterVec
	CommitmentOutcomes *prometheus.CounterVec
	AuditFailures      prometheus.Counter
	HTTPRequests       *prometheus.CounterVec
	HTTPDuration       *prometheus.HistogramVec
}

// New registers the collectors with reg. Pass prometheus.NewRegistry() in tests
// to avoid clashing with the default registry.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		LimiterWait: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rate_limiter_wait_seconds",
			Help:      "Time spent blocked in the backend rate limiter",
			Buckets:   []float64{0, 0.01, 0.1, 0.5, 1, 5, 15, 30, 60},
		}),
		RetryAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retry_attempts_total",
			Help:      "Backend call retries after a quota error, by final result",
		}, []string{"result"}),
		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Read cache lookups by cache name and result",
		}, []string{"cache", "result"}),
		CommitmentOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commitment_outcomes_total",
			Help:      "Commitment create and update attempts by outcome",
		}, []string{"operation", "outcome"}),
		AuditFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_failures_total",
			Help:      "Audit entries that could not be written",
		}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "status"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}
}

// ObserveLimiterWait records how long a caller was blocked by the rate limiter.
func (m *Metrics) ObserveLimiterWait(d time.Duration) {
	if m == nil {
		return
	}
	m.LimiterWait.Observe(d.Seconds())
}

// Retry counts one retried attempt. result is "retry", "success" or "exhausted".
func (m *Metrics) Retry(result string) {
	if m == nil {
		return
	}
	m.RetryAttempts.WithLabelValues(result).Inc()
}

// CacheLookup counts a cache hit or miss.
func (m *Metrics) CacheLookup(cache string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(cache, result).Inc()
}

// CommitmentOutcome counts an accepted or rejected commitment operation.
func (m *Metrics) CommitmentOutcome(operation, outcome string) {
	if m == nil {
		return
	}
	m.CommitmentOutcomes.WithLabelValues(operation, outcome).Inc()
}

// AuditFailure counts an audit entry that was dropped.
func (m *Metrics) AuditFailure() {
	if m == nil {
		return
	}
	m.AuditFailures.Inc()
}

// HTTPRequest records one served request.
func (m *Metrics) HTTPRequest(method, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, status).Inc()
	m.HTTPDuration.WithLabelValues(method).Observe(d.Seconds())
}
