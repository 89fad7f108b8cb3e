package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes engine and HTTP instrumentation via Prometheus.
type Metrics struct {
	HTTPRequests       *prometheus.CounterVec
	HTTPDuration       *prometheus.HistogramVec
	DecisionsTaken     *prometheus.CounterVec
	AnalysisDuration   prometheus.Histogram
	AnalysisFailures   prometheus.Counter
	FollowUpsScheduled prometheus.Counter
	FollowUpsFired     *prometheus.CounterVec
	PendingFollowUps   prometheus.Gauge
}

// NewMetrics registers and returns the metric set.
func NewMetrics() *Metrics {
	return &Metrics{
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests by route, method and status",
		}, []string{"route", "method", "status"}),
		HTTPDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
		DecisionsTaken: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "agent_decisions_total",
			Help: "Autonomous decisions taken by decision value",
		}, []string{"decision"}),
		AnalysisDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "agent_analysis_duration_seconds",
			Help:    "Time taken by reasoning-service calls",
			Buckets: prometheus.DefBuckets,
		}),
		AnalysisFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "agent_analysis_failures_total",
			Help: "Reasoning-service calls that surfaced AnalysisUnavailable",
		}),
		FollowUpsScheduled: promauto.NewCounter(prometheus.CounterOpts{
			Name: "agent_followups_scheduled_total",
			Help: "Follow-up tasks written to the scheduler backend",
		}),
		FollowUpsFired: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "agent_followups_fired_total",
			Help: "Follow-up tasks fired by confirmation outcome",
		}, []string{"outcome"}),
		PendingFollowUps: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "agent_followups_pending",
			Help: "Follow-up tasks currently pending in the scheduler",
		}),
	}
}

// ObserveRequest records one completed HTTP request.
func (m *Metrics) ObserveRequest(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(route, method).Observe(duration.Seconds())
}

// ObserveDecision records one applied autonomous decision.
func (m *Metrics) ObserveDecision(decision string) {
	if m == nil {
		return
	}
	m.DecisionsTaken.WithLabelValues(decision).Inc()
}

// ObserveAnalysis records one reasoning-service call.
func (m *Metrics) ObserveAnalysis(duration time.Duration, failed bool) {
	if m == nil {
		return
	}
	m.AnalysisDuration.Observe(duration.Seconds())
	if failed {
		m.AnalysisFailures.Inc()
	}
}
