package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels.
const (
	OutcomeSuccess    = "success"
	OutcomeIncomplete = "incomplete"
	OutcomeInFlight   = "in_flight"
	OutcomeFailed     = "failed"
	OutcomeInUse      = "in_use"
	OutcomeAvailable  = "available"
	OutcomeMissing    = "missing"
	OutcomeDiscarded  = "discarded"
)

// Metrics holds the kiosk's Prometheus collectors. A nil *Metrics records nothing.
type Metrics struct {
	Submissions      *prometheus.CounterVec
	Checks           *prometheus.CounterVec
	UpstreamDuration *prometheus.HistogramVec
	ActiveSessions   prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Submissions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kiosk_submissions_total",
			Help: "Attendance submissions by outcome",
		}, []string{"outcome"}),
		Checks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kiosk_number_card_checks_total",
			Help: "Number card duplicate checks by outcome",
		}, []string{"outcome"}),
		UpstreamDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kiosk_upstream_request_duration_seconds",
			Help:    "Latency of calls to the attendance service",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "kiosk_active_sessions",
			Help: "Open form sessions",
		}),
	}
}

func (m *Metrics) Submission(outcome string) {
	if m == nil {
		return
	}
	m.Submissions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Check(outcome string) {
	if m == nil {
		return
	}
	m.Checks.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Upstream(operation string, d time.Duration) {
	if m == nil {
		return
	}
	m.UpstreamDuration.WithLabelValues(operation).Observe(d.Seconds())
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.ActiveSessions.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
}
