// Package metrics exposes Prometheus counters for the check-in protocol.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	checkins      *prometheus.CounterVec
	noncesIssued  prometheus.Counter
	bulkRecords   *prometheus.CounterVec
	rateLimited   *prometheus.CounterVec
	sessionsAdded prometheus.Counter
}

// New registers the counters on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		checkins: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "checkin",
			Name:      "attempts_total",
			Help:      "Check-in attempts by outcome.",
		}, []string{"outcome"}),
		noncesIssued: f.NewCounter(prometheus.CounterOpts{
			Namespace: "checkin",
			Name:      "nonces_issued_total",
			Help:      "Check-in nonces issued.",
		}),
		bulkRecords: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "checkin",
			Name:      "bulk_records_total",
			Help:      "Attendance records written by bulk updates, by status.",
		}, []string{"status"}),
		rateLimited: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "checkin",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter, by action class.",
		}, []string{"action"}),
		sessionsAdded: f.NewCounter(prometheus.CounterOpts{
			Namespace: "checkin",
			Name:      "sessions_created_total",
			Help:      "Attendance sessions created.",
		}),
	}
}

// CheckIn counts one attempt with its outcome code.
func (m *Metrics) CheckIn(outcome string) {
	if m == nil {
		return
	}
	m.checkins.WithLabelValues(outcome).Inc()
}

// NonceIssued counts one issued nonce.
func (m *Metrics) NonceIssued() {
	if m == nil {
		return
	}
	m.noncesIssued.Inc()
}

// BulkWritten counts records upserted by a bulk update.
func (m *Metrics) BulkWritten(status string, n int) {
	if m == nil {
		return
	}
	m.bulkRecords.WithLabelValues(status).Add(float64(n))
}

// RateLimited counts one rejection for action.
func (m *Metrics) RateLimited(action string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(action).Inc()
}

// SessionCreated counts one new session.
func (m *Metrics) SessionCreated() {
	if m == nil {
		return
	}
	m.sessionsAdded.Inc()
}
