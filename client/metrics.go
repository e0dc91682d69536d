package client

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Refresh outcomes as reported by planclient_refresh_total
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected" // refresh endpoint answered 401 or 403
	OutcomeFailed   = "failed"   // transport error, other status, or malformed body
)

// Metrics holds the client's Prometheus collectors. A nil *Metrics records nothing.
type Metrics struct {
	requests       *prometheus.CounterVec
	refreshes      *prometheus.CounterVec
	sessionCleared *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg creates unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "planclient_requests_total",
			Help: "Outbound API requests by method and response status (0 for transport errors).",
		}, []string{"method", "status"}),
		refreshes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "planclient_refresh_total",
			Help: "Access token refresh calls by outcome.",
		}, []string{"outcome"}),
		sessionCleared: f.NewCounterVec(prometheus.CounterOpts{
			Name: "planclient_session_cleared_total",
			Help: "Sessions dropped because authentication could not be recovered.",
		}, []string{"reason"}),
	}
}

func (m *Metrics) observeRequest(method string, status int) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, strconv.Itoa(status)).Inc()
}

func (m *Metrics) observeRefresh(outcome string) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observeSessionCleared(reason string) {
	if m == nil {
		return
	}
	m.sessionCleared.WithLabelValues(reason).Inc()
}
