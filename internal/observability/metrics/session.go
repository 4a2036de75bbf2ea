// Package metrics exposes Prometheus instruments for the session lifecycle.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	domainauth "github.com/target/members-console/internal/domain/auth"
)

const namespace = "members_console"

// Session records session transitions, refresh outcomes and the number of
// live browser sessions. It satisfies session.Recorder and session.ActiveGauge.
type Session struct {
	transitions *prometheus.CounterVec
	refreshes   *prometheus.CounterVec
	active      prometheus.Gauge
}

// NewSession creates the instruments and registers them with reg.
func NewSession(reg prometheus.Registerer) (*Session, error) {
	s := &Session{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "transitions_total",
			Help:      "Session status transitions by source status, target status and event.",
		}, []string{"from", "to", "event"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "refreshes_total",
			Help:      "Expiry-triggered token refreshes by outcome.",
		}, []string{"outcome"}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "active",
			Help:      "Browser sessions currently held in memory.",
		}),
	}
	for _, c := range []prometheus.Collector{s.transitions, s.refreshes, s.active} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Transition counts one applied status change.
func (s *Session) Transition(from, to domainauth.Status, event string) {
	s.transitions.WithLabelValues(string(from), string(to), event).Inc()
}

// Refresh counts one expiry-triggered refresh.
func (s *Session) Refresh(outcome string) {
	s.refreshes.WithLabelValues(outcome).Inc()
}

// Set records the number of live sessions.
func (s *Session) Set(n float64) {
	s.active.Set(n)
}
