package session

import "github.com/prometheus/client_golang/prometheus"

// Metrics tracks session lifecycle counters.
type Metrics struct {
	SessionsIssued prometheus.Counter
	Rotations      prometheus.Counter
	ReuseDetected  prometheus.Counter
	Revocations    *prometheus.CounterVec
}

// NewMetrics builds and registers session metrics on reg.
// A nil registerer yields unregistered (but usable) collectors, which keeps
// tests free of global registry state.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SessionsIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "inkwell",
			Subsystem: "auth",
			Name:      "sessions_issued_total",
			Help:      "Refresh sessions created by login.",
		}),
		Rotations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "inkwell",
			Subsystem: "auth",
			Name:      "refresh_rotations_total",
			Help:      "Successful refresh token rotations.",
		}),
		ReuseDetected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "inkwell",
			Subsystem: "auth",
			Name:      "refresh_reuse_detected_total",
			Help:      "Refresh tokens presented after rotation or revocation.",
		}),
		Revocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "inkwell",
			Subsystem: "auth",
			Name:      "sessions_revoked_total",
			Help:      "Session revocations by reason.",
		}, []string{"reason"}),
	}

	if reg != nil {
		reg.MustRegister(m.SessionsIssued, m.Rotations, m.ReuseDetected, m.Revocations)
	}
	return m
}

const (
	revokeReasonLogout  = "logout"
	revokeReasonExpired = "expired"
	revokeReasonReuse   = "reuse"
	revokeReasonManual  = "manual"
)
