// Package metrics holds the Prometheus counters for credential issuance,
// rotation and verification, and the HTTP server that exposes them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	KindAccess  = "access"
	KindRefresh = "refresh"

	ResultOK       = "ok"
	ResultRejected = "rejected"
	ResultError    = "error"
)

// Recorder counts credential events. A nil *Recorder is valid and records
// nothing.
type Recorder struct {
	issued        *prometheus.CounterVec
	rotations     *prometheus.CounterVec
	verifications *prometheus.CounterVec
}

// NewRecorder registers the counters with reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		issued: f.NewCounterVec(prometheus.CounterOpts{
			Name: "coyn_credentials_issued_total",
			Help: "Credentials issued, by kind.",
		}, []string{"kind"}),
		rotations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "coyn_rotations_total",
			Help: "Refresh rotations, by result.",
		}, []string{"result"}),
		verifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "coyn_access_verifications_total",
			Help: "Access credential verifications, by result or rejection reason.",
		}, []string{"result"}),
	}
}

func (r *Recorder) Issued(kind string) {
	if r == nil {
		return
	}
	r.issued.WithLabelValues(kind).Inc()
}

func (r *Recorder) Rotation(result string) {
	if r == nil {
		return
	}
	r.rotations.WithLabelValues(result).Inc()
}

// Verification records an access check. result is ResultOK or the name of
// the rejection kind.
func (r *Recorder) Verification(result string) {
	if r == nil {
		return
	}
	r.verifications.WithLabelValues(result).Inc()
}
