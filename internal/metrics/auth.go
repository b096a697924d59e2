// Package metrics expone los contadores Prometheus del subsistema de
// identidad y sesión.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HandshakesTotal cuenta verificaciones de handshake por resultado:
	// ok | malformed | stale | signature | error. Mantener "stale" separado
	// de "signature" alimenta el monitoreo anti-replay.
	HandshakesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "telepass_handshakes_total",
		Help: "Resultados de verificación de handshake",
	}, []string{"result"})

	// ResolutionsTotal cuenta resoluciones de sesión por transporte y resultado.
	ResolutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "telepass_session_resolutions_total",
		Help: "Resoluciones de sesión por transporte (header|cookie|bearer|none) y resultado",
	}, []string{"transport", "result"})

	// GatekeeperDecisionsTotal cuenta decisiones del gatekeeper:
	// bypass | forwarded | redirect_auth | redirect_invalid | forbidden | maintenance.
	GatekeeperDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "telepass_gatekeeper_decisions_total",
		Help: "Decisiones del edge gatekeeper",
	}, []string{"decision"})

	// StampRotationsTotal cuenta rotaciones de security stamp (logout-everywhere).
	StampRotationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "telepass_stamp_rotations_total",
		Help: "Rotaciones del marcador de revocación",
	})

	// HTTPRequestDuration observa la latencia por método y path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "telepass_http_request_duration_seconds",
		Help:    "Latencia de los requests HTTP",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})
)
