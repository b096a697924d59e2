// Package health contiene el controller para health checks.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	httperrors "github.com/dropDatabas3/telepass/internal/http/errors"
	"github.com/dropDatabas3/telepass/internal/observability/logger"
)

// Pinger es lo mínimo que un backend debe exponer para el readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

type componentStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type response struct {
	Status     string                     `json:"status"`
	Components map[string]componentStatus `json:"components,omitempty"`
}

// HealthController maneja /healthz y /readyz.
type HealthController struct {
	components map[string]Pinger
}

// NewHealthController crea un controller con los backends a chequear.
// Un componente nil se ignora (p.ej. cache en memoria).
func NewHealthController(components map[string]Pinger) *HealthController {
	filtered := make(map[string]Pinger, len(components))
	for name, p := range components {
		if p != nil {
			filtered[name] = p
		}
	}
	return &HealthController{components: filtered}
}

// Healthz es liveness puro: el proceso responde.
// GET /healthz
func (c *HealthController) Healthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		httperrors.WriteError(w, httperrors.ErrMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, response{Status: "ok"})
}

// Readyz chequea los backends con timeout corto.
// GET /readyz
func (c *HealthController) Readyz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		httperrors.WriteError(w, httperrors.ErrMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := response{Status: "ready", Components: map[string]componentStatus{}}
	status := http.StatusOK
	for name, p := range c.components {
		if err := p.Ping(ctx); err != nil {
			resp.Components[name] = componentStatus{Status: "unavailable", Error: err.Error()}
			resp.Status = "unavailable"
			status = http.StatusServiceUnavailable
			logger.From(r.Context()).Warn("readiness check failed",
				logger.Component(name), logger.Err(err))
			continue
		}
		resp.Components[name] = componentStatus{Status: "ok"}
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v response) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
