package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	dto "github.com/dropDatabas3/telepass/internal/http/dto/auth"
	httperrors "github.com/dropDatabas3/telepass/internal/http/errors"
	svc "github.com/dropDatabas3/telepass/internal/http/services/auth"
	"github.com/dropDatabas3/telepass/internal/observability/logger"
	"github.com/dropDatabas3/telepass/internal/session"
	"go.uber.org/zap"
)

// maxBodyBytes limita el tamaño de cuerpo aceptado; el init data de
// Telegram ronda el medio KB, 32KB es margen de sobra.
const maxBodyBytes = 32 << 10

// HandshakeController handles POST /auth/handshake.
type HandshakeController struct {
	service     svc.HandshakeService
	cookie      session.CookiePolicy
	allowBearer bool
}

// NewHandshakeController creates a new handshake controller.
func NewHandshakeController(service svc.HandshakeService, cookie session.CookiePolicy, allowBearer bool) *HandshakeController {
	return &HandshakeController{service: service, cookie: cookie, allowBearer: allowBearer}
}

// Handshake verifies the signed init data and opens a session.
// POST /auth/handshake
func (c *HandshakeController) Handshake(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("HandshakeController.Handshake"))

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		httperrors.WriteError(w, httperrors.ErrMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req dto.HandshakeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("invalid JSON body"))
		return
	}
	if req.InitData == "" {
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("init_data is required"))
		return
	}

	result, err := c.service.Handshake(ctx, req.InitData, req.MerchantID)
	if err != nil {
		c.handleError(w, err, log)
		return
	}

	ttl := result.ExpiresAt.Sub(timeNow())
	http.SetCookie(w, c.cookie.Build(result.Token, ttl))

	resp := *result
	if !c.allowBearer {
		// el token sólo viaja en la cookie
		resp.Token = ""
	}

	writeJSON(w, http.StatusOK, resp)
	log.Debug("handshake response sent", logger.IdentityID(result.Identity.ID))
}

// handleError maps service errors to HTTP responses.
func (c *HandshakeController) handleError(w http.ResponseWriter, err error, log *zap.Logger) {
	switch {
	case errors.Is(err, svc.ErrHandshakeRejected):
		// 401 genérico: la razón concreta queda en logs
		httperrors.WriteError(w, httperrors.ErrAuthRequired)
	default:
		log.Error("unexpected handshake error", logger.Err(err))
		httperrors.WriteError(w, httperrors.ErrInternalServerError)
	}
}
