package auth

import (
	"net/http"

	dto "github.com/dropDatabas3/telepass/internal/http/dto/auth"
	httperrors "github.com/dropDatabas3/telepass/internal/http/errors"
	svc "github.com/dropDatabas3/telepass/internal/http/services/auth"
	"github.com/dropDatabas3/telepass/internal/observability/logger"
	"github.com/dropDatabas3/telepass/internal/session"
)

// SessionController handles whoami/logout over an already-open session.
// These routes sit on the gatekeeper allow-list, so the controller
// resolves the credential itself instead of reading injected headers.
type SessionController struct {
	revoke   svc.RevokeService
	resolver *session.Resolver
	cookie   session.CookiePolicy
}

// NewSessionController creates a new session controller.
func NewSessionController(revoke svc.RevokeService, resolver *session.Resolver, cookie session.CookiePolicy) *SessionController {
	return &SessionController{revoke: revoke, resolver: resolver, cookie: cookie}
}

// WhoAmI returns the identity behind the presented credential.
// GET /auth/whoami
func (c *SessionController) WhoAmI(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		httperrors.WriteError(w, httperrors.ErrMethodNotAllowed)
		return
	}

	sess := c.resolver.Resolve(r)
	if sess == nil {
		httperrors.WriteError(w, httperrors.ErrAuthRequired)
		return
	}

	writeJSON(w, http.StatusOK, dto.WhoAmIResponse{
		Identity: dto.IdentitySummary{
			ID:          sess.IdentityID,
			TelegramID:  sess.TelegramID,
			DisplayName: sess.DisplayName,
			Role:        string(sess.Role),
			MerchantID:  sess.MerchantID,
			Staff:       sess.IsStaff,
		},
		Transport: sess.Transport,
	})
}

// Logout drops the session on this device only: the cookie dies, the
// token stays valid until expiry. POST /auth/logout
func (c *SessionController) Logout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		httperrors.WriteError(w, httperrors.ErrMethodNotAllowed)
		return
	}

	http.SetCookie(w, c.cookie.Clear())
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusNoContent)
}

// LogoutEverywhere rotates the security stamp, killing every session of
// the identity across all devices and transports.
// POST /auth/logout-everywhere
func (c *SessionController) LogoutEverywhere(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("SessionController.LogoutEverywhere"))

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		httperrors.WriteError(w, httperrors.ErrMethodNotAllowed)
		return
	}

	sess := c.resolver.Resolve(r)
	if sess == nil {
		httperrors.WriteError(w, httperrors.ErrAuthRequired)
		return
	}

	if err := c.revoke.RevokeAll(ctx, sess.IdentityID); err != nil {
		log.Error("revoke failed", logger.Err(err))
		httperrors.WriteError(w, httperrors.ErrInternalServerError)
		return
	}

	http.SetCookie(w, c.cookie.Clear())
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusNoContent)
}
