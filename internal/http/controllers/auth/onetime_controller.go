package auth

import (
	"crypto/subtle"
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

// botKeyHeader autentica al backend del bot para mintear tokens sin
// pasar por una sesión de staff.
const botKeyHeader = "X-Bot-Api-Key"

// OneTimeController handles minting and redemption of one-time login
// tokens. Mint requires a staff session or the bot API key; redeem is
// public (rate limited upstream).
type OneTimeController struct {
	service     svc.OneTimeService
	resolver    *session.Resolver
	cookie      session.CookiePolicy
	allowBearer bool
	botAPIKey   string
}

// NewOneTimeController creates a new one-time token controller.
func NewOneTimeController(service svc.OneTimeService, resolver *session.Resolver, cookie session.CookiePolicy, allowBearer bool, botAPIKey string) *OneTimeController {
	return &OneTimeController{
		service:     service,
		resolver:    resolver,
		cookie:      cookie,
		allowBearer: allowBearer,
		botAPIKey:   botAPIKey,
	}
}

// Mint issues a single-use login token for the given identity.
// POST /auth/onetime
func (c *OneTimeController) Mint(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("OneTimeController.Mint"))

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		httperrors.WriteError(w, httperrors.ErrMethodNotAllowed)
		return
	}

	if !c.mintAuthorized(r) {
		httperrors.WriteError(w, httperrors.ErrAuthRequired)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req dto.OneTimeMintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("invalid JSON body"))
		return
	}
	if req.IdentityID == "" {
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("identity_id is required"))
		return
	}

	result, err := c.service.Mint(ctx, req.IdentityID)
	if err != nil {
		c.handleMintError(w, err, log)
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

// Redeem exchanges a one-time token for a session. Exactly one
// redemption succeeds per token; everything else gets the same 401.
// POST /auth/onetime/redeem
func (c *OneTimeController) Redeem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("OneTimeController.Redeem"))

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		httperrors.WriteError(w, httperrors.ErrMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req dto.OneTimeRedeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("invalid JSON body"))
		return
	}
	if req.Token == "" {
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("token is required"))
		return
	}

	result, err := c.service.Redeem(ctx, req.Token)
	if err != nil {
		switch {
		case errors.Is(err, svc.ErrTokenSpent):
			// indistinguible: gastado, vencido o nunca existió
			httperrors.WriteError(w, httperrors.ErrAuthRequired)
		default:
			log.Error("unexpected redeem error", logger.Err(err))
			httperrors.WriteError(w, httperrors.ErrInternalServerError)
		}
		return
	}

	ttl := result.ExpiresAt.Sub(timeNow())
	http.SetCookie(w, c.cookie.Build(result.Token, ttl))

	resp := *result
	if !c.allowBearer {
		resp.Token = ""
	}
	writeJSON(w, http.StatusOK, resp)
}

// mintAuthorized acepta una sesión staff o el API key del bot.
func (c *OneTimeController) mintAuthorized(r *http.Request) bool {
	if c.botAPIKey != "" {
		key := r.Header.Get(botKeyHeader)
		if key != "" && subtle.ConstantTimeCompare([]byte(key), []byte(c.botAPIKey)) == 1 {
			return true
		}
	}
	sess := c.resolver.Resolve(r)
	return sess != nil && sess.IsStaff
}

func (c *OneTimeController) handleMintError(w http.ResponseWriter, err error, log *zap.Logger) {
	switch {
	case errors.Is(err, svc.ErrUnknownIdentity):
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("unknown identity"))
	default:
		log.Error("unexpected mint error", logger.Err(err))
		httperrors.WriteError(w, httperrors.ErrInternalServerError)
	}
}
