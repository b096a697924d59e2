// Package auth contiene los controllers de autenticación.
package auth

import (
	"encoding/json"
	"net/http"
	"time"

	svc "github.com/dropDatabas3/telepass/internal/http/services/auth"
	"github.com/dropDatabas3/telepass/internal/session"
)

// Controllers agrupa todos los controllers del dominio auth.
type Controllers struct {
	Handshake *HandshakeController
	Session   *SessionController
	OneTime   *OneTimeController
}

// Options ajusta el comportamiento de los controllers.
type Options struct {
	Cookie      session.CookiePolicy
	Resolver    *session.Resolver
	AllowBearer bool
	// BotAPIKey habilita el minteo de one-time tokens vía header
	// X-Bot-Api-Key (backend del bot). Vacío = sólo sesión staff.
	BotAPIKey string
}

// NewControllers crea el agregador de controllers auth.
func NewControllers(s svc.Services, opts Options) *Controllers {
	return &Controllers{
		Handshake: NewHandshakeController(s.Handshake, opts.Cookie, opts.AllowBearer),
		Session:   NewSessionController(s.Revoke, opts.Resolver, opts.Cookie),
		OneTime:   NewOneTimeController(s.OneTime, opts.Resolver, opts.Cookie, opts.AllowBearer, opts.BotAPIKey),
	}
}

// writeJSON serializa la respuesta con no-store: nada de lo que sale de
// /auth/* debe quedar en caches intermedios.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// timeNow existe para poder congelar el reloj en tests.
var timeNow = time.Now
