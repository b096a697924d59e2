package middlewares

import (
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/dropDatabas3/telepass/internal/domain"
	httperrors "github.com/dropDatabas3/telepass/internal/http/errors"
	"github.com/dropDatabas3/telepass/internal/metrics"
	"github.com/dropDatabas3/telepass/internal/observability/logger"
	"github.com/dropDatabas3/telepass/internal/session"
)

// Reason codes que viajan al login surface. Deliberadamente gruesos:
// alcanzan para el mensaje de UX, no para reconstruir qué chequeo falló.
const (
	ReasonAuthRequired   = "auth_required"
	ReasonSessionInvalid = "session_invalid"
)

// Zone asocia un prefijo de ruta con el rol mínimo que exige.
type Zone struct {
	Prefix string
	Role   domain.Role
}

// GatekeeperConfig arma el middleware de borde.
type GatekeeperConfig struct {
	Resolver *session.Resolver
	Cookie   session.CookiePolicy
	// TTLForRole determina el max-age del refresh de cookie (tier por rol).
	TTLForRole func(domain.Role) time.Duration

	LoginPath string
	// PublicPrefixes se suma a la allow-list built-in.
	PublicPrefixes []string
	// Zones protegidas; se evalúa el prefijo más largo que matchee.
	Zones []Zone
	// Maintenance: si retorna true, toda zona protegida responde 503.
	Maintenance func() bool
}

// Gatekeeper es el estado-máquina de borde: bypass | unauthenticated |
// invalid | authorized. Estados terminales: forwarded o redirected; no hay
// retry loop, cada request se resuelve de forma independiente.
type Gatekeeper struct {
	cfg    GatekeeperConfig
	public []string
	zones  []Zone
}

func NewGatekeeper(cfg GatekeeperConfig) *Gatekeeper {
	public := []string{
		"/auth/",
		"/healthz",
		"/readyz",
		"/metrics",
		"/static/",
	}
	if cfg.LoginPath != "" {
		public = append(public, cfg.LoginPath)
	}
	public = append(public, cfg.PublicPrefixes...)

	zones := append([]Zone(nil), cfg.Zones...)
	// prefijo más largo primero: /admin/billing gana sobre /admin
	sort.Slice(zones, func(a, b int) bool { return len(zones[a].Prefix) > len(zones[b].Prefix) })

	return &Gatekeeper{cfg: cfg, public: public, zones: zones}
}

// Wrap aplica el gatekeeper delante de next (la aplicación downstream).
func (g *Gatekeeper) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Los headers de identidad sólo pueden originarse acá: borrar
		// cualquier valor que venga del cliente antes de decidir nada.
		r.Header.Del(session.HeaderIdentity)
		r.Header.Del(session.HeaderRole)
		r.Header.Del(session.HeaderStamp)

		if g.isPublic(r.URL.Path) {
			metrics.GatekeeperDecisionsTotal.WithLabelValues("bypass").Inc()
			next.ServeHTTP(w, r)
			return
		}

		if g.cfg.Maintenance != nil && g.cfg.Maintenance() {
			metrics.GatekeeperDecisionsTotal.WithLabelValues("maintenance").Inc()
			httperrors.WriteError(w, httperrors.ErrMaintenance)
			return
		}

		sess := g.cfg.Resolver.Resolve(r)
		if sess == nil {
			if g.hasCredential(r) {
				// credencial presente pero muerta: limpiar cookie y avisar
				// con un reason distinto (mejor mensaje de login, sin
				// filtrar por qué murió)
				metrics.GatekeeperDecisionsTotal.WithLabelValues("redirect_invalid").Inc()
				metrics.ResolutionsTotal.WithLabelValues("none", "invalid").Inc()
				http.SetCookie(w, g.cfg.Cookie.Clear())
				g.redirectLogin(w, r, ReasonSessionInvalid)
				return
			}
			metrics.GatekeeperDecisionsTotal.WithLabelValues("redirect_auth").Inc()
			metrics.ResolutionsTotal.WithLabelValues("none", "missing").Inc()
			g.redirectLogin(w, r, ReasonAuthRequired)
			return
		}
		metrics.ResolutionsTotal.WithLabelValues(sess.Transport, "ok").Inc()

		if min, ok := g.zoneRole(r.URL.Path); ok && !sess.Role.AtLeast(min) {
			// 403, nunca redirect: un redirect con sesión válida generaría
			// un loop contra el login
			metrics.GatekeeperDecisionsTotal.WithLabelValues("forbidden").Inc()
			logger.From(r.Context()).Info("zone access denied",
				logger.IdentityID(sess.IdentityID),
				logger.Role(string(sess.Role)),
				logger.Path(r.URL.Path),
			)
			httperrors.WriteError(w, httperrors.ErrForbidden)
			return
		}

		// Autorizado: inyectar identidad para la aplicación, refrescar la
		// cookie con el max-age del tier del rol y forwardear.
		r.Header.Set(session.HeaderIdentity, sess.IdentityID)
		r.Header.Set(session.HeaderRole, string(sess.Role))
		r.Header.Set(session.HeaderStamp, sess.Stamp)

		if sess.Transport == session.TransportCookie {
			if ck, err := r.Cookie(g.cfg.Cookie.Name); err == nil {
				ttl := 24 * time.Hour
				if g.cfg.TTLForRole != nil {
					ttl = g.cfg.TTLForRole(sess.Role)
				}
				http.SetCookie(w, g.cfg.Cookie.Build(ck.Value, ttl))
			}
		}

		metrics.GatekeeperDecisionsTotal.WithLabelValues("forwarded").Inc()
		next.ServeHTTP(w, r.WithContext(session.WithTrustedHeaders(r.Context())))
	})
}

func (g *Gatekeeper) isPublic(path string) bool {
	for _, p := range g.public {
		if strings.HasSuffix(p, "/") {
			if strings.HasPrefix(path, p) {
				return true
			}
			continue
		}
		if path == p {
			return true
		}
	}
	return false
}

// hasCredential detecta si el request traía algún transporte de sesión,
// para distinguir "nunca logueado" de "sesión muerta".
func (g *Gatekeeper) hasCredential(r *http.Request) bool {
	if ck, err := r.Cookie(g.cfg.Cookie.Name); err == nil && strings.TrimSpace(ck.Value) != "" {
		return true
	}
	ah := strings.ToLower(strings.TrimSpace(r.Header.Get("Authorization")))
	return strings.HasPrefix(ah, "bearer ")
}

func (g *Gatekeeper) zoneRole(path string) (domain.Role, bool) {
	for _, z := range g.zones {
		if strings.HasPrefix(path, z.Prefix) {
			return z.Role, true
		}
	}
	return "", false
}

// redirectLogin manda al login surface con el destino original y el reason
// code: contexto suficiente para reintentar la acción después de
// re-autenticarse.
func (g *Gatekeeper) redirectLogin(w http.ResponseWriter, r *http.Request, reason string) {
	q := url.Values{}
	q.Set("return_to", r.URL.RequestURI())
	q.Set("reason", reason)
	http.Redirect(w, r, g.cfg.LoginPath+"?"+q.Encode(), http.StatusFound)
}
