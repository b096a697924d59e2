// Package router arma el árbol de rutas del servidor.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	authctrl "github.com/dropDatabas3/telepass/internal/http/controllers/auth"
	healthctrl "github.com/dropDatabas3/telepass/internal/http/controllers/health"
	httperrors "github.com/dropDatabas3/telepass/internal/http/errors"
	mw "github.com/dropDatabas3/telepass/internal/http/middlewares"
	"github.com/dropDatabas3/telepass/internal/rate"
)

// Deps contiene todas las dependencias del router.
type Deps struct {
	Auth   *authctrl.Controllers
	Health *healthctrl.HealthController

	// Gatekeeper protege todo lo que no sea /auth, health o metrics.
	Gatekeeper *mw.Gatekeeper

	// Downstream es la aplicación detrás del gatekeeper (dashboard,
	// reverse proxy, lo que sea). nil = 404 para todo lo protegido.
	Downstream http.Handler

	// HandshakeLimiter y RedeemLimiter protegen los dos endpoints que
	// aceptan credenciales sin sesión previa. nil = sin límite.
	HandshakeLimiter rate.Limiter
	RedeemLimiter    rate.Limiter
}

// New construye el handler raíz: middlewares base, rutas de auth,
// health/metrics, y el gatekeeper envolviendo al resto.
func New(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Route("/auth", func(r chi.Router) {
		c := deps.Auth
		r.With(mw.WithRateLimit(deps.HandshakeLimiter)).
			Post("/handshake", c.Handshake.Handshake)
		r.Post("/logout", c.Session.Logout)
		r.Post("/logout-everywhere", c.Session.LogoutEverywhere)
		r.Get("/whoami", c.Session.WhoAmI)
		r.Post("/onetime", c.OneTime.Mint)
		r.With(mw.WithRateLimit(deps.RedeemLimiter)).
			Post("/onetime/redeem", c.OneTime.Redeem)
	})

	r.Get("/healthz", deps.Health.Healthz)
	r.Get("/readyz", deps.Health.Readyz)
	r.Handle("/metrics", promhttp.Handler())

	downstream := deps.Downstream
	if downstream == nil {
		downstream = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			httperrors.WriteError(w, httperrors.New(http.StatusNotFound, "not_found", "no downstream configured"))
		})
	}
	protected := deps.Gatekeeper.Wrap(downstream)
	r.NotFound(protected.ServeHTTP)
	r.MethodNotAllowed(protected.ServeHTTP)

	// middlewares base por fuera de todo, gatekeeper incluido
	return mw.Chain(r,
		mw.WithRequestID(),
		mw.WithLogging(),
		mw.WithRecover(),
	)
}
