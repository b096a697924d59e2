package middlewares

import (
	"net/http"

	httperrors "github.com/dropDatabas3/telepass/internal/http/errors"
	"github.com/dropDatabas3/telepass/internal/observability/logger"
	"go.uber.org/zap"
)

// WithRecover captura pánicos del pipeline y responde 500 en vez de
// tumbar el worker.
func WithRecover() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.From(r.Context()).Error("panic recovered",
						zap.Any("panic", rec),
						logger.Path(r.URL.Path),
					)
					httperrors.WriteError(w, httperrors.ErrInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
