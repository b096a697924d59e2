package repository

import (
	"context"
	"time"

	"github.com/dropDatabas3/telepass/internal/domain"
)

// LoginTokenRepository define operaciones sobre one-time login tokens.
type LoginTokenRepository interface {
	// Create persiste un token nuevo para la identidad dada.
	Create(ctx context.Context, token, identityID string, expiresAt time.Time) (*domain.LoginToken, error)

	// Redeem canjea el token y lo marca usado en la misma operación
	// atómica (conditional update): bajo requests concurrentes exactamente
	// uno obtiene el identityID, el resto recibe ErrTokenSpent.
	Redeem(ctx context.Context, token string, now time.Time) (identityID string, err error)
}
