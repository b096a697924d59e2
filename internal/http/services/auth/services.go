// Package auth contiene los services de autenticación.
package auth

import (
	"time"

	"github.com/dropDatabas3/telepass/internal/domain/repository"
	"github.com/dropDatabas3/telepass/internal/session"
	"github.com/dropDatabas3/telepass/internal/telegram"
)

// Deps contiene las dependencias para crear los services auth.
type Deps struct {
	Verifier   *telegram.Verifier
	Identities repository.IdentityRepository
	Tokens     repository.LoginTokenRepository
	Issuer     *session.Issuer
	Stamps     *session.StampRegistry
	OneTimeTTL time.Duration
}

// Services agrupa todos los services del dominio auth.
type Services struct {
	Handshake HandshakeService
	OneTime   OneTimeService
	Revoke    RevokeService
}

// NewServices crea el agregador de services auth.
func NewServices(d Deps) Services {
	return Services{
		Handshake: NewHandshakeService(HandshakeDeps{
			Verifier:   d.Verifier,
			Identities: d.Identities,
			Issuer:     d.Issuer,
		}),
		OneTime: NewOneTimeService(OneTimeDeps{
			Identities: d.Identities,
			Tokens:     d.Tokens,
			Issuer:     d.Issuer,
			TokenTTL:   d.OneTimeTTL,
		}),
		Revoke: NewRevokeService(RevokeDeps{Stamps: d.Stamps}),
	}
}
