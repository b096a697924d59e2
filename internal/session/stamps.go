package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"

	"github.com/dropDatabas3/telepass/internal/cache"
	"github.com/dropDatabas3/telepass/internal/domain/repository"
	"github.com/dropDatabas3/telepass/internal/observability/logger"
)

// StampRegistry es el dueño del marcador de revocación por identidad.
// Rotarlo es el único mecanismo de "logout everywhere": todo token emitido
// antes de la rotación queda inválido en el próximo resolve.
//
// El stamp vive en la fila de identity (escritura single-row atómica,
// durable y visible a todos los workers); el registry además invalida el
// tag de cache para que la revocación sea inmediata y no espere el TTL.
type StampRegistry struct {
	repo  repository.IdentityRepository
	cache cache.Cache
}

func NewStampRegistry(repo repository.IdentityRepository, c cache.Cache) *StampRegistry {
	return &StampRegistry{repo: repo, cache: c}
}

// NewStamp genera un marcador opaco aleatorio (base64url sin padding).
func NewStamp() string {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		// rand.Read no falla en plataformas soportadas
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

// Rotate sobreescribe el stamp de forma atómica y devuelve el nuevo valor.
func (s *StampRegistry) Rotate(ctx context.Context, identityID string) (string, error) {
	stamp := NewStamp()
	if err := s.repo.SetSecurityStamp(ctx, identityID, stamp); err != nil {
		return "", err
	}
	s.invalidate(ctx, identityID)
	logger.From(ctx).Info("security stamp rotated", logger.IdentityID(identityID))
	return stamp, nil
}

// Ensure asigna un stamp fresco sólo si la identidad no tiene ninguno.
// Nota: dos logins concurrentes del mismo primer login pueden pisarse el
// stamp inicial; el último escrito gana y el otro token muere en el primer
// resolve, que es el comportamiento de revocación normal.
func (s *StampRegistry) Ensure(ctx context.Context, identityID string) (string, error) {
	ident, err := s.repo.GetByID(ctx, identityID)
	if err != nil {
		return "", err
	}
	if ident.SecurityStamp != "" {
		return ident.SecurityStamp, nil
	}
	stamp := NewStamp()
	if err := s.repo.SetSecurityStamp(ctx, identityID, stamp); err != nil {
		return "", err
	}
	s.invalidate(ctx, identityID)
	return stamp, nil
}

// Current devuelve el stamp vigente de la identidad.
func (s *StampRegistry) Current(ctx context.Context, identityID string) (string, error) {
	ident, err := s.repo.GetByID(ctx, identityID)
	if err != nil {
		return "", err
	}
	return ident.SecurityStamp, nil
}

func (s *StampRegistry) invalidate(ctx context.Context, identityID string) {
	if s.cache != nil {
		s.cache.InvalidateTag(ctx, identityTag(identityID))
	}
}
