package auth

import (
	"context"
	"fmt"

	"github.com/dropDatabas3/telepass/internal/metrics"
	"github.com/dropDatabas3/telepass/internal/observability/logger"
	"github.com/dropDatabas3/telepass/internal/session"
)

// RevokeService kills every outstanding session of an identity by
// rotating its security stamp. Tokens keep their signature and expiry;
// they die because the stamp they embed no longer matches.
type RevokeService interface {
	RevokeAll(ctx context.Context, identityID string) error
}

// RevokeDeps contains dependencies for the revoke service.
type RevokeDeps struct {
	Stamps *session.StampRegistry
}

type revokeService struct {
	deps RevokeDeps
}

// NewRevokeService creates a new RevokeService.
func NewRevokeService(deps RevokeDeps) RevokeService {
	return &revokeService{deps: deps}
}

func (s *revokeService) RevokeAll(ctx context.Context, identityID string) error {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("auth.revoke"),
		logger.Op("RevokeAll"),
	)

	// Rotate también invalida el tag de cache: la revocación es inmediata
	if _, err := s.deps.Stamps.Rotate(ctx, identityID); err != nil {
		log.Error("stamp rotation failed", logger.Err(err), logger.IdentityID(identityID))
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	metrics.StampRotationsTotal.Inc()
	log.Info("all sessions revoked", logger.IdentityID(identityID))
	return nil
}
