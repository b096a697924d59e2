package auth

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/dropDatabas3/telepass/internal/domain"
	"github.com/dropDatabas3/telepass/internal/domain/repository"
	dto "github.com/dropDatabas3/telepass/internal/http/dto/auth"
	"github.com/dropDatabas3/telepass/internal/metrics"
	"github.com/dropDatabas3/telepass/internal/observability/logger"
	"github.com/dropDatabas3/telepass/internal/session"
	"github.com/dropDatabas3/telepass/internal/telegram"
)

// HandshakeService verifies Telegram init data and opens a session.
type HandshakeService interface {
	Handshake(ctx context.Context, initData, merchantHint string) (*dto.HandshakeResponse, error)
}

// HandshakeDeps contains dependencies for the handshake service.
type HandshakeDeps struct {
	Verifier   *telegram.Verifier
	Identities repository.IdentityRepository
	Issuer     *session.Issuer
}

type handshakeService struct {
	deps HandshakeDeps
}

// NewHandshakeService creates a new HandshakeService.
func NewHandshakeService(deps HandshakeDeps) HandshakeService {
	return &handshakeService{deps: deps}
}

// Handshake errors. The controller maps every rejection to the same
// 401 envelope; the distinction only feeds logs and metrics.
var (
	ErrHandshakeRejected = fmt.Errorf("handshake rejected")
	ErrStoreUnavailable  = fmt.Errorf("identity store unavailable")
)

func (s *handshakeService) Handshake(ctx context.Context, initData, merchantHint string) (*dto.HandshakeResponse, error) {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("auth.handshake"),
		logger.Op("Handshake"),
	)

	data, err := s.deps.Verifier.Verify(initData)
	if err != nil {
		reason := "malformed"
		switch {
		case errors.Is(err, telegram.ErrStale):
			reason = "stale"
		case errors.Is(err, telegram.ErrSignature):
			reason = "signature"
		}
		metrics.HandshakesTotal.WithLabelValues(reason).Inc()
		// never log the payload itself, only the reason
		log.Warn("init data rejected", logger.Reason(reason))
		return nil, fmt.Errorf("%w: %s", ErrHandshakeRejected, reason)
	}

	user := data.User
	ident, created, err := s.deps.Identities.Upsert(ctx, repository.UpsertIdentityInput{
		TelegramID:  user.ID,
		DisplayName: user.DisplayName(),
		Username:    user.Username,
	})
	if err != nil {
		metrics.HandshakesTotal.WithLabelValues("store_error").Inc()
		log.Error("identity upsert failed", logger.Err(err))
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	token, expiresAt, err := s.deps.Issuer.Issue(ctx, ident)
	if err != nil {
		metrics.HandshakesTotal.WithLabelValues("store_error").Inc()
		log.Error("session issue failed", logger.Err(err), logger.IdentityID(ident.ID))
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	merchantID := s.merchantFor(ctx, ident, merchantHint)

	metrics.HandshakesTotal.WithLabelValues("ok").Inc()
	log.Info("handshake accepted",
		logger.IdentityID(ident.ID),
		logger.TelegramID(user.ID),
		logger.Role(string(ident.Role)),
		zap.Bool("created", created),
	)

	return &dto.HandshakeResponse{
		Identity:  Summarize(ident, merchantID),
		Token:     token,
		ExpiresAt: expiresAt,
	}, nil
}

// merchantFor resolves the merchant scope the same way the resolver does:
// explicit hint first, own merchant next, oldest team membership last.
// Best effort; scope failures never block a login.
func (s *handshakeService) merchantFor(ctx context.Context, ident *domain.Identity, hint string) string {
	if hint != "" {
		return hint
	}
	if ident.MerchantID != "" {
		return ident.MerchantID
	}
	mid, err := s.deps.Identities.FirstTeamMerchant(ctx, ident.ID)
	if err != nil {
		return ""
	}
	return mid
}

// Summarize builds the public view of an identity.
func Summarize(ident *domain.Identity, merchantID string) dto.IdentitySummary {
	return dto.IdentitySummary{
		ID:          ident.ID,
		TelegramID:  ident.TelegramID,
		DisplayName: ident.DisplayName,
		Username:    ident.Username,
		Role:        string(ident.Role),
		MerchantID:  merchantID,
		Staff:       ident.Role.IsStaff(),
	}
}
