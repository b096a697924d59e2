package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/dropDatabas3/telepass/internal/domain/repository"
	dto "github.com/dropDatabas3/telepass/internal/http/dto/auth"
	"github.com/dropDatabas3/telepass/internal/observability/logger"
	"github.com/dropDatabas3/telepass/internal/session"
)

// OneTimeService mints single-use login tokens and redeems them for
// sessions. Minting is restricted by the controller (staff session or
// bot API key); redemption is public and rate limited.
type OneTimeService interface {
	Mint(ctx context.Context, identityID string) (*dto.OneTimeMintResponse, error)
	Redeem(ctx context.Context, token string) (*dto.HandshakeResponse, error)
}

// OneTimeDeps contains dependencies for the one-time token service.
type OneTimeDeps struct {
	Identities repository.IdentityRepository
	Tokens     repository.LoginTokenRepository
	Issuer     *session.Issuer
	TokenTTL   time.Duration
}

type oneTimeService struct {
	deps OneTimeDeps
	now  func() time.Time
}

// NewOneTimeService creates a new OneTimeService.
func NewOneTimeService(deps OneTimeDeps) OneTimeService {
	if deps.TokenTTL <= 0 {
		deps.TokenTTL = 10 * time.Minute
	}
	return &oneTimeService{deps: deps, now: time.Now}
}

// One-time token errors.
var (
	ErrUnknownIdentity = fmt.Errorf("unknown identity")
	// ErrTokenSpent covers expired, already-used and never-minted tokens
	// alike: the caller cannot tell them apart.
	ErrTokenSpent = fmt.Errorf("token invalid or spent")
)

func (s *oneTimeService) Mint(ctx context.Context, identityID string) (*dto.OneTimeMintResponse, error) {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("auth.onetime"),
		logger.Op("Mint"),
	)

	if _, err := s.deps.Identities.GetByID(ctx, identityID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownIdentity, identityID)
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	token := base64.RawURLEncoding.EncodeToString(raw)
	expiresAt := s.now().Add(s.deps.TokenTTL)

	if _, err := s.deps.Tokens.Create(ctx, token, identityID, expiresAt); err != nil {
		log.Error("token create failed", logger.Err(err), logger.IdentityID(identityID))
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	log.Info("one-time token minted", logger.IdentityID(identityID))
	return &dto.OneTimeMintResponse{Token: token, ExpiresAt: expiresAt}, nil
}

func (s *oneTimeService) Redeem(ctx context.Context, token string) (*dto.HandshakeResponse, error) {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("auth.onetime"),
		logger.Op("Redeem"),
	)

	identityID, err := s.deps.Tokens.Redeem(ctx, token, s.now())
	if err != nil {
		if errors.Is(err, repository.ErrTokenSpent) || errors.Is(err, repository.ErrNotFound) {
			log.Warn("redeem rejected", logger.Reason("spent_or_unknown"))
			return nil, ErrTokenSpent
		}
		log.Error("redeem failed", logger.Err(err))
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	ident, err := s.deps.Identities.GetByID(ctx, identityID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	sessionToken, expiresAt, err := s.deps.Issuer.Issue(ctx, ident)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	merchantID := ident.MerchantID
	if merchantID == "" {
		if mid, merr := s.deps.Identities.FirstTeamMerchant(ctx, ident.ID); merr == nil {
			merchantID = mid
		}
	}

	log.Info("one-time token redeemed", logger.IdentityID(ident.ID))
	return &dto.HandshakeResponse{
		Identity:  Summarize(ident, merchantID),
		Token:     sessionToken,
		ExpiresAt: expiresAt,
	}, nil
}
