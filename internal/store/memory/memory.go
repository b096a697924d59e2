// Package memory implementa los repos en memoria para dev/tests.
// No sobrevive reinicios: nunca usarlo en producción.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/telepass/internal/domain"
	"github.com/dropDatabas3/telepass/internal/domain/repository"
)

type membership struct {
	MerchantID string
	CreatedAt  time.Time
}

type Store struct {
	mu         sync.Mutex
	byID       map[string]*domain.Identity
	byTG       map[int64]string
	tokens     map[string]*domain.LoginToken
	members    map[string][]membership // identityID -> memberships
	failReads  error                   // si está seteado, toda lectura falla (tests fail-closed)
}

func New() *Store {
	return &Store{
		byID:    make(map[string]*domain.Identity),
		byTG:    make(map[int64]string),
		tokens:  make(map[string]*domain.LoginToken),
		members: make(map[string][]membership),
	}
}

func (s *Store) Ping(ctx context.Context) error { return nil }
func (s *Store) Close()                         {}

// FailReads fuerza errores en lecturas subsecuentes. Sólo para tests.
func (s *Store) FailReads(err error) {
	s.mu.Lock()
	s.failReads = err
	s.mu.Unlock()
}

func clone(i *domain.Identity) *domain.Identity {
	c := *i
	return &c
}

func (s *Store) GetByID(ctx context.Context, id string) (*domain.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failReads != nil {
		return nil, s.failReads
	}
	i, ok := s.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return clone(i), nil
}

func (s *Store) GetByTelegramID(ctx context.Context, tgID int64) (*domain.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failReads != nil {
		return nil, s.failReads
	}
	id, ok := s.byTG[tgID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return clone(s.byID[id]), nil
}

func (s *Store) Upsert(ctx context.Context, in repository.UpsertIdentityInput) (*domain.Identity, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	if id, ok := s.byTG[in.TelegramID]; ok {
		i := s.byID[id]
		i.DisplayName = in.DisplayName
		i.Username = in.Username
		i.UpdatedAt = now
		return clone(i), false, nil
	}
	i := &domain.Identity{
		ID:          uuid.NewString(),
		TelegramID:  in.TelegramID,
		DisplayName: in.DisplayName,
		Username:    in.Username,
		Role:        domain.RoleUser,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.byID[i.ID] = i
	s.byTG[i.TelegramID] = i.ID
	return clone(i), true, nil
}

func (s *Store) SetSecurityStamp(ctx context.Context, id, stamp string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	i.SecurityStamp = stamp
	i.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) SetRole(ctx context.Context, id string, role domain.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	i.Role = domain.NormalizeRole(string(role))
	i.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) FirstTeamMerchant(ctx context.Context, id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failReads != nil {
		return "", s.failReads
	}
	ms := s.members[id]
	if len(ms) == 0 {
		return "", nil
	}
	// el slice preserva orden de alta == created_at ascendente
	return ms[0].MerchantID, nil
}

// SetMerchant asigna el merchant propio de una identidad. Helper de seed/tests.
func (s *Store) SetMerchant(id, merchantID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i, ok := s.byID[id]; ok {
		i.MerchantID = merchantID
	}
}

// AddTeamMember agrega una membresía de equipo. Helper de seed/tests.
func (s *Store) AddTeamMember(identityID, merchantID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[identityID] = append(s.members[identityID], membership{
		MerchantID: merchantID,
		CreatedAt:  time.Now().UTC(),
	})
}

// ─────────────── LoginTokenRepository ───────────────

func (s *Store) Create(ctx context.Context, token, identityID string, expiresAt time.Time) (*domain.LoginToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tokens[token]; ok {
		return nil, repository.ErrConflict
	}
	lt := &domain.LoginToken{
		Token:      token,
		IdentityID: identityID,
		ExpiresAt:  expiresAt,
		CreatedAt:  time.Now().UTC(),
	}
	s.tokens[token] = lt
	c := *lt
	return &c, nil
}

func (s *Store) Redeem(ctx context.Context, token string, now time.Time) (string, error) {
	// check-then-mark bajo el mismo lock: equivalente al conditional
	// update de Postgres.
	s.mu.Lock()
	defer s.mu.Unlock()
	lt, ok := s.tokens[token]
	if !ok || lt.UsedAt != nil || lt.Expired(now) {
		return "", repository.ErrTokenSpent
	}
	used := now
	lt.UsedAt = &used
	return lt.IdentityID, nil
}
