package pg

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/telepass/internal/domain"
	"github.com/dropDatabas3/telepass/internal/domain/repository"
)

type Config struct {
	MaxConns    int
	ConnTimeout time.Duration
}

type Store struct{ pool *pgxpool.Pool }

func New(ctx context.Context, dsn string, cfg Config) (*Store, error) {
	pcfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.ConnTimeout > 0 {
		pcfg.ConnConfig.ConnectTimeout = cfg.ConnTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// Pool expone el pool interno (metrics/migraciones).
func (s *Store) Pool() *pgxpool.Pool {
	if s == nil {
		return nil
	}
	return s.pool
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close cierra el pool subyacente (idempotente).
func (s *Store) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

// ─────────────── IdentityRepository ───────────────

const identityCols = `id, tg_id, display_name, username, role, coalesce(security_stamp,''), coalesce(merchant_id::text,''), created_at, updated_at`

func scanIdentity(row pgx.Row) (*domain.Identity, error) {
	var ident domain.Identity
	var role string
	err := row.Scan(&ident.ID, &ident.TelegramID, &ident.DisplayName, &ident.Username,
		&role, &ident.SecurityStamp, &ident.MerchantID, &ident.CreatedAt, &ident.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	ident.Role = domain.NormalizeRole(role)
	return &ident, nil
}

func (s *Store) GetByID(ctx context.Context, id string) (*domain.Identity, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+identityCols+` FROM identity WHERE id = $1`, id)
	return scanIdentity(row)
}

func (s *Store) GetByTelegramID(ctx context.Context, tgID int64) (*domain.Identity, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+identityCols+` FROM identity WHERE tg_id = $1`, tgID)
	return scanIdentity(row)
}

func (s *Store) Upsert(ctx context.Context, in repository.UpsertIdentityInput) (*domain.Identity, bool, error) {
	// ON CONFLICT refresca sólo los datos declarados por la plataforma;
	// role, stamp y merchant nunca se tocan desde el handshake.
	row := s.pool.QueryRow(ctx, `
        INSERT INTO identity (id, tg_id, display_name, username, role)
        VALUES ($1, $2, $3, $4, 'user')
        ON CONFLICT (tg_id) DO UPDATE
           SET display_name = EXCLUDED.display_name,
               username     = EXCLUDED.username,
               updated_at   = now()
        RETURNING `+identityCols+`, (xmax = 0) AS inserted`,
		uuid.NewString(), in.TelegramID, in.DisplayName, in.Username,
	)
	var ident domain.Identity
	var role string
	var inserted bool
	if err := row.Scan(&ident.ID, &ident.TelegramID, &ident.DisplayName, &ident.Username,
		&role, &ident.SecurityStamp, &ident.MerchantID, &ident.CreatedAt, &ident.UpdatedAt, &inserted); err != nil {
		return nil, false, err
	}
	ident.Role = domain.NormalizeRole(role)
	return &ident, inserted, nil
}

func (s *Store) SetSecurityStamp(ctx context.Context, id, stamp string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE identity SET security_stamp = $1, updated_at = now() WHERE id = $2`, stamp, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (s *Store) SetRole(ctx context.Context, id string, role domain.Role) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE identity SET role = $1, updated_at = now() WHERE id = $2`,
		string(domain.NormalizeRole(string(role))), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (s *Store) FirstTeamMerchant(ctx context.Context, id string) (string, error) {
	var merchantID string
	err := s.pool.QueryRow(ctx, `
        SELECT merchant_id::text FROM merchant_member
         WHERE identity_id = $1
         ORDER BY created_at ASC
         LIMIT 1`, id).Scan(&merchantID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return merchantID, nil
}

// ─────────────── LoginTokenRepository ───────────────

func (s *Store) Create(ctx context.Context, token, identityID string, expiresAt time.Time) (*domain.LoginToken, error) {
	lt := &domain.LoginToken{Token: token, IdentityID: identityID, ExpiresAt: expiresAt}
	err := s.pool.QueryRow(ctx, `
        INSERT INTO login_token (token, identity_id, expires_at)
        VALUES ($1, $2, $3)
        RETURNING created_at`, token, identityID, expiresAt).Scan(&lt.CreatedAt)
	if err != nil {
		return nil, err
	}
	return lt, nil
}

// Redeem: el conditional update garantiza exactamente un canje bajo
// concurrencia, sin transacción explícita.
func (s *Store) Redeem(ctx context.Context, token string, now time.Time) (string, error) {
	var identityID string
	err := s.pool.QueryRow(ctx, `
        UPDATE login_token
           SET used_at = $2
         WHERE token = $1
           AND used_at IS NULL
           AND expires_at > $2
        RETURNING identity_id::text`, token, now).Scan(&identityID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", repository.ErrTokenSpent
		}
		return "", err
	}
	return identityID, nil
}
