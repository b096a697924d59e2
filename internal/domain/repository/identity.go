package repository

import (
	"context"

	"github.com/dropDatabas3/telepass/internal/domain"
)

// UpsertIdentityInput contiene los datos del handshake para crear/actualizar
// una identidad. El upsert está keyed por TelegramID.
type UpsertIdentityInput struct {
	TelegramID  int64
	DisplayName string
	Username    string
}

// IdentityRepository define operaciones sobre el registro de identidad.
type IdentityRepository interface {
	// GetByID busca una identidad por su ID opaco.
	// Retorna ErrNotFound si no existe.
	GetByID(ctx context.Context, id string) (*domain.Identity, error)

	// GetByTelegramID busca una identidad por su ID externo de plataforma.
	GetByTelegramID(ctx context.Context, tgID int64) (*domain.Identity, error)

	// Upsert crea la identidad en el primer handshake o refresca
	// display_name/username en los siguientes. Retorna la identidad
	// resultante y si fue creada.
	Upsert(ctx context.Context, input UpsertIdentityInput) (*domain.Identity, bool, error)

	// SetSecurityStamp escribe el stamp de forma atómica (single-row).
	// Se usa tanto para la asignación inicial como para la rotación.
	SetSecurityStamp(ctx context.Context, id, stamp string) error

	// SetRole cambia el rol (single-row).
	SetRole(ctx context.Context, id string, role domain.Role) error

	// FirstTeamMerchant retorna el merchant de la primera membresía de
	// equipo de la identidad, o "" si no pertenece a ninguno.
	FirstTeamMerchant(ctx context.Context, id string) (string, error)
}
