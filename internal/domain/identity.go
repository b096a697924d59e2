package domain

import (
	"strings"
	"time"
)

// Role es la enumeración cerrada de roles. Siempre se compara en su forma
// canónica (minúsculas); usar NormalizeRole antes de cualquier comparación.
type Role string

const (
	RoleUser     Role = "user"
	RoleMerchant Role = "merchant"
	RoleSupport  Role = "support"
	RoleManager  Role = "manager"
	RoleAdmin    Role = "admin"
)

// roleRank ordena los roles para el chequeo de zonas: un rol puede acceder
// a toda zona cuyo rol mínimo tenga rango menor o igual.
var roleRank = map[Role]int{
	RoleUser:     0,
	RoleMerchant: 1,
	RoleSupport:  2,
	RoleManager:  3,
	RoleAdmin:    4,
}

// NormalizeRole lleva un rol a su forma canónica. Roles desconocidos
// degradan a user (nunca escalan privilegios).
func NormalizeRole(s string) Role {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := roleRank[r]; !ok {
		return RoleUser
	}
	return r
}

// AtLeast reporta si r alcanza el rol mínimo requerido.
func (r Role) AtLeast(min Role) bool {
	return roleRank[NormalizeRole(string(r))] >= roleRank[NormalizeRole(string(min))]
}

// IsStaff reporta si el rol es de staff de plataforma.
func (r Role) IsStaff() bool {
	switch NormalizeRole(string(r)) {
	case RoleSupport, RoleManager, RoleAdmin:
		return true
	}
	return false
}

// Privileged reporta si el rol cae en el tier corto de expiración.
func (r Role) Privileged() bool {
	return r.IsStaff()
}

// Identity es el principal durable, creado en el primer handshake exitoso.
type Identity struct {
	ID          string
	TelegramID  int64 // ID externo: entero ancho, nunca float (excede 53 bits)
	DisplayName string
	Username    string
	Role        Role
	// SecurityStamp es el marcador de revocación. Nunca es vacío después
	// del primer login; rotarlo invalida toda sesión emitida antes.
	SecurityStamp string
	// MerchantID es el merchant propio (si la identidad es dueña de uno).
	MerchantID string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ResolvedSession es el resultado de resolver un request autenticado.
type ResolvedSession struct {
	IdentityID  string
	TelegramID  int64
	DisplayName string
	Role        Role
	Stamp       string
	IsStaff     bool
	// MerchantID es el tenant-scope efectivo: override explícito del
	// request, o el merchant propio, o la primera membresía de equipo.
	MerchantID string
	// Transport indica por qué vía se resolvió: header | cookie | bearer.
	Transport string
}

// LoginToken es el token one-time para flujos de login fuera de banda.
type LoginToken struct {
	Token      string
	IdentityID string
	ExpiresAt  time.Time
	UsedAt     *time.Time
	CreatedAt  time.Time
}

// Expired reporta si el token ya venció.
func (t *LoginToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}
