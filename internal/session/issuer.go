// Package session emite, resuelve y revoca sesiones de la Mini App.
//
// El token es un JWT HS256 con el stamp de revocación embebido: la
// comparación stamp-embebido vs stamp-actual ES la lista de revocación
// (O(1) por identidad, sin blacklist).
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"

	"github.com/dropDatabas3/telepass/internal/domain"
)

var (
	// ErrTokenInvalid cubre firma inválida, claims ausentes o expiración.
	ErrTokenInvalid = errors.New("session: invalid token")
)

// Claims son los claims del token de sesión.
type Claims struct {
	Role  string `json:"role"`
	Stamp string `json:"stamp"`
	jwtv5.RegisteredClaims
}

// Issuer firma tokens de sesión con el secreto simétrico del servicio.
type Issuer struct {
	secret        []byte
	iss           string
	privilegedTTL time.Duration
	defaultTTL    time.Duration
	stamps        *StampRegistry
	now           func() time.Time
}

func NewIssuer(secret, iss string, privilegedTTL, defaultTTL time.Duration, stamps *StampRegistry) *Issuer {
	if privilegedTTL <= 0 {
		privilegedTTL = 24 * time.Hour
	}
	if defaultTTL <= 0 {
		defaultTTL = 7 * 24 * time.Hour
	}
	return &Issuer{
		secret:        []byte(secret),
		iss:           iss,
		privilegedTTL: privilegedTTL,
		defaultTTL:    defaultTTL,
		stamps:        stamps,
		now:           time.Now,
	}
}

// WithClock fija el reloj. Sólo para tests.
func (i *Issuer) WithClock(now func() time.Time) *Issuer {
	i.now = now
	return i
}

// TTLForRole determina el tier de expiración: roles privilegiados corto,
// el resto largo.
func (i *Issuer) TTLForRole(role domain.Role) time.Duration {
	if role.Privileged() {
		return i.privilegedTTL
	}
	return i.defaultTTL
}

// Issue emite un token firmado para la identidad. Si la identidad todavía
// no tiene stamp (primer login), se le asigna uno fresco (única escritura
// de esta operación).
func (i *Issuer) Issue(ctx context.Context, ident *domain.Identity) (string, time.Time, error) {
	stamp := ident.SecurityStamp
	if stamp == "" {
		var err error
		stamp, err = i.stamps.Ensure(ctx, ident.ID)
		if err != nil {
			return "", time.Time{}, fmt.Errorf("session: assign stamp: %w", err)
		}
		ident.SecurityStamp = stamp
	}

	now := i.now().UTC()
	role := domain.NormalizeRole(string(ident.Role))
	exp := now.Add(i.TTLForRole(role))

	claims := Claims{
		Role:  string(role),
		Stamp: stamp,
		RegisteredClaims: jwtv5.RegisteredClaims{
			Issuer:    i.iss,
			Subject:   ident.ID,
			IssuedAt:  jwtv5.NewNumericDate(now),
			ExpiresAt: jwtv5.NewNumericDate(exp),
		},
	}

	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, claims)
	tk.Header["typ"] = "JWT"
	signed, err := tk.SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// Verify valida firma, expiración e issuer, y devuelve los claims.
// Cualquier fallo colapsa a ErrTokenInvalid: el caller no distingue causas.
func (i *Issuer) Verify(token string) (*Claims, error) {
	var claims Claims
	tk, err := jwtv5.ParseWithClaims(token, &claims, func(t *jwtv5.Token) (any, error) {
		if t.Method != jwtv5.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.secret, nil
	},
		jwtv5.WithIssuer(i.iss),
		jwtv5.WithExpirationRequired(),
		jwtv5.WithTimeFunc(func() time.Time { return i.now() }),
	)
	if err != nil || !tk.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.Subject == "" || claims.Stamp == "" {
		return nil, ErrTokenInvalid
	}
	return &claims, nil
}
