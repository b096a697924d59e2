package session

import (
	"net/http"
	"time"
)

// CookiePolicy define el transporte del token de sesión.
//
// SameSite=None + Partitioned + Secure son obligatorios: la app corre
// dentro del iframe/webview de un tercero y la cookie viaja cross-site.
// No se setea Domain (host-only).
type CookiePolicy struct {
	Name string
	// Secure debería ser true salvo en dev local sin TLS.
	Secure bool
}

// Build arma la cookie de sesión con el max-age del tier que corresponde
// al rol (el TTL viene del Issuer).
func (p CookiePolicy) Build(token string, ttl time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:        p.Name,
		Value:       token,
		Path:        "/",
		MaxAge:      int(ttl.Seconds()),
		HttpOnly:    true,
		Secure:      p.Secure,
		SameSite:    http.SameSiteNoneMode,
		Partitioned: true,
	}
}

// Clear arma la cookie de borrado (mismos atributos, MaxAge negativo;
// los browsers exigen que coincidan para pisar la original).
func (p CookiePolicy) Clear() *http.Cookie {
	return &http.Cookie{
		Name:        p.Name,
		Value:       "",
		Path:        "/",
		MaxAge:      -1,
		HttpOnly:    true,
		Secure:      p.Secure,
		SameSite:    http.SameSiteNoneMode,
		Partitioned: true,
	}
}
