// Package auth contiene los DTOs de los endpoints de autenticación.
package auth

import "time"

// HandshakeRequest es el cuerpo de POST /auth/handshake.
type HandshakeRequest struct {
	// InitData es la cadena firmada que entrega la WebApp de Telegram,
	// tal cual (query-string sin decodificar).
	InitData string `json:"init_data"`
	// MerchantID es el hint opcional de tenant-scope, análogo al header
	// X-Merchant-ID en requests ya autenticados.
	MerchantID string `json:"merchant_id,omitempty"`
}

// IdentitySummary es la vista pública de una identidad resuelta.
type IdentitySummary struct {
	ID          string `json:"id"`
	TelegramID  int64  `json:"telegram_id"`
	DisplayName string `json:"display_name"`
	Username    string `json:"username,omitempty"`
	Role        string `json:"role"`
	MerchantID  string `json:"merchant_id,omitempty"`
	Staff       bool   `json:"staff"`
}

// HandshakeResponse devuelve la identidad y la expiración de la sesión.
// El token viaja en la cookie, y opcionalmente en el cuerpo para clientes
// que usan el esquema Bearer.
type HandshakeResponse struct {
	Identity  IdentitySummary `json:"identity"`
	Token     string          `json:"token,omitempty"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// WhoAmIResponse es la respuesta de GET /auth/whoami.
type WhoAmIResponse struct {
	Identity  IdentitySummary `json:"identity"`
	Transport string          `json:"transport"`
}

// OneTimeMintRequest es el cuerpo de POST /auth/onetime.
type OneTimeMintRequest struct {
	IdentityID string `json:"identity_id"`
}

// OneTimeMintResponse devuelve el token de un solo uso recién acuñado.
type OneTimeMintResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// OneTimeRedeemRequest es el cuerpo de POST /auth/onetime/redeem.
type OneTimeRedeemRequest struct {
	Token string `json:"token"`
}
