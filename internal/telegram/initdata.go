// Package telegram valida el init data firmado que la Mini App recibe del
// cliente de Telegram. Es el único credential inbound del sistema.
package telegram

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Errores sentinela: señales de log distintas (anti-replay vs firma), pero
// todos colapsan al mismo 401 genérico en el borde.
var (
	// ErrMalformed indica payload indecodificable o campos requeridos ausentes.
	ErrMalformed = errors.New("telegram: malformed init data")

	// ErrStale indica auth_date fuera de la ventana de frescura.
	ErrStale = errors.New("telegram: init data outside freshness window")

	// ErrSignature indica hash inválido.
	ErrSignature = errors.New("telegram: signature mismatch")
)

// DefaultMaxAuthAge es la ventana de frescura del handshake.
const DefaultMaxAuthAge = 24 * time.Hour

// secretKeyLabel es la clave HMAC fija con la que se deriva la secret key
// a partir del bot token (definida por la plataforma).
const secretKeyLabel = "WebAppData"

// User es el objeto embebido en el campo `user` del init data.
// El ID excede el rango seguro de float64 (53 bits): se decodea directo a
// int64, nunca pasar por number genérico.
type User struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
}

// DisplayName arma el nombre visible a partir de first/last.
func (u *User) DisplayName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		name = u.Username
	}
	return name
}

// InitData es el resultado de una verificación exitosa.
type InitData struct {
	User     User
	AuthDate time.Time
	// Raw conserva los pares verificados (sin hash) por si un caller
	// necesita passthrough fields (query_id, start_param, etc).
	Raw url.Values
}

// Verifier valida init data contra el secreto del bot.
type Verifier struct {
	secretKey []byte
	maxAge    time.Duration
	now       func() time.Time
}

// NewVerifier deriva la secret key una sola vez:
// secret = HMAC_SHA256(key="WebAppData", msg=botToken).
func NewVerifier(botToken string, maxAge time.Duration) *Verifier {
	if maxAge <= 0 {
		maxAge = DefaultMaxAuthAge
	}
	mac := hmac.New(sha256.New, []byte(secretKeyLabel))
	mac.Write([]byte(botToken))
	return &Verifier{
		secretKey: mac.Sum(nil),
		maxAge:    maxAge,
		now:       time.Now,
	}
}

// WithClock fija el reloj. Sólo para tests.
func (v *Verifier) WithClock(now func() time.Time) *Verifier {
	v.now = now
	return v
}

// Verify valida el payload completo según el esquema de la plataforma:
//
//  1. separar y remover `hash`
//  2. rechazar auth_date ausente, no numérico o más viejo que la ventana
//  3. data-check-string: pares key=value ordenados lexicográficamente,
//     unidos por newline
//  4. digest = hex(HMAC_SHA256(key=secretKey, msg=dataCheckString))
//  5. comparación constant-time contra el hash declarado
//
// Función pura sobre (payload, secreto, reloj): sin side effects.
func (v *Verifier) Verify(rawInitData string) (*InitData, error) {
	values, err := url.ParseQuery(rawInitData)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	declared := values.Get("hash")
	if declared == "" {
		return nil, fmt.Errorf("%w: missing hash", ErrMalformed)
	}
	values.Del("hash")

	// Anti-replay primero: no gastar crypto en payloads viejos.
	authDateRaw := values.Get("auth_date")
	if authDateRaw == "" {
		return nil, fmt.Errorf("%w: missing auth_date", ErrMalformed)
	}
	unix, err := strconv.ParseInt(authDateRaw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: auth_date not numeric", ErrMalformed)
	}
	authDate := time.Unix(unix, 0)
	if v.now().Sub(authDate) > v.maxAge {
		return nil, ErrStale
	}

	if !hmac.Equal([]byte(computeHash(values, v.secretKey)), []byte(declared)) {
		return nil, ErrSignature
	}

	userRaw := values.Get("user")
	if userRaw == "" {
		return nil, fmt.Errorf("%w: missing user", ErrMalformed)
	}
	var user User
	if err := json.Unmarshal([]byte(userRaw), &user); err != nil {
		return nil, fmt.Errorf("%w: user undecodable", ErrMalformed)
	}
	if user.ID == 0 {
		return nil, fmt.Errorf("%w: user without id", ErrMalformed)
	}

	return &InitData{User: user, AuthDate: authDate, Raw: values}, nil
}

// computeHash arma el data-check-string canónico y devuelve el digest hex.
// Se incluyen TODOS los pares restantes (passthrough fields incluidos) sin
// interpretarlos: el firmante los cubrió a todos.
func computeHash(values url.Values, secretKey []byte) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(values.Get(k))
	}

	mac := hmac.New(sha256.New, secretKey)
	mac.Write([]byte(b.String()))
	return hex.EncodeToString(mac.Sum(nil))
}
