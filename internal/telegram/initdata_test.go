package telegram

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"testing"
	"time"
)

const testBotToken = "110201543:AAHdqTcvCH1vGWJxfSeofSAs0K5PALDsaw"

// signInitData firma un set de pares como lo haría la plataforma.
func signInitData(t *testing.T, botToken string, pairs map[string]string) string {
	t.Helper()

	keys := make([]string, 0, len(pairs))
	for k := range pairs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, k+"="+pairs[k])
	}

	km := hmac.New(sha256.New, []byte("WebAppData"))
	km.Write([]byte(botToken))
	secret := km.Sum(nil)

	dm := hmac.New(sha256.New, secret)
	dm.Write([]byte(strings.Join(lines, "\n")))
	hash := hex.EncodeToString(dm.Sum(nil))

	v := url.Values{}
	for k, val := range pairs {
		v.Set(k, val)
	}
	v.Set("hash", hash)
	return v.Encode()
}

func validPairs(authDate time.Time) map[string]string {
	return map[string]string{
		// id de 17 dígitos: por encima del rango seguro de float64
		"user":      `{"id":7549281039482713,"first_name":"Ana","last_name":"Paz","username":"anapaz"}`,
		"auth_date": fmt.Sprintf("%d", authDate.Unix()),
		"query_id":  "AAHdF6IQAAAAANR",
	}
}

func TestVerify_RoundTrip(t *testing.T) {
	now := time.Unix(1700000000, 0)
	v := NewVerifier(testBotToken, 0).WithClock(func() time.Time { return now })

	raw := signInitData(t, testBotToken, validPairs(now))
	data, err := v.Verify(raw)
	if err != nil {
		t.Fatalf("Verify err: %v", err)
	}
	if data.User.ID != 7549281039482713 {
		t.Fatalf("user id mismatch: got %d", data.User.ID)
	}
	if data.User.DisplayName() != "Ana Paz" {
		t.Fatalf("display name: got %q", data.User.DisplayName())
	}
	if !data.AuthDate.Equal(now) {
		t.Fatalf("auth date: got %v want %v", data.AuthDate, now)
	}
	// passthrough fields quedan disponibles sin interpretarse
	if data.Raw.Get("query_id") != "AAHdF6IQAAAAANR" {
		t.Fatalf("passthrough lost")
	}
}

func TestVerify_RejectsStale(t *testing.T) {
	now := time.Unix(1700000000, 0)
	v := NewVerifier(testBotToken, 24*time.Hour).WithClock(func() time.Time { return now })

	// hash perfectamente válido, pero auth_date de hace 25h
	raw := signInitData(t, testBotToken, validPairs(now.Add(-25*time.Hour)))
	if _, err := v.Verify(raw); !errors.Is(err, ErrStale) {
		t.Fatalf("want ErrStale, got %v", err)
	}
}

func TestVerify_JustInsideWindow(t *testing.T) {
	now := time.Unix(1700000000, 0)
	v := NewVerifier(testBotToken, 24*time.Hour).WithClock(func() time.Time { return now })

	raw := signInitData(t, testBotToken, validPairs(now.Add(-23*time.Hour)))
	if _, err := v.Verify(raw); err != nil {
		t.Fatalf("payload dentro de la ventana rechazado: %v", err)
	}
}

func TestVerify_TamperedHash(t *testing.T) {
	now := time.Unix(1700000000, 0)
	v := NewVerifier(testBotToken, 0).WithClock(func() time.Time { return now })

	raw := signInitData(t, testBotToken, validPairs(now))
	vals, _ := url.ParseQuery(raw)
	h := []byte(vals.Get("hash"))
	// flip de un solo caracter
	if h[0] == 'a' {
		h[0] = 'b'
	} else {
		h[0] = 'a'
	}
	vals.Set("hash", string(h))

	if _, err := v.Verify(vals.Encode()); !errors.Is(err, ErrSignature) {
		t.Fatalf("want ErrSignature, got %v", err)
	}
}

func TestVerify_TamperedField(t *testing.T) {
	now := time.Unix(1700000000, 0)
	v := NewVerifier(testBotToken, 0).WithClock(func() time.Time { return now })

	raw := signInitData(t, testBotToken, validPairs(now))
	vals, _ := url.ParseQuery(raw)
	// cambiar el user firmado por otro id
	vals.Set("user", `{"id":1,"first_name":"Eve"}`)

	if _, err := v.Verify(vals.Encode()); !errors.Is(err, ErrSignature) {
		t.Fatalf("want ErrSignature, got %v", err)
	}
}

func TestVerify_WrongBotToken(t *testing.T) {
	now := time.Unix(1700000000, 0)
	v := NewVerifier("999999:other-bot", 0).WithClock(func() time.Time { return now })

	raw := signInitData(t, testBotToken, validPairs(now))
	if _, err := v.Verify(raw); !errors.Is(err, ErrSignature) {
		t.Fatalf("want ErrSignature, got %v", err)
	}
}

func TestVerify_Malformed(t *testing.T) {
	now := time.Unix(1700000000, 0)
	v := NewVerifier(testBotToken, 0).WithClock(func() time.Time { return now })

	cases := []struct {
		name string
		raw  func() string
	}{
		{"sin hash", func() string {
			vals, _ := url.ParseQuery(signInitData(t, testBotToken, validPairs(now)))
			vals.Del("hash")
			return vals.Encode()
		}},
		{"sin auth_date", func() string {
			p := validPairs(now)
			delete(p, "auth_date")
			return signInitData(t, testBotToken, p)
		}},
		{"auth_date no numérico", func() string {
			p := validPairs(now)
			p["auth_date"] = "ayer"
			return signInitData(t, testBotToken, p)
		}},
		{"user indecodificable", func() string {
			p := validPairs(now)
			p["user"] = "{not json"
			return signInitData(t, testBotToken, p)
		}},
		{"sin user", func() string {
			p := validPairs(now)
			delete(p, "user")
			return signInitData(t, testBotToken, p)
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := v.Verify(tc.raw()); !errors.Is(err, ErrMalformed) {
				t.Fatalf("want ErrMalformed, got %v", err)
			}
		})
	}
}
