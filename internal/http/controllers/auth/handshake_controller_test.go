package auth

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"testing"
	"time"

	cachemem "github.com/dropDatabas3/telepass/internal/cache/memory"
	"github.com/dropDatabas3/telepass/internal/domain"
	"github.com/dropDatabas3/telepass/internal/domain/repository"
	dto "github.com/dropDatabas3/telepass/internal/http/dto/auth"
	svc "github.com/dropDatabas3/telepass/internal/http/services/auth"
	"github.com/dropDatabas3/telepass/internal/session"
	memstore "github.com/dropDatabas3/telepass/internal/store/memory"
	"github.com/dropDatabas3/telepass/internal/telegram"
)

const (
	testBotToken = "110201543:AAHdqTcvCH1vGWJxfSeofSAs0K5PALDsaw"
	testSecret   = "secreto-de-firma-para-tests-de-controllers"
	testBotKey   = "bot-api-key-de-test"
)

// signInitData firma pares como lo haría la plataforma.
func signInitData(t *testing.T, pairs map[string]string) string {
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
	km.Write([]byte(testBotToken))
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

type ctrlFixture struct {
	store       *memstore.Store
	stamps      *session.StampRegistry
	controllers *Controllers
}

func newCtrlFixture(t *testing.T) *ctrlFixture {
	t.Helper()
	st := memstore.New()
	c := cachemem.New(5 * time.Minute)
	stamps := session.NewStampRegistry(st, c)
	issuer := session.NewIssuer(testSecret, "telepass", 24*time.Hour, 7*24*time.Hour, stamps)
	loader := session.NewIdentityLoader(st, c, 5*time.Minute)
	resolver := session.NewResolver(issuer, loader, st, session.ResolverOptions{
		CookieName: "tp_session", AllowBearer: true,
	})

	services := svc.NewServices(svc.Deps{
		Verifier:   telegram.NewVerifier(testBotToken, 0),
		Identities: st,
		Tokens:     st,
		Issuer:     issuer,
		Stamps:     stamps,
		OneTimeTTL: 10 * time.Minute,
	})
	return &ctrlFixture{
		store:  st,
		stamps: stamps,
		controllers: NewControllers(services, Options{
			Cookie:      session.CookiePolicy{Name: "tp_session", Secure: true},
			Resolver:    resolver,
			AllowBearer: true,
			BotAPIKey:   testBotKey,
		}),
	}
}

func (f *ctrlFixture) handshake(t *testing.T, tgID int64) (*httptest.ResponseRecorder, dto.HandshakeResponse) {
	t.Helper()
	initData := signInitData(t, map[string]string{
		"user":      fmt.Sprintf(`{"id":%d,"first_name":"Ana","username":"anapaz"}`, tgID),
		"auth_date": fmt.Sprintf("%d", time.Now().Unix()),
		"query_id":  "AAHdF6IQAAAAANR",
	})
	body, _ := json.Marshal(dto.HandshakeRequest{InitData: initData})
	r := httptest.NewRequest(http.MethodPost, "/auth/handshake", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	f.controllers.Handshake.Handshake(rec, r)

	var resp dto.HandshakeResponse
	if rec.Code == http.StatusOK {
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("decode respuesta: %v", err)
		}
	}
	return rec, resp
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == "tp_session" {
			return ck
		}
	}
	t.Fatal("no hay cookie de sesión en la respuesta")
	return nil
}

func TestHandshake_OpensSession(t *testing.T) {
	f := newCtrlFixture(t)
	rec, resp := f.handshake(t, 7549281039482713)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d body=%s", rec.Code, rec.Body.String())
	}
	if resp.Identity.TelegramID != 7549281039482713 {
		t.Fatalf("telegram_id: got %d", resp.Identity.TelegramID)
	}
	if resp.Identity.Role != "user" {
		t.Fatalf("rol inicial: got %q", resp.Identity.Role)
	}
	if cc := rec.Header().Get("Cache-Control"); cc != "no-store" {
		t.Fatalf("cache-control: got %q", cc)
	}

	ck := sessionCookie(t, rec)
	if !ck.HttpOnly || !ck.Secure || ck.SameSite != http.SameSiteNoneMode {
		t.Fatalf("flags de cookie: %+v", ck)
	}
	if ck.Value != resp.Token {
		t.Fatal("el token del cuerpo y el de la cookie difieren")
	}

	// la cookie recién emitida resuelve en whoami
	r := httptest.NewRequest(http.MethodGet, "/auth/whoami", nil)
	r.AddCookie(&http.Cookie{Name: "tp_session", Value: ck.Value})
	rec2 := httptest.NewRecorder()
	f.controllers.Session.WhoAmI(rec2, r)
	if rec2.Code != http.StatusOK {
		t.Fatalf("whoami: got %d", rec2.Code)
	}
	var who dto.WhoAmIResponse
	if err := json.NewDecoder(rec2.Body).Decode(&who); err != nil {
		t.Fatal(err)
	}
	if who.Identity.ID != resp.Identity.ID || who.Transport != "cookie" {
		t.Fatalf("whoami: %+v", who)
	}
}

func TestHandshake_RepeatKeepsIdentity(t *testing.T) {
	f := newCtrlFixture(t)
	_, first := f.handshake(t, 42)
	_, second := f.handshake(t, 42)

	if first.Identity.ID != second.Identity.ID {
		t.Fatalf("identidad duplicada: %s vs %s", first.Identity.ID, second.Identity.ID)
	}
}

func TestHandshake_RejectsTamperedPayload(t *testing.T) {
	f := newCtrlFixture(t)
	initData := signInitData(t, map[string]string{
		"user":      `{"id":42,"first_name":"Ana"}`,
		"auth_date": fmt.Sprintf("%d", time.Now().Unix()),
	})
	// promover el rol después de firmar
	tampered := strings.Replace(initData, "Ana", "Eva", 1)

	body, _ := json.Marshal(dto.HandshakeRequest{InitData: tampered})
	r := httptest.NewRequest(http.MethodPost, "/auth/handshake", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	f.controllers.Handshake.Handshake(rec, r)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status: got %d want 401", rec.Code)
	}
	// la respuesta no debe filtrar la causa
	if s := rec.Body.String(); strings.Contains(s, "signature") || strings.Contains(s, "hash") {
		t.Fatalf("respuesta filtra la causa: %s", s)
	}
}

func TestHandshake_BadRequests(t *testing.T) {
	f := newCtrlFixture(t)

	cases := []struct {
		name string
		body string
	}{
		{"json inválido", "{"},
		{"sin init_data", `{}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/auth/handshake", strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			f.controllers.Handshake.Handshake(rec, r)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status: got %d want 400", rec.Code)
			}
		})
	}
}

func TestLogoutEverywhere_KillsAllSessions(t *testing.T) {
	f := newCtrlFixture(t)
	rec, _ := f.handshake(t, 99)
	ck := sessionCookie(t, rec)

	r := httptest.NewRequest(http.MethodPost, "/auth/logout-everywhere", nil)
	r.AddCookie(&http.Cookie{Name: "tp_session", Value: ck.Value})
	rec2 := httptest.NewRecorder()
	f.controllers.Session.LogoutEverywhere(rec2, r)
	if rec2.Code != http.StatusNoContent {
		t.Fatalf("status: got %d", rec2.Code)
	}

	// el mismo token ya no resuelve: el stamp rotó
	r = httptest.NewRequest(http.MethodGet, "/auth/whoami", nil)
	r.AddCookie(&http.Cookie{Name: "tp_session", Value: ck.Value})
	rec3 := httptest.NewRecorder()
	f.controllers.Session.WhoAmI(rec3, r)
	if rec3.Code != http.StatusUnauthorized {
		t.Fatalf("whoami tras revocación: got %d want 401", rec3.Code)
	}
}

func TestLogout_OnlyClearsCookie(t *testing.T) {
	f := newCtrlFixture(t)
	rec, _ := f.handshake(t, 77)
	token := sessionCookie(t, rec).Value

	r := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	rec2 := httptest.NewRecorder()
	f.controllers.Session.Logout(rec2, r)
	if rec2.Code != http.StatusNoContent {
		t.Fatalf("status: got %d", rec2.Code)
	}
	if ck := sessionCookie(t, rec2); ck.MaxAge >= 0 {
		t.Fatalf("cookie no expirada: max-age=%d", ck.MaxAge)
	}

	// logout local no revoca: el token sigue siendo válido vía bearer
	r = httptest.NewRequest(http.MethodGet, "/auth/whoami", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	rec3 := httptest.NewRecorder()
	f.controllers.Session.WhoAmI(rec3, r)
	if rec3.Code != http.StatusOK {
		t.Fatalf("whoami bearer tras logout local: got %d", rec3.Code)
	}
}

func TestOneTime_MintAndRedeemOnce(t *testing.T) {
	f := newCtrlFixture(t)
	ident, _, err := f.store.Upsert(context.Background(), repository.UpsertIdentityInput{
		TelegramID: 555, DisplayName: "Bot User",
	})
	if err != nil {
		t.Fatal(err)
	}

	// mint con la API key del bot
	body, _ := json.Marshal(dto.OneTimeMintRequest{IdentityID: ident.ID})
	r := httptest.NewRequest(http.MethodPost, "/auth/onetime", bytes.NewReader(body))
	r.Header.Set("X-Bot-Api-Key", testBotKey)
	rec := httptest.NewRecorder()
	f.controllers.OneTime.Mint(rec, r)
	if rec.Code != http.StatusCreated {
		t.Fatalf("mint: got %d body=%s", rec.Code, rec.Body.String())
	}
	var minted dto.OneTimeMintResponse
	if err := json.NewDecoder(rec.Body).Decode(&minted); err != nil {
		t.Fatal(err)
	}

	redeem := func() *httptest.ResponseRecorder {
		b, _ := json.Marshal(dto.OneTimeRedeemRequest{Token: minted.Token})
		r := httptest.NewRequest(http.MethodPost, "/auth/onetime/redeem", bytes.NewReader(b))
		rec := httptest.NewRecorder()
		f.controllers.OneTime.Redeem(rec, r)
		return rec
	}

	first := redeem()
	if first.Code != http.StatusOK {
		t.Fatalf("primer canje: got %d body=%s", first.Code, first.Body.String())
	}
	if ck := sessionCookie(t, first); ck.Value == "" {
		t.Fatal("canje sin cookie de sesión")
	}

	if second := redeem(); second.Code != http.StatusUnauthorized {
		t.Fatalf("segundo canje: got %d want 401", second.Code)
	}
}

func TestOneTime_MintRequiresStaffOrBotKey(t *testing.T) {
	f := newCtrlFixture(t)
	ident, _, err := f.store.Upsert(context.Background(), repository.UpsertIdentityInput{TelegramID: 556})
	if err != nil {
		t.Fatal(err)
	}

	body, _ := json.Marshal(dto.OneTimeMintRequest{IdentityID: ident.ID})

	// sin credencial
	r := httptest.NewRequest(http.MethodPost, "/auth/onetime", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	f.controllers.OneTime.Mint(rec, r)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("sin credencial: got %d", rec.Code)
	}

	// sesión de rol user tampoco alcanza
	hrec, _ := f.handshake(t, 557)
	userToken := sessionCookie(t, hrec).Value
	r = httptest.NewRequest(http.MethodPost, "/auth/onetime", bytes.NewReader(body))
	r.AddCookie(&http.Cookie{Name: "tp_session", Value: userToken})
	rec = httptest.NewRecorder()
	f.controllers.OneTime.Mint(rec, r)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("rol user: got %d", rec.Code)
	}

	// sesión staff sí
	admin, _, err := f.store.Upsert(context.Background(), repository.UpsertIdentityInput{TelegramID: 558})
	if err != nil {
		t.Fatal(err)
	}
	if err := f.store.SetRole(context.Background(), admin.ID, domain.RoleAdmin); err != nil {
		t.Fatal(err)
	}
	hrec2, _ := f.handshake(t, 558)
	adminToken := sessionCookie(t, hrec2).Value
	r = httptest.NewRequest(http.MethodPost, "/auth/onetime", bytes.NewReader(body))
	r.AddCookie(&http.Cookie{Name: "tp_session", Value: adminToken})
	rec = httptest.NewRecorder()
	f.controllers.OneTime.Mint(rec, r)
	if rec.Code != http.StatusCreated {
		t.Fatalf("staff: got %d body=%s", rec.Code, rec.Body.String())
	}
}
