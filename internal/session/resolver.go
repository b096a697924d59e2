package session

import (
	"context"
	"net/http"
	"strings"

	"github.com/dropDatabas3/telepass/internal/domain"
	"github.com/dropDatabas3/telepass/internal/domain/repository"
	"github.com/dropDatabas3/telepass/internal/observability/logger"
)

// Headers inyectados por el gatekeeper hacia la aplicación. Sólo son
// confiables porque el gatekeeper es el único proceso que puede setearlos
// antes de que el request llegue al código de aplicación: el borde los
// borra de todo request externo.
const (
	HeaderIdentity = "X-Auth-Identity"
	HeaderRole     = "X-Auth-Role"
	HeaderStamp    = "X-Auth-Stamp"

	// HeaderMerchant es el override explícito de tenant-scope del request.
	HeaderMerchant = "X-Merchant-ID"
)

// Vías de resolución, en el orden en que se intentan.
const (
	TransportHeader = "header"
	TransportCookie = "cookie"
	TransportBearer = "bearer"
)

type trustKey struct{}

// WithTrustedHeaders marca el contexto como "detrás del gatekeeper": el
// fast path de headers sólo se activa con esta marca, nunca para headers
// que vienen crudos del cliente.
func WithTrustedHeaders(ctx context.Context) context.Context {
	return context.WithValue(ctx, trustKey{}, true)
}

func headersTrusted(ctx context.Context) bool {
	v, _ := ctx.Value(trustKey{}).(bool)
	return v
}

// Strategy es un paso de la cadena de resolución. Retorna matched=false
// cuando el transport no está presente en el request (se prueba el
// siguiente); matched=true con sess=nil cuando el transport estaba pero la
// credencial no sirve (la resolución entera falla, sin fallback).
type Strategy interface {
	Name() string
	Resolve(r *http.Request) (sess *domain.ResolvedSession, matched bool)
}

// Resolver recupera la identidad del caller por una cadena ordenada de
// estrategias: header confiable → cookie → bearer.
type Resolver struct {
	issuer     *Issuer
	loader     *IdentityLoader
	repo       repository.IdentityRepository
	strategies []Strategy
}

// ResolverOptions configura transports opcionales.
type ResolverOptions struct {
	CookieName  string
	AllowBearer bool
}

func NewResolver(issuer *Issuer, loader *IdentityLoader, repo repository.IdentityRepository, opts ResolverOptions) *Resolver {
	r := &Resolver{issuer: issuer, loader: loader, repo: repo}
	r.strategies = append(r.strategies, &headerStrategy{r})
	if opts.CookieName != "" {
		r.strategies = append(r.strategies, &cookieStrategy{r, opts.CookieName})
	}
	if opts.AllowBearer {
		r.strategies = append(r.strategies, &bearerStrategy{r})
	}
	return r
}

// Resolve intenta cada estrategia en orden; la primera que matchea decide.
// Todo fallo (firma, expiración, stamp, store caído) resuelve a nil: el
// caller trata nil como "no autenticado" sin distinguir causas.
func (res *Resolver) Resolve(r *http.Request) *domain.ResolvedSession {
	for _, s := range res.strategies {
		sess, matched := s.Resolve(r)
		if !matched {
			continue
		}
		if sess == nil {
			return nil
		}
		sess.Transport = s.Name()
		return sess
	}
	return nil
}

// fromToken hace el trabajo común de cookie y bearer: verificar firma y
// expiración, cargar la identidad (cacheada) y comparar el stamp embebido
// contra el vigente.
func (res *Resolver) fromToken(r *http.Request, token string) *domain.ResolvedSession {
	ctx := r.Context()
	log := logger.From(ctx)

	claims, err := res.issuer.Verify(token)
	if err != nil {
		log.Debug("session token rejected", logger.Reason("verify"))
		return nil
	}

	ident, err := res.loader.Load(ctx, claims.Subject)
	if err != nil {
		// identidad ausente o store caído: fail closed
		if !repository.IsNotFound(err) {
			log.Warn("identity load failed during resolve", logger.Err(err))
		}
		return nil
	}

	// El mismatch de stamp ES la revocación global.
	if ident.SecurityStamp == "" || claims.Stamp != ident.SecurityStamp {
		log.Debug("session token rejected", logger.Reason("stamp"), logger.IdentityID(ident.ID))
		return nil
	}

	return res.buildSession(r, ident)
}

func (res *Resolver) buildSession(r *http.Request, ident *domain.Identity) *domain.ResolvedSession {
	role := domain.NormalizeRole(string(ident.Role))
	return &domain.ResolvedSession{
		IdentityID:  ident.ID,
		TelegramID:  ident.TelegramID,
		DisplayName: ident.DisplayName,
		Role:        role,
		Stamp:       ident.SecurityStamp,
		IsStaff:     role.IsStaff(),
		MerchantID:  res.merchantScope(r, ident),
	}
}

// merchantScope resuelve el tenant-scope efectivo: override explícito del
// request, o el merchant propio si la identidad es dueña, o la primera
// membresía de equipo.
func (res *Resolver) merchantScope(r *http.Request, ident *domain.Identity) string {
	if v := strings.TrimSpace(r.Header.Get(HeaderMerchant)); v != "" {
		return v
	}
	if ident.MerchantID != "" {
		return ident.MerchantID
	}
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()
	m, err := res.repo.FirstTeamMerchant(ctx, ident.ID)
	if err != nil {
		// el scope no decide autenticación: degradar a sin-tenant
		logger.From(r.Context()).Warn("team membership lookup failed", logger.Err(err))
		return ""
	}
	return m
}

// ─────────────── estrategias ───────────────

// headerStrategy es el fast path de proxy confiable: el gatekeeper ya
// verificó la firma, acá sólo se re-chequea el stamp contra la identidad
// (posiblemente cacheada).
type headerStrategy struct{ res *Resolver }

func (s *headerStrategy) Name() string { return TransportHeader }

func (s *headerStrategy) Resolve(r *http.Request) (*domain.ResolvedSession, bool) {
	if !headersTrusted(r.Context()) {
		return nil, false
	}
	id := strings.TrimSpace(r.Header.Get(HeaderIdentity))
	if id == "" {
		return nil, false
	}
	ident, err := s.res.loader.Load(r.Context(), id)
	if err != nil {
		return nil, true
	}
	stamp := strings.TrimSpace(r.Header.Get(HeaderStamp))
	if stamp == "" || ident.SecurityStamp == "" || stamp != ident.SecurityStamp {
		return nil, true
	}
	return s.res.buildSession(r, ident), true
}

type cookieStrategy struct {
	res  *Resolver
	name string
}

func (s *cookieStrategy) Name() string { return TransportCookie }

func (s *cookieStrategy) Resolve(r *http.Request) (*domain.ResolvedSession, bool) {
	ck, err := r.Cookie(s.name)
	if err != nil || strings.TrimSpace(ck.Value) == "" {
		return nil, false
	}
	return s.res.fromToken(r, ck.Value), true
}

// bearerStrategy es el fallback para clientes que no pueden persistir
// cookies (storage del webview sandboxeado).
type bearerStrategy struct{ res *Resolver }

func (s *bearerStrategy) Name() string { return TransportBearer }

func (s *bearerStrategy) Resolve(r *http.Request) (*domain.ResolvedSession, bool) {
	ah := strings.TrimSpace(r.Header.Get("Authorization"))
	if ah == "" || !strings.HasPrefix(strings.ToLower(ah), "bearer ") {
		return nil, false
	}
	raw := strings.TrimSpace(ah[len("Bearer "):])
	if raw == "" {
		return nil, false
	}
	return s.res.fromToken(r, raw), true
}
