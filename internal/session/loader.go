package session

import (
	"context"
	"encoding/json"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dropDatabas3/telepass/internal/cache"
	"github.com/dropDatabas3/telepass/internal/domain"
	"github.com/dropDatabas3/telepass/internal/domain/repository"
)

const (
	identityKeyPrefix = "identity:"
	// storeTimeout acota las llamadas al backing store durante un resolve:
	// timeout se trata igual que un fallo de resolución (fail closed).
	storeTimeout = 2 * time.Second
)

func identityKey(id string) string { return identityKeyPrefix + id }

// identityTag es el tag de invalidación: una mutación de la identidad
// (rotación de stamp, cambio de rol) borra la entrada al instante.
func identityTag(id string) string { return identityKeyPrefix + id }

// IdentityLoader sirve lookups de identidad a través de un cache corto con
// invalidación por tag, para que el store no reciba un hit por cada
// request. singleflight deduplica cargas concurrentes de la
// misma identidad.
type IdentityLoader struct {
	repo  repository.IdentityRepository
	cache cache.Cache
	ttl   time.Duration
	sf    singleflight.Group
}

func NewIdentityLoader(repo repository.IdentityRepository, c cache.Cache, ttl time.Duration) *IdentityLoader {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &IdentityLoader{repo: repo, cache: c, ttl: ttl}
}

// Load devuelve la identidad, de cache si está fresca.
func (l *IdentityLoader) Load(ctx context.Context, id string) (*domain.Identity, error) {
	if l.cache != nil {
		if b, ok := l.cache.Get(ctx, identityKey(id)); ok {
			var ident domain.Identity
			if err := json.Unmarshal(b, &ident); err == nil {
				return &ident, nil
			}
			// entrada corrupta: descartarla y recargar
			l.cache.Delete(ctx, identityKey(id))
		}
	}

	v, err, _ := l.sf.Do(id, func() (any, error) {
		sctx, cancel := context.WithTimeout(ctx, storeTimeout)
		defer cancel()

		ident, err := l.repo.GetByID(sctx, id)
		if err != nil {
			return nil, err
		}
		if l.cache != nil {
			if b, err := json.Marshal(ident); err == nil {
				l.cache.Set(ctx, identityKey(id), b, l.ttl, identityTag(id))
			}
		}
		return ident, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Identity), nil
}

// Invalidate expulsa la identidad del cache (mutación externa, ej: cambio
// de rol desde el dashboard).
func (l *IdentityLoader) Invalidate(ctx context.Context, id string) {
	if l.cache != nil {
		l.cache.InvalidateTag(ctx, identityTag(id))
	}
}
