package memory

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Mem es el backend in-process. El índice de tags se mantiene aparte del
// go-cache porque éste no expone agrupación de keys.
type Mem struct {
	c *gocache.Cache

	mu   sync.Mutex
	tags map[string]map[string]struct{} // tag -> set de keys
}

func New(defaultTTL time.Duration) *Mem {
	return &Mem{
		c:    gocache.New(defaultTTL, time.Minute),
		tags: make(map[string]map[string]struct{}),
	}
}

func (m *Mem) Get(ctx context.Context, k string) ([]byte, bool) {
	v, ok := m.c.Get(k)
	if !ok {
		return nil, false
	}
	b, _ := v.([]byte)
	return b, true
}

func (m *Mem) Set(ctx context.Context, k string, v []byte, ttl time.Duration, tags ...string) {
	m.c.Set(k, v, ttl)
	if len(tags) == 0 {
		return
	}
	m.mu.Lock()
	for _, t := range tags {
		set, ok := m.tags[t]
		if !ok {
			set = make(map[string]struct{})
			m.tags[t] = set
		}
		set[k] = struct{}{}
	}
	m.mu.Unlock()
}

func (m *Mem) Delete(ctx context.Context, k string) { m.c.Delete(k) }

func (m *Mem) InvalidateTag(ctx context.Context, tag string) {
	m.mu.Lock()
	set := m.tags[tag]
	delete(m.tags, tag)
	m.mu.Unlock()
	for k := range set {
		m.c.Delete(k)
	}
}

func (m *Mem) Close() error { return nil }
