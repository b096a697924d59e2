package redis

import (
	"context"
	"time"

	rdb "github.com/redis/go-redis/v9"
)

type Cache struct {
	c      *rdb.Client
	prefix string
}

func New(addr string, db int, prefix string) *Cache {
	return &Cache{
		c:      rdb.NewClient(&rdb.Options{Addr: addr, DB: db}),
		prefix: prefix,
	}
}

func (r *Cache) key(k string) string    { return r.prefix + k }
func (r *Cache) tagKey(t string) string { return r.prefix + "tag:" + t }

func (r *Cache) Get(ctx context.Context, k string) ([]byte, bool) {
	b, err := r.c.Get(ctx, r.key(k)).Bytes()
	if err != nil {
		return nil, false
	}
	return b, true
}

func (r *Cache) Set(ctx context.Context, k string, v []byte, ttl time.Duration, tags ...string) {
	pipe := r.c.TxPipeline()
	pipe.Set(ctx, r.key(k), v, ttl)
	for _, t := range tags {
		tk := r.tagKey(t)
		pipe.SAdd(ctx, tk, r.key(k))
		// el set de tag vive al menos tanto como sus miembros
		pipe.Expire(ctx, tk, ttl+time.Minute)
	}
	_, _ = pipe.Exec(ctx)
}

func (r *Cache) Delete(ctx context.Context, k string) {
	_ = r.c.Del(ctx, r.key(k)).Err()
}

func (r *Cache) InvalidateTag(ctx context.Context, tag string) {
	tk := r.tagKey(tag)
	members, err := r.c.SMembers(ctx, tk).Result()
	if err != nil {
		return
	}
	keys := append(members, tk)
	_ = r.c.Del(ctx, keys...).Err()
}

func (r *Cache) Close() error { return r.c.Close() }

// Client expone el cliente Redis subyacente (lo comparte el rate limiter).
func (r *Cache) Client() *rdb.Client { return r.c }
