package cache

import (
	"time"

	"github.com/dropDatabas3/telepass/internal/cache/memory"
	"github.com/dropDatabas3/telepass/internal/cache/redis"
)

// New crea un cache según la configuración. Driver desconocido o vacío
// degrada a memory.
func New(cfg Config, defaultTTL time.Duration) Cache {
	switch cfg.Kind {
	case "redis":
		return redis.New(cfg.Addr, cfg.DB, cfg.Prefix)
	default:
		return memory.New(defaultTTL)
	}
}
