// Package cache provee abstracciones para caching con soporte multi-backend.
//
// Soporta:
//   - Memory (in-process, para desarrollo/testing)
//   - Redis (distribuido, para producción)
//
// Además de TTL, las entradas pueden asociarse a tags: invalidar un tag
// borra todas sus entradas de inmediato. El resolver lo usa para que una
// rotación de stamp surta efecto sin esperar el vencimiento del TTL.
package cache

import (
	"context"
	"time"
)

// Cache define las operaciones de cache.
// Los errores de backend degradan a "miss": el caller nunca debe
// distinguir entre cache caído y cache vacío.
type Cache interface {
	// Get obtiene un valor. ok=false si no existe o el backend falló.
	Get(ctx context.Context, key string) (value []byte, ok bool)

	// Set guarda un valor con TTL y tags opcionales.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration, tags ...string)

	// Delete elimina una key.
	Delete(ctx context.Context, key string)

	// InvalidateTag elimina todas las keys asociadas al tag.
	InvalidateTag(ctx context.Context, tag string)

	// Close cierra la conexión.
	Close() error
}

// Config configuración para crear un cache.
type Config struct {
	Kind   string // "memory" | "redis"
	Addr   string
	DB     int
	Prefix string
}
