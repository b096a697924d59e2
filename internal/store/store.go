package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/dropDatabas3/telepass/internal/domain/repository"
	"github.com/dropDatabas3/telepass/internal/store/memory"
	"github.com/dropDatabas3/telepass/internal/store/pg"
)

// Repository agrupa los repos que posee este subsistema.
type Repository interface {
	repository.IdentityRepository
	repository.LoginTokenRepository

	// Ping verifica la conexión al backing store.
	Ping(ctx context.Context) error

	// Close libera recursos (idempotente).
	Close()
}

type Config struct {
	Driver   string
	DSN      string
	Postgres pg.Config
}

// Open crea el repositorio según el driver configurado.
// "memory" existe sólo para dev/tests: no sobrevive reinicios.
func Open(ctx context.Context, cfg Config) (Repository, error) {
	switch strings.ToLower(cfg.Driver) {
	case "postgres", "pg", "postgresql", "":
		return pg.New(ctx, cfg.DSN, cfg.Postgres)
	case "memory":
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}
}
