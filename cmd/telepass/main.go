package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dropDatabas3/telepass/internal/cache"
	"github.com/dropDatabas3/telepass/internal/cache/redis"
	"github.com/dropDatabas3/telepass/internal/config"
	"github.com/dropDatabas3/telepass/internal/domain"
	httpserver "github.com/dropDatabas3/telepass/internal/http"
	authctrl "github.com/dropDatabas3/telepass/internal/http/controllers/auth"
	healthctrl "github.com/dropDatabas3/telepass/internal/http/controllers/health"
	mw "github.com/dropDatabas3/telepass/internal/http/middlewares"
	"github.com/dropDatabas3/telepass/internal/http/router"
	authsvc "github.com/dropDatabas3/telepass/internal/http/services/auth"
	"github.com/dropDatabas3/telepass/internal/observability/logger"
	"github.com/dropDatabas3/telepass/internal/rate"
	"github.com/dropDatabas3/telepass/internal/session"
	"github.com/dropDatabas3/telepass/internal/store"
	"github.com/dropDatabas3/telepass/internal/store/pg"
	"github.com/dropDatabas3/telepass/internal/telegram"
	migrations "github.com/dropDatabas3/telepass/migrations/postgres"
)

func main() {
	// .env es opcional: en deploys reales la config viene del entorno
	_ = godotenv.Load()

	var configPath string

	root := &cobra.Command{
		Use:   "telepass",
		Short: "Identidad y sesiones para Mini Apps de Telegram",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "ruta al YAML de configuración (opcional)")

	root.AddCommand(serveCmd(&configPath))
	root.AddCommand(migrateCmd(&configPath))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	cfg := config.FromEnv()
	if cfg.Telegram.BotToken == "" || cfg.Session.SigningSecret == "" {
		return nil, fmt.Errorf("faltan TELEGRAM_BOT_TOKEN o SESSION_SIGNING_SECRET (o usar --config)")
	}
	return cfg, nil
}

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Levanta el servidor HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			logger.Init(logger.Config{
				Env:         cfg.App.Env,
				Level:       cfg.Log.Level,
				ServiceName: "telepass",
			})
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return run(ctx, cfg)
		},
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	log := logger.L()

	repo, err := store.Open(ctx, store.Config{
		Driver: cfg.Storage.Driver,
		DSN:    cfg.Storage.DSN,
		Postgres: pg.Config{
			MaxConns:    cfg.Storage.Postgres.MaxConns,
			ConnTimeout: config.MustDuration(cfg.Storage.Postgres.ConnTimeout, 3*time.Second),
		},
	})
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer repo.Close()

	identityTTL := config.MustDuration(cfg.Cache.IdentityTTL, 5*time.Minute)
	c := cache.New(cache.Config{
		Kind:   cfg.Cache.Kind,
		Addr:   cfg.Cache.Redis.Addr,
		DB:     cfg.Cache.Redis.DB,
		Prefix: cfg.Cache.Redis.Prefix,
	}, identityTTL)
	defer func() { _ = c.Close() }()

	// núcleo de sesiones
	verifier := telegram.NewVerifier(cfg.Telegram.BotToken,
		config.MustDuration(cfg.Telegram.MaxAuthAge, telegram.DefaultMaxAuthAge))
	stamps := session.NewStampRegistry(repo, c)
	issuer := session.NewIssuer(cfg.Session.SigningSecret, cfg.Session.Issuer,
		config.MustDuration(cfg.Session.PrivilegedTTL, 24*time.Hour),
		config.MustDuration(cfg.Session.DefaultTTL, 7*24*time.Hour),
		stamps)
	loader := session.NewIdentityLoader(repo, c, identityTTL)
	resolver := session.NewResolver(issuer, loader, repo, session.ResolverOptions{
		CookieName:  cfg.Session.CookieName,
		AllowBearer: cfg.Session.AllowBearer,
	})
	cookie := session.CookiePolicy{Name: cfg.Session.CookieName, Secure: true}

	// rate limiting: sólo con backend redis compartido
	var handshakeLimiter, redeemLimiter rate.Limiter
	if rc, ok := c.(*redis.Cache); ok && cfg.Rate.Enabled {
		handshakeLimiter = rate.NewRedisLimiter(rc.Client(), "rl:handshake",
			cfg.Rate.Handshake.Limit, config.MustDuration(cfg.Rate.Handshake.Window, time.Minute))
		redeemLimiter = rate.NewRedisLimiter(rc.Client(), "rl:redeem",
			cfg.Rate.Redeem.Limit, config.MustDuration(cfg.Rate.Redeem.Window, time.Minute))
	} else if cfg.Rate.Enabled {
		log.Warn("rate limiting pedido pero el cache no es redis; deshabilitado")
	}

	services := authsvc.NewServices(authsvc.Deps{
		Verifier:   verifier,
		Identities: repo,
		Tokens:     repo,
		Issuer:     issuer,
		Stamps:     stamps,
		OneTimeTTL: config.MustDuration(cfg.Session.OneTimeTTL, 10*time.Minute),
	})
	controllers := authctrl.NewControllers(services, authctrl.Options{
		Cookie:      cookie,
		Resolver:    resolver,
		AllowBearer: cfg.Session.AllowBearer,
		BotAPIKey:   cfg.Telegram.BotAPIKey,
	})

	zones := make([]mw.Zone, 0, len(cfg.Gatekeeper.Zones))
	for _, z := range cfg.Gatekeeper.Zones {
		zones = append(zones, mw.Zone{Prefix: z.Prefix, Role: domain.NormalizeRole(z.Role)})
	}
	gk := mw.NewGatekeeper(mw.GatekeeperConfig{
		Resolver:       resolver,
		Cookie:         cookie,
		TTLForRole:     issuer.TTLForRole,
		LoginPath:      cfg.Gatekeeper.LoginPath,
		PublicPrefixes: cfg.Gatekeeper.PublicPrefixes,
		Zones:          zones,
		Maintenance:    func() bool { return cfg.App.Maintenance },
	})

	health := healthctrl.NewHealthController(map[string]healthctrl.Pinger{
		"store": repo,
	})

	handler := router.New(router.Deps{
		Auth:             controllers,
		Health:           health,
		Gatekeeper:       gk,
		HandshakeLimiter: handshakeLimiter,
		RedeemLimiter:    redeemLimiter,
	})

	srv := httpserver.NewServer(handler, httpserver.Options{
		Addr:         cfg.Server.Addr,
		ReadTimeout:  config.MustDuration(cfg.Server.ReadTimeout, 10*time.Second),
		WriteTimeout: config.MustDuration(cfg.Server.WriteTimeout, 30*time.Second),
	})
	return srv.Run(ctx)
}

func migrateCmd(configPath *string) *cobra.Command {
	var down bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Aplica las migraciones embebidas (postgres)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if cfg.Storage.DSN == "" {
				return fmt.Errorf("storage.dsn es requerido para migrar")
			}

			ctx := context.Background()
			pool, err := pgxpool.New(ctx, cfg.Storage.DSN)
			if err != nil {
				return fmt.Errorf("pgxpool: %w", err)
			}
			defer pool.Close()

			suffix := "_up.sql"
			if down {
				suffix = "_down.sql"
			}
			files, err := listMigrations(suffix)
			if err != nil {
				return err
			}
			if down {
				// los down corren en orden inverso
				for i, j := 0, len(files)-1; i < j; i, j = i+1, j-1 {
					files[i], files[j] = files[j], files[i]
				}
			}
			for _, f := range files {
				b, err := migrations.FS.ReadFile(f)
				if err != nil {
					return err
				}
				if _, err := pool.Exec(ctx, string(b)); err != nil {
					return fmt.Errorf("exec %s: %w", f, err)
				}
				fmt.Printf("applied %s\n", f)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&down, "down", false, "revierte en vez de aplicar")
	return cmd
}

func listMigrations(suffix string) ([]string, error) {
	entries, err := migrations.FS.ReadDir(".")
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), suffix) {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}
