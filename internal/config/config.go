package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// Bloque app (opcional en YAML). Si no está, queda vacío.
	App struct {
		// dev | staging | prod
		Env string `yaml:"env"`
		// Flag de mantenimiento: si está activo, el gatekeeper responde 503
		// en zonas protegidas (no afecta /healthz ni /auth/*).
		Maintenance bool `yaml:"maintenance"`
	} `yaml:"app"`

	Server struct {
		Addr         string `yaml:"addr"`
		ReadTimeout  string `yaml:"read_timeout"`
		WriteTimeout string `yaml:"write_timeout"`
	} `yaml:"server"`

	Storage struct {
		// postgres | memory (memory solo para dev/tests)
		Driver   string `yaml:"driver"`
		DSN      string `yaml:"dsn"`
		Postgres struct {
			MaxConns    int    `yaml:"max_conns"`
			ConnTimeout string `yaml:"conn_timeout"`
		} `yaml:"postgres"`
	} `yaml:"storage"`

	Cache struct {
		Kind  string `yaml:"kind"` // memory | redis
		Redis struct {
			Addr   string `yaml:"addr"`
			DB     int    `yaml:"db"`
			Prefix string `yaml:"prefix"`
		} `yaml:"redis"`
		// TTL del cache de identidades usado por el resolver.
		IdentityTTL string `yaml:"identity_ttl"`
	} `yaml:"cache"`

	Telegram struct {
		// Token del bot: la clave de verificación del handshake se deriva de él.
		BotToken string `yaml:"bot_token"`
		// Ventana de frescura para auth_date (anti-replay).
		MaxAuthAge string `yaml:"max_auth_age"`
		// API key que el bot usa para acuñar one-time tokens.
		BotAPIKey string `yaml:"bot_api_key"`
	} `yaml:"telegram"`

	Session struct {
		// Secreto simétrico para firmar tokens de sesión (HS256).
		SigningSecret string `yaml:"signing_secret"`
		Issuer        string `yaml:"issuer"`
		CookieName    string `yaml:"cookie_name"`
		// TTL corto para roles privilegiados (support/manager/admin).
		PrivilegedTTL string `yaml:"privileged_ttl"`
		// TTL largo para el resto.
		DefaultTTL string `yaml:"default_ttl"`
		// TTL de los one-time login tokens.
		OneTimeTTL string `yaml:"onetime_ttl"`
		// Permitir Authorization: Bearer como transporte alternativo.
		AllowBearer bool `yaml:"allow_bearer"`
	} `yaml:"session"`

	Gatekeeper struct {
		// Ruta del login surface al que se redirige en fallos.
		LoginPath string `yaml:"login_path"`
		// Prefijos públicos adicionales a la allow-list built-in.
		PublicPrefixes []string `yaml:"public_prefixes"`
		// Zonas protegidas: prefijo -> rol mínimo. Se evalúan en orden
		// de prefijo más largo primero.
		Zones []Zone `yaml:"zones"`
	} `yaml:"gatekeeper"`

	Rate struct {
		Enabled   bool `yaml:"enabled"`
		Handshake struct {
			Limit  int    `yaml:"limit"`
			Window string `yaml:"window"`
		} `yaml:"handshake"`
		Redeem struct {
			Limit  int    `yaml:"limit"`
			Window string `yaml:"window"`
		} `yaml:"redeem"`
	} `yaml:"rate"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// Zone asocia un prefijo de ruta con el rol mínimo requerido.
type Zone struct {
	Prefix string `yaml:"prefix"`
	Role   string `yaml:"role"`
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	c.applyEnv()
	c.applyDefaults()
	return &c, c.validate()
}

// FromEnv arma una configuración sin archivo YAML (deploys solo-ENV).
func FromEnv() *Config {
	c := &Config{}
	c.applyEnv()
	c.applyDefaults()
	return c
}

// applyEnv pisa valores sensibles con variables de entorno si están presentes.
// Los secretos nunca deberían vivir en el YAML commiteado.
func (c *Config) applyEnv() {
	if v := getenv("SERVER_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := getenv("STORAGE_DSN"); v != "" {
		c.Storage.DSN = v
	}
	if v := getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Telegram.BotToken = v
	}
	if v := getenv("TELEGRAM_BOT_API_KEY"); v != "" {
		c.Telegram.BotAPIKey = v
	}
	if v := getenv("SESSION_SIGNING_SECRET"); v != "" {
		c.Session.SigningSecret = v
	}
	if v := getenv("CACHE_REDIS_ADDR"); v != "" {
		c.Cache.Redis.Addr = v
		if c.Cache.Kind == "" {
			c.Cache.Kind = "redis"
		}
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := getenv("APP_ENV"); v != "" {
		c.App.Env = v
	}
	if v := getenv("APP_MAINTENANCE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.App.Maintenance = b
		}
	}
}

// sane defaults
func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ReadTimeout == "" {
		c.Server.ReadTimeout = "10s"
	}
	if c.Server.WriteTimeout == "" {
		c.Server.WriteTimeout = "30s"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "postgres"
	}
	if c.Storage.Postgres.MaxConns == 0 {
		c.Storage.Postgres.MaxConns = 10
	}
	if c.Storage.Postgres.ConnTimeout == "" {
		c.Storage.Postgres.ConnTimeout = "3s"
	}
	if c.Cache.Kind == "" {
		c.Cache.Kind = "memory"
	}
	if c.Cache.IdentityTTL == "" {
		c.Cache.IdentityTTL = "5m"
	}
	if c.Telegram.MaxAuthAge == "" {
		c.Telegram.MaxAuthAge = "24h"
	}
	if c.Session.Issuer == "" {
		c.Session.Issuer = "telepass"
	}
	if c.Session.CookieName == "" {
		c.Session.CookieName = "tp_session"
	}
	if c.Session.PrivilegedTTL == "" {
		c.Session.PrivilegedTTL = "24h"
	}
	if c.Session.DefaultTTL == "" {
		c.Session.DefaultTTL = "168h" // 7d
	}
	if c.Session.OneTimeTTL == "" {
		c.Session.OneTimeTTL = "10m"
	}
	if c.Gatekeeper.LoginPath == "" {
		c.Gatekeeper.LoginPath = "/login"
	}
	if c.Rate.Handshake.Limit == 0 {
		c.Rate.Handshake.Limit = 20
	}
	if c.Rate.Handshake.Window == "" {
		c.Rate.Handshake.Window = "1m"
	}
	if c.Rate.Redeem.Limit == 0 {
		c.Rate.Redeem.Limit = 10
	}
	if c.Rate.Redeem.Window == "" {
		c.Rate.Redeem.Window = "1m"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

func (c *Config) validate() error {
	if c.Telegram.BotToken == "" {
		return fmt.Errorf("config: telegram.bot_token es requerido (o env TELEGRAM_BOT_TOKEN)")
	}
	if c.Session.SigningSecret == "" {
		return fmt.Errorf("config: session.signing_secret es requerido (o env SESSION_SIGNING_SECRET)")
	}
	return nil
}

// MustDuration parsea una duración de config ya validada en Load.
// Si el valor es inválido devuelve el default en vez de abortar.
func MustDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func getenv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}
