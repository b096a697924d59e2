package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, yaml string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	return path
}

func TestLoad_DefaultsAndOverrides(t *testing.T) {
	path := writeConfig(t, `
telegram:
  bot_token: "110201543:AAHdqTcvCH1vGWJxfSeofSAs0K5PALDsaw"
session:
  signing_secret: "super-secreto"
  privileged_ttl: "12h"
gatekeeper:
  zones:
    - prefix: /merchant
      role: merchant
    - prefix: /admin
      role: manager
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	// defaults
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "postgres", cfg.Storage.Driver)
	assert.Equal(t, "memory", cfg.Cache.Kind)
	assert.Equal(t, "tp_session", cfg.Session.CookieName)
	assert.Equal(t, "24h", cfg.Telegram.MaxAuthAge)
	assert.Equal(t, "168h", cfg.Session.DefaultTTL)
	assert.Equal(t, "10m", cfg.Session.OneTimeTTL)
	assert.Equal(t, "/login", cfg.Gatekeeper.LoginPath)

	// overrides
	assert.Equal(t, "12h", cfg.Session.PrivilegedTTL)
	require.Len(t, cfg.Gatekeeper.Zones, 2)
	assert.Equal(t, "/merchant", cfg.Gatekeeper.Zones[0].Prefix)
	assert.Equal(t, "merchant", cfg.Gatekeeper.Zones[0].Role)
}

func TestLoad_RequiresSecrets(t *testing.T) {
	_, err := Load(writeConfig(t, `
session:
  signing_secret: "x"
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bot_token")

	_, err = Load(writeConfig(t, `
telegram:
  bot_token: "x"
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "signing_secret")
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("SESSION_SIGNING_SECRET", "desde-env")
	t.Setenv("SERVER_ADDR", ":9090")

	cfg, err := Load(writeConfig(t, `
server:
  addr: ":8080"
telegram:
  bot_token: "x"
session:
  signing_secret: "desde-archivo"
`))
	require.NoError(t, err)
	assert.Equal(t, "desde-env", cfg.Session.SigningSecret)
	assert.Equal(t, ":9090", cfg.Server.Addr)
}

func TestMustDuration(t *testing.T) {
	assert.Equal(t, 5*time.Minute, MustDuration("5m", time.Hour))
	assert.Equal(t, time.Hour, MustDuration("", time.Hour))
	assert.Equal(t, time.Hour, MustDuration("no-es-duración", time.Hour))
	assert.Equal(t, time.Hour, MustDuration("-3s", time.Hour))
}
