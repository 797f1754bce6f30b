package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 168, cfg.Auth.TokenTTLHours)
	assert.Equal(t, "openai", cfg.AI.Provider)
	assert.Equal(t, "gpt-4o-mini", cfg.AI.Model)
	assert.Equal(t, 500, cfg.AI.MaxTokens)
	assert.InDelta(t, 0.8, cfg.AI.Temperature, 0.001)
	assert.Equal(t, 1000, cfg.Responder.MinDelayMs)
	assert.Equal(t, 2000, cfg.Responder.MaxDelayMs)
	assert.Equal(t, 10, cfg.Responder.WaitSeconds)
	assert.Equal(t, 10, cfg.Responder.HistoryLimit)
}

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokka.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[server]
port = 9999

[database]
url = "postgres://localhost/tokka_test"

[responder]
history_limit = 25
`), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "postgres://localhost/tokka_test", cfg.Database.URL)
	assert.Equal(t, 25, cfg.Responder.HistoryLimit)
	// Untouched sections keep their defaults
	assert.Equal(t, "gpt-4o-mini", cfg.AI.Model)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokka.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[server]
port = 9999
`), 0644))

	t.Setenv("TOKKA_SERVER_PORT", "7777")
	t.Setenv("TOKKA_DATABASE_URL", "postgres://env-wins/tokka")
	t.Setenv("TOKKA_AUTH_JWT_SECRET", "from-env")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 7777, cfg.Server.Port, "environment beats the file")
	assert.Equal(t, "postgres://env-wins/tokka", cfg.Database.URL)
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
}

func TestValidate(t *testing.T) {
	var cfg Config
	assert.Error(t, cfg.Validate(), "empty config must not validate")

	cfg.Database.URL = "postgres://localhost/tokka"
	assert.Error(t, cfg.Validate(), "jwt secret still missing")

	cfg.Auth.JWTSecret = "secret"
	assert.NoError(t, cfg.Validate())
}

func TestInitConfigRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokka.toml")
	require.NoError(t, InitConfig(path))

	// The sample must itself be loadable
	_, err := LoadConfig(path)
	assert.NoError(t, err)

	assert.Error(t, InitConfig(path), "existing file must not be clobbered")
}
