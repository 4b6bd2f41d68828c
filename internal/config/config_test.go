package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("IDENTITY_PROVIDER", "")
	t.Setenv("POSTGRES_OPERATION_TIMEOUT_MS", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "local", cfg.Identity.Provider)
	assert.Equal(t, 5*time.Second, cfg.Postgres.OperationTimeout())
	assert.Equal(t, 256, cfg.Chat.SendBuffer)
	assert.Equal(t, "Super Admin", cfg.Bootstrap.Name)
}

func TestLoadRejectsUnknownProvider(t *testing.T) {
	t.Setenv("IDENTITY_PROVIDER", "ldap")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadKeycloakNeedsServerURL(t *testing.T) {
	t.Setenv("IDENTITY_PROVIDER", "keycloak")
	t.Setenv("KEYCLOAK_SERVER_URL", "")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("KEYCLOAK_SERVER_URL", "http://keycloak:8080")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "account", cfg.Identity.Audience)
}

func TestGetEnvAsIntFallsBackOnGarbage(t *testing.T) {
	t.Setenv("CHAT_SEND_BUFFER", "lots")
	assert.Equal(t, 7, getEnvAsInt("CHAT_SEND_BUFFER", 7))
}
