package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
auth:
  secret: test-secret
database:
  user: messenger
  name: messenger
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":8000", cfg.Server.Addr)
	assert.Equal(t, []string{"http://localhost:5173", "http://localhost:3000"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "messenger:session:", cfg.Redis.Prefix)
	assert.Equal(t, 120, cfg.Auth.TokenTTLMinutes)
	assert.Equal(t, "uploads", cfg.Uploads.Dir)
	assert.Equal(t, 1024, cfg.Socket.ReadBufferSize)
}

func TestLoadExpandsEnvVars(t *testing.T) {
	t.Setenv("TEST_DB_PASSWORD", "s3cret")
	path := writeConfig(t, `
auth:
  secret: test-secret
database:
  user: messenger
  name: messenger
  password: ${TEST_DB_PASSWORD}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.Database.Password)
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("REDIS_ADDR", "redis.internal:6380")
	t.Setenv("MESSENGER_ADDR", ":9000")
	path := writeConfig(t, `
server:
  addr: ":8000"
auth:
  secret: test-secret
database:
  user: messenger
  name: messenger
redis:
  addr: "localhost:6379"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "redis.internal:6380", cfg.Redis.Addr)
	assert.Equal(t, ":9000", cfg.Server.Addr)
}

func TestLoadRejectsMissingSecret(t *testing.T) {
	path := writeConfig(t, `
database:
  user: messenger
  name: messenger
`)

	_, err := Load(path)
	assert.ErrorContains(t, err, "auth.secret")
}

func TestLoadRejectsBadPoolBounds(t *testing.T) {
	path := writeConfig(t, `
auth:
  secret: test-secret
database:
  user: messenger
  name: messenger
  min_conns: 10
  max_conns: 2
`)

	_, err := Load(path)
	assert.ErrorContains(t, err, "max_conns")
}

func TestConnString(t *testing.T) {
	cfg := DatabaseConfig{
		Host: "db", Port: 5432, User: "u", Password: "p", Name: "messenger", SSLMode: "disable",
	}
	assert.Equal(t, "postgres://u:p@db:5432/messenger?sslmode=disable", cfg.ConnString())
}
