package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8083", cfg.Server.Port)
	assert.Equal(t, "projectchat", cfg.Mongo.Database)
	assert.Equal(t, 5*time.Second, cfg.Mongo.Timeout)
	assert.Equal(t, 256, cfg.WS.SendBuffer)
	assert.Equal(t, 30*time.Second, cfg.WS.PingInterval)
	assert.Equal(t, time.Duration(0), cfg.Assistant.Timeout)
	assert.False(t, cfg.Assistant.FailureNotice)
	assert.Equal(t, uint32(5), cfg.Assistant.BreakerFailures)
	assert.Empty(t, cfg.Redis.Addr)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("PORT", "9999")
	t.Setenv("AI_TIMEOUT", "45s")
	t.Setenv("AI_FAILURE_NOTICE", "true")
	t.Setenv("WS_SEND_BUFFER", "8")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("MONGO_TIMEOUT", "750ms")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9999", cfg.Server.Port)
	assert.Equal(t, 45*time.Second, cfg.Assistant.Timeout)
	assert.True(t, cfg.Assistant.FailureNotice)
	assert.Equal(t, 8, cfg.WS.SendBuffer)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 750*time.Millisecond, cfg.Mongo.Timeout)
}

func TestLoadFromConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("JWT_SECRET: from-file\nGEMINI_MODEL: gemini-test\n"), 0o600))
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "from-file", cfg.JWT.Secret)
	assert.Equal(t, "gemini-test", cfg.Assistant.Model)
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestValidateRejectsBadBuffer(t *testing.T) {
	cfg := &Config{
		JWT:      JWTConfig{Secret: "x"},
		Postgres: PostgresConfig{DSN: "dsn"},
		WS:       WSConfig{SendBuffer: 0, MaxMessageBytes: 1, PingInterval: time.Second},
	}
	assert.Error(t, cfg.Validate())
}
