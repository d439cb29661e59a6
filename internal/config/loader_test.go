package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFromFile_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
database:
  postgres:
    host: db.internal
    user: pusher
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Database.Postgres.Host)
	assert.Equal(t, 5432, cfg.Database.Postgres.Port)
	assert.Equal(t, "disable", cfg.Database.Postgres.SSLMode)
	assert.Equal(t, 8, cfg.Dispatch.Workers)
	assert.Equal(t, 1, cfg.Dispatch.MaxAttempts)
	assert.Equal(t, "memory", cfg.Queue.Driver)
	assert.Equal(t, "log", cfg.Gateway.Provider)
	assert.Equal(t, "campaign_dispatch", cfg.Queue.DispatchTopic)
	assert.Equal(t, 5*time.Minute, GetDuration(cfg.Dispatch.StaleAfter))
}

func TestLoadFromFile_EnvOverrides(t *testing.T) {
	path := writeConfig(t, `
dispatch:
  workers: 4
`)
	t.Setenv("DISPATCH_WORKERS", "16")
	t.Setenv("DB_USER", "legacy-user")
	t.Setenv("DB_PORT", "6543")

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, 16, cfg.Dispatch.Workers)
	assert.Equal(t, "legacy-user", cfg.Database.Postgres.User)
	assert.Equal(t, 6543, cfg.Database.Postgres.Port)
}

func TestLoadFromFile_ExpandsPlaceholders(t *testing.T) {
	t.Setenv("TEST_FCM_KEY", "secret-key")
	path := writeConfig(t, `
gateway:
  provider: fcm
  fcm:
    server_key: ${TEST_FCM_KEY}
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "secret-key", cfg.Gateway.FCM.ServerKey)
}

func TestLoadFromFile_Validation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name:    "unknown gateway",
			body:    "gateway:\n  provider: carrier-pigeon\n",
			wantErr: "gateway.provider",
		},
		{
			name:    "fcm without key",
			body:    "gateway:\n  provider: fcm\n",
			wantErr: "gateway.fcm.server_key",
		},
		{
			name:    "unknown queue driver",
			body:    "queue:\n  driver: kafka\n",
			wantErr: "queue.driver",
		},
		{
			name:    "zero stale window",
			body:    "dispatch:\n  stale_after: 0\n",
			wantErr: "dispatch.stale_after",
		},
		{
			name:    "stale window shorter than checkpoints",
			body:    "dispatch:\n  checkpoint_interval: 60000\n  stale_after: 120000\n",
			wantErr: "dispatch.stale_after",
		},
		{
			name:    "stale window shorter than gateway timeout",
			body:    "gateway:\n  timeout: 30000\ndispatch:\n  stale_after: 60000\n",
			wantErr: "dispatch.stale_after",
		},
		{
			name:    "zero workers",
			body:    "dispatch:\n  workers: 0\n",
			wantErr: "dispatch.workers",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromFile(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadFromFile_MissingFile(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
