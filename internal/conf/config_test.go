package conf

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

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, `
auth:
  jwt_secret: test-secret
minio:
  access_key_id: ak
  secret_access_key: sk
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
	assert.Equal(t, "postgres", cfg.Transfer.StorageDriver)
	assert.Equal(t, 365, cfg.Transfer.MaxExpirationDays)
	assert.Equal(t, time.Hour, cfg.Transfer.SweepInterval)
	assert.Equal(t, "transfers", cfg.MinIO.Bucket)
	assert.Equal(t, "ak", cfg.MinIO.AccessKeyID)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "kingshare", cfg.Database.DBName)
	assert.Equal(t, 16, cfg.Notify.Workers)
}

func TestLoadConfigOverrides(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
auth:
  jwt_secret: from-file
transfer:
  storage_driver: memory
  sweep_interval: 5m
redis:
  enabled: false
  addr: redis:6380
`)
	t.Setenv("KINGSHARE_AUTH_JWT_SECRET", "from-env")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
	assert.Equal(t, "memory", cfg.Transfer.StorageDriver)
	assert.Equal(t, 5*time.Minute, cfg.Transfer.SweepInterval)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, "redis:6380", cfg.Redis.Addr)
}

func TestLoadConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing jwt secret", "server:\n  port: 1\n"},
		{"unknown storage driver", "auth:\n  jwt_secret: x\ntransfer:\n  storage_driver: mongo\n"},
		{"email without host", "auth:\n  jwt_secret: x\nemail:\n  enabled: true\n"},
		{"geoip endpoint without placeholder", "auth:\n  jwt_secret: x\ngeoip:\n  enabled: true\n  endpoint: http://geo\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
