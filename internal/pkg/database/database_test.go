package database

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/kingshare/transfer-backend/internal/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config { return DefaultConfig() }

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"default config", func(c *Config) {}, false},
		{"missing host", func(c *Config) { c.Host = "" }, true},
		{"invalid port", func(c *Config) { c.Port = 0 }, true},
		{"missing user", func(c *Config) { c.User = "" }, true},
		{"invalid SSL mode", func(c *Config) { c.SSLMode = "maybe" }, true},
		{"invalid log level", func(c *Config) { c.LogLevel = "trace" }, true},
		{"idle exceeds open", func(c *Config) { c.MaxIdleConns, c.MaxOpenConns = 100, 10 }, true},
		{"negative retries", func(c *Config) { c.TxMaxRetries = -1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Config.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfigDSN(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Password = "secret"

	dsn := cfg.DSN()
	for _, part := range []string{"host=localhost", "port=5432", "password=secret", "dbname=kingshare", "sslmode=disable", "TimeZone=UTC"} {
		assert.Contains(t, dsn, part)
	}
}

func TestIsDuplicateKeyError(t *testing.T) {
	assert.False(t, IsDuplicateKeyError(nil))
	assert.True(t, IsDuplicateKeyError(gorm.ErrDuplicatedKey))
	assert.True(t, IsDuplicateKeyError(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})))
	assert.False(t, IsDuplicateKeyError(errors.New("duplicate key")))
}

func TestIsRecordNotFoundError(t *testing.T) {
	assert.False(t, IsRecordNotFoundError(nil))
	assert.True(t, IsRecordNotFoundError(fmt.Errorf("get: %w", gorm.ErrRecordNotFound)))
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil error", nil, false},
		{"serialization failure", &pgconn.PgError{Code: "40001"}, true},
		{"deadlock", fmt.Errorf("wrapped: %w", &pgconn.PgError{Code: "40P01"}), true},
		{"unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"plain error", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isRetryableError(tt.err))
		})
	}
}

func TestOrderByDryRun(t *testing.T) {
	db := newDryRunDB(t)

	type row struct{ ID string }
	var rows []row
	sql := db.Table("transfers").Scopes(OrderBy("created_at", true)).Find(&rows).Statement.SQL.String()
	assert.Contains(t, sql, "ORDER BY created_at DESC")

	sql = db.Table("transfers").Scopes(OrderBy("expires_at", false)).Find(&rows).Statement.SQL.String()
	assert.Contains(t, sql, "ORDER BY expires_at")
	assert.NotContains(t, sql, "DESC")
}

func newDryRunDB(t *testing.T) *gorm.DB {
	t.Helper()

	cfg := DefaultConfig()
	cfg.PrepareStmt = false
	db, err := Open(postgres.New(postgres.Config{DSN: cfg.DSN()}), cfg, logger.NewNop())
	require.NoError(t, err)
	return db.Session(&gorm.Session{DryRun: true})
}
