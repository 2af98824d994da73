package data

import (
	"context"
	"fmt"
	"time"

	"github.com/kingshare/transfer-backend/internal/conf"
	"github.com/kingshare/transfer-backend/internal/pkg/database"
	"github.com/kingshare/transfer-backend/internal/pkg/logger"
	"github.com/kingshare/transfer-backend/internal/pkg/minio"
	"github.com/kingshare/transfer-backend/internal/pkg/redis"
	transferdata "github.com/kingshare/transfer-backend/internal/transfer/data"
	"go.uber.org/zap"
)

// startupTimeout bounds the connectivity checks run by NewData.
const startupTimeout = 15 * time.Second

// Data holds the shared infrastructure clients. DB is nil with the memory
// storage driver and Redis is nil when redis is disabled.
type Data struct {
	DB     *database.DB
	Redis  *redis.Client
	MinIO  *minio.Client
	Logger *logger.Logger
}

func NewData(config *conf.Config, log *logger.Logger) (*Data, func(), error) {
	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	d := &Data{Logger: log}
	cleanup := func() {
		log.Info("cleaning up data resources")

		if d.DB != nil {
			if err := d.DB.Close(); err != nil {
				log.Warn("failed to close database", zap.Error(err))
			}
		}
		if d.Redis != nil {
			if err := d.Redis.Close(); err != nil {
				log.Warn("failed to close redis", zap.Error(err))
			}
		}
		if d.MinIO != nil {
			_ = d.MinIO.Close()
		}
	}

	// Initialize PostgreSQL
	if config.Transfer.StorageDriver == "postgres" {
		db, err := database.New(&config.Database, log)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to init database: %w", err)
		}
		d.DB = db

		if config.Database.AutoMigrate {
			if err := db.AutoMigrate(transferdata.Models()...); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("failed to auto migrate: %w", err)
			}
		}
	}

	// Initialize Redis
	if config.Redis.Enabled {
		rdb, err := redis.New(&config.Redis.Config, log)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		d.Redis = rdb
	}

	// Initialize MinIO
	mc, err := minio.NewClient(&config.MinIO, log.Logger)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("failed to init minio: %w", err)
	}
	d.MinIO = mc
	if err := mc.EnsureBucket(ctx); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("failed to ensure bucket: %w", err)
	}

	log.Info("data layer initialized",
		zap.String("storage_driver", config.Transfer.StorageDriver),
		zap.Bool("redis", d.Redis != nil))
	return d, cleanup, nil
}

// HealthCheck pings every configured backend and reports failures by name.
func (d *Data) HealthCheck(ctx context.Context) map[string]string {
	status := make(map[string]string)
	check := func(name string, fn func(context.Context) error) {
		if err := fn(ctx); err != nil {
			status[name] = err.Error()
			return
		}
		status[name] = "ok"
	}

	if d.DB != nil {
		check("database", d.DB.HealthCheck)
	}
	if d.Redis != nil {
		check("redis", d.Redis.Ping)
	}
	return status
}
