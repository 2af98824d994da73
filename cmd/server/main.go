package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/kingshare/transfer-backend/internal/auth"
	"github.com/kingshare/transfer-backend/internal/auth/middleware"
	"github.com/kingshare/transfer-backend/internal/conf"
	"github.com/kingshare/transfer-backend/internal/data"
	emailservice "github.com/kingshare/transfer-backend/internal/email/service"
	"github.com/kingshare/transfer-backend/internal/pkg/logger"
	"github.com/kingshare/transfer-backend/internal/pkg/workerpool"
	"github.com/kingshare/transfer-backend/internal/server"
	"github.com/kingshare/transfer-backend/internal/transfer/biz"
	transferdata "github.com/kingshare/transfer-backend/internal/transfer/data"
	"github.com/kingshare/transfer-backend/internal/transfer/service"
	"go.uber.org/zap"
)

var (
	configFile = flag.String("config", "configs/config.yaml", "config file path")
)

func main() {
	flag.Parse()

	// Load configuration
	config, err := conf.LoadConfig(*configFile)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log, err := logger.New(&config.Log)
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer func() { _ = log.Sync() }()
	logger.SetGlobal(log)

	log.Info("config loaded successfully",
		zap.String("config", *configFile),
		zap.String("storage_driver", config.Transfer.StorageDriver))

	// Initialize data layer
	d, cleanup, err := data.NewData(config, log)
	if err != nil {
		log.Fatal("failed to initialize data layer", zap.Error(err))
	}
	defer cleanup()

	// Initialize repositories
	var (
		transferRepo biz.TransferRepo
		approvalRepo biz.ApprovalRepo
		downloadRepo biz.DownloadRepo
	)
	if d.DB != nil {
		repo := transferdata.NewTransferRepo(d.DB)
		transferRepo, approvalRepo, downloadRepo = repo, repo, repo
	} else {
		log.Warn("using in-memory transfer store; data is lost on restart")
		store := transferdata.NewMemoryStore()
		transferRepo, approvalRepo, downloadRepo = store, store, store
	}
	blobs := transferdata.NewMinIOBlobStore(d.MinIO, config.MinIO.PresignExpiry, log)

	// Notifications
	pool, err := workerpool.New(&config.Notify, log.Logger)
	if err != nil {
		log.Fatal("failed to create notification pool", zap.Error(err))
	}
	defer pool.Shutdown()

	var notifier biz.Notifier = transferdata.NewLogNotifier(log)
	if config.Email.Enabled {
		sender, err := emailservice.NewEmailService(&config.Email.EmailConfig, log)
		if err != nil {
			log.Fatal("failed to initialize email service", zap.Error(err))
		}
		notifier = transferdata.NewEmailNotifier(sender, pool, config.Transfer.PublicBaseURL, log)
	}

	var geo biz.GeoResolver
	if config.GeoIP.Enabled {
		geo = transferdata.NewHTTPGeoResolver(transferdata.GeoConfig{
			Endpoint:  config.GeoIP.Endpoint,
			Timeout:   config.GeoIP.Timeout,
			CacheSize: config.GeoIP.CacheSize,
			CacheTTL:  config.GeoIP.CacheTTL,
		}, log)
	}

	// Initialize use cases
	opts := []biz.Option{biz.WithMaxExpirationDays(config.Transfer.MaxExpirationDays)}
	issuer := biz.NewTokenIssuer(transferRepo, nil)
	transferUseCase := biz.NewTransferUseCase(transferRepo, issuer, notifier, log, opts...)
	approvalUseCase := biz.NewApprovalUseCase(transferRepo, approvalRepo, notifier, log, opts...)
	tracker := biz.NewDownloadTracker(transferRepo, downloadRepo, geo, log, opts...)
	tracker.SetRecentLimit(config.Transfer.StatsRecentLimit)
	policy := biz.NewPolicyEvaluator(transferRepo, approvalUseCase, tracker, log)

	// Start sweeper
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sweeper := biz.NewSweeper(transferRepo, config.Transfer.SweepInterval, log, opts...)
	if err := sweeper.Start(ctx); err != nil {
		log.Fatal("failed to start expiry sweeper", zap.Error(err))
	}
	defer sweeper.Stop()

	// Initialize services
	var guard *middleware.PasswordGuard
	if config.RateLimit.Enabled {
		guard = middleware.NewPasswordGuard(d.Redis, config.RateLimit.PasswordMaxFailures, config.RateLimit.PasswordLockout)
	}
	transferService := service.NewTransferService(
		transferUseCase,
		approvalUseCase,
		tracker,
		policy,
		blobs,
		guard,
		service.Options{
			PublicBaseURL:  config.Transfer.PublicBaseURL,
			MaxUploadBytes: config.Transfer.MaxUploadBytes,
			MaxFiles:       config.Transfer.MaxFiles,
		},
		log,
	)

	jwtManager := auth.NewJWTManager(config.Auth.JWTSecret, config.Auth.JWTIssuer)
	httpServer := server.NewHTTPServer(config, log, jwtManager, d.Redis, transferService, d.HealthCheck)

	// Start server in goroutine
	go func() {
		if err := httpServer.Start(); err != nil {
			log.Fatal("failed to start HTTP server", zap.Error(err))
		}
	}()

	log.Info("server started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		log.Error("HTTP server forced to shutdown", zap.Error(err))
	}

	log.Info("server exited")
}
