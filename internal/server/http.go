package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/kingshare/transfer-backend/internal/auth"
	"github.com/kingshare/transfer-backend/internal/auth/middleware"
	"github.com/kingshare/transfer-backend/internal/conf"
	"github.com/kingshare/transfer-backend/internal/pkg/logger"
	"github.com/kingshare/transfer-backend/internal/pkg/redis"
	"github.com/kingshare/transfer-backend/internal/transfer/service"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// HealthFunc reports per-backend status; any value other than "ok" marks
// the service unhealthy.
type HealthFunc func(ctx context.Context) map[string]string

type HTTPServer struct {
	server *http.Server
	logger *logger.Logger
}

func NewHTTPServer(
	config *conf.Config,
	log *logger.Logger,
	jwtManager *auth.JWTManager,
	redisClient *redis.Client,
	transferService *service.TransferService,
	health HealthFunc,
) *HTTPServer {
	router := NewRouter(config, log, jwtManager, redisClient, transferService, health)

	return &HTTPServer{
		server: &http.Server{
			Addr:         config.Server.Addr(),
			Handler:      router,
			ReadTimeout:  config.Server.ReadTimeout,
			WriteTimeout: config.Server.WriteTimeout,
		},
		logger: log,
	}
}

// NewRouter builds the gin engine with middleware and routes.
func NewRouter(
	config *conf.Config,
	log *logger.Logger,
	jwtManager *auth.JWTManager,
	redisClient *redis.Client,
	transferService *service.TransferService,
	health HealthFunc,
) *gin.Engine {
	if config.Server.Mode != "" {
		gin.SetMode(config.Server.Mode)
	}

	router := gin.New()
	if err := router.SetTrustedProxies(config.Server.TrustedProxies); err != nil {
		log.Warn("invalid trusted proxies, trusting none", zap.Error(err))
		_ = router.SetTrustedProxies(nil)
	}
	router.Use(logger.GinRecovery(log))
	router.Use(logger.GinLogger(log))
	router.Use(cors.New(corsConfig(config.Server.AllowOrigins)))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		status := http.StatusOK
		checks := map[string]string{}
		if health != nil {
			checks = health(c.Request.Context())
		}
		for _, v := range checks {
			if v != "ok" {
				status = http.StatusServiceUnavailable
			}
		}
		c.JSON(status, gin.H{
			"status": http.StatusText(status),
			"checks": checks,
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API routes
	api := router.Group("/api/v1")
	transferService.RegisterRoutes(api, service.Routes{
		Auth:         middleware.JWTAuth(jwtManager, log),
		OptionalAuth: middleware.OptionalJWTAuth(jwtManager, log),
		ShareLimit:   shareLimiter(config.RateLimit, redisClient, log),
	})

	return router
}

// shareLimiter 有 Redis 时使用分布式滑动窗口，否则退化为进程内令牌桶
func shareLimiter(cfg conf.RateLimitConfig, redisClient *redis.Client, log *logger.Logger) gin.HandlerFunc {
	if !cfg.Enabled {
		return nil
	}
	if redisClient != nil {
		return middleware.ShareRateLimiter(redisClient, cfg.ShareMaxRequests, cfg.ShareWindowSeconds, log)
	}
	log.Info("redis disabled, using in-process rate limiter")
	return middleware.LocalRateLimiter(cfg.LocalRPS, cfg.LocalBurst)
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", "X-Request-ID", service.SharePasswordHeader},
		ExposeHeaders: []string{"X-Request-ID", "Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		MaxAge:        12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	cfg.AllowOrigins = origins
	if len(origins) > 0 {
		cfg.AllowCredentials = true
	} else {
		cfg.AllowAllOrigins = true
	}
	return cfg
}

func (s *HTTPServer) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

func (s *HTTPServer) Stop(ctx context.Context) error {
	s.logger.Info("stopping HTTP server")
	return s.server.Shutdown(ctx)
}
