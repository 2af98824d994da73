package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/kingshare/transfer-backend/internal/auth"
	"github.com/kingshare/transfer-backend/internal/conf"
	"github.com/kingshare/transfer-backend/internal/pkg/logger"
	"github.com/kingshare/transfer-backend/internal/transfer/biz"
	"github.com/kingshare/transfer-backend/internal/transfer/data"
	"github.com/kingshare/transfer-backend/internal/transfer/service"
	"github.com/stretchr/testify/assert"
	"github.com/tidwall/gjson"
)

func newTestRouter(t *testing.T, health HealthFunc, mutate func(c *conf.Config)) *gin.Engine {
	t.Helper()

	cfg := &conf.Config{}
	cfg.Server.Mode = gin.TestMode
	cfg.Server.AllowOrigins = []string{"https://app.example.com"}
	cfg.RateLimit = conf.RateLimitConfig{Enabled: true, LocalRPS: 1, LocalBurst: 2}
	cfg.Transfer.PublicBaseURL = "https://share.example.com"
	if mutate != nil {
		mutate(cfg)
	}

	log := logger.NewNop()
	store := data.NewMemoryStore()
	transfers := biz.NewTransferUseCase(store, biz.NewTokenIssuer(store, nil), nil, log)
	approvals := biz.NewApprovalUseCase(store, store, nil, log)
	tracker := biz.NewDownloadTracker(store, store, nil, log)
	policy := biz.NewPolicyEvaluator(store, approvals, tracker, log)
	svc := service.NewTransferService(transfers, approvals, tracker, policy, nil, nil,
		service.Options{PublicBaseURL: cfg.Transfer.PublicBaseURL}, log)

	return NewRouter(cfg, log, auth.NewJWTManager("secret", "kingshare"), nil, svc, health)
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		checks     map[string]string
		wantStatus int
	}{
		{"healthy", map[string]string{"database": "ok"}, http.StatusOK},
		{"degraded", map[string]string{"database": "ok", "redis": "connection refused"}, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRouter(t, func(context.Context) map[string]string { return tt.checks }, nil)

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, "ok", gjson.Get(w.Body.String(), "checks.database").String())
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	r := newTestRouter(t, nil, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestCORSPreflight(t *testing.T) {
	r := newTestRouter(t, nil, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/shares/abc/download", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", service.SharePasswordHeader)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestShareEndpointsFallBackToLocalLimiter(t *testing.T) {
	r := newTestRouter(t, nil, nil)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/shares/unknown-token/download", nil))
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusNotFound, http.StatusNotFound, http.StatusTooManyRequests}, codes)
}

func TestOwnerRoutesRequireAuth(t *testing.T) {
	r := newTestRouter(t, nil, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/transfers", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCORSConfig(t *testing.T) {
	assert.True(t, corsConfig([]string{"*"}).AllowAllOrigins)
	assert.True(t, corsConfig(nil).AllowAllOrigins)

	cfg := corsConfig([]string{"https://a.example.com"})
	assert.False(t, cfg.AllowAllOrigins)
	assert.True(t, cfg.AllowCredentials)
}
