package middleware

import (
	"sync"

	"github.com/gin-gonic/gin"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/kingshare/transfer-backend/internal/pkg/response"
	"golang.org/x/time/rate"
)

// localLimiterSize 单进程最多跟踪的客户端数，超出后淘汰最久未访问的
const localLimiterSize = 10000

// LocalRateLimiter 进程内令牌桶限流，Redis 未启用时使用（基于 IP）
func LocalRateLimiter(rps float64, burst int) gin.HandlerFunc {
	if rps <= 0 {
		rps = 1
	}
	if burst <= 0 {
		burst = 1
	}

	limiters, _ := lru.New[string, *rate.Limiter](localLimiterSize)
	var mu sync.Mutex

	get := func(key string) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()
		if l, ok := limiters.Get(key); ok {
			return l
		}
		l := rate.NewLimiter(rate.Limit(rps), burst)
		limiters.Add(key, l)
		return l
	}

	return func(c *gin.Context) {
		if !get(c.ClientIP()).Allow() {
			response.TooManyRequests(c, "")
			c.Abort()
			return
		}
		c.Next()
	}
}
