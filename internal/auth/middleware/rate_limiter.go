package middleware

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/kingshare/transfer-backend/internal/pkg/logger"
	"github.com/kingshare/transfer-backend/internal/pkg/redis"
	"github.com/kingshare/transfer-backend/internal/pkg/response"
	"go.uber.org/zap"
)

// 限流策略
const (
	StrategyIP       = "ip"
	StrategyUser     = "user"
	StrategyEndpoint = "endpoint"
	StrategyToken    = "token" // 分享令牌 + IP
)

// RateLimiterConfig 限流配置
type RateLimiterConfig struct {
	// 时间窗口内允许的最大请求数
	MaxRequests int
	// 时间窗口（秒）
	WindowSeconds int
	// 限流策略：ip（默认）, user, endpoint, token
	Strategy string
	// 区分不同限流器的名称
	Name string
}

// 滑动窗口 Lua 脚本，时间单位毫秒，成员带随机后缀避免同一毫秒内的请求互相覆盖
const slidingWindowScript = `
	local key = KEYS[1]
	local now = tonumber(ARGV[1])
	local window = tonumber(ARGV[2])
	local limit = tonumber(ARGV[3])
	local member = ARGV[4]

	-- 删除窗口外的记录
	redis.call('ZREMRANGEBYSCORE', key, 0, now - window)

	-- 获取当前窗口内的请求数
	local current = redis.call('ZCARD', key)

	if current < limit then
		redis.call('ZADD', key, now, member)
		redis.call('PEXPIRE', key, window)
		return {1, limit - current - 1, now + window}
	end

	local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')[2]
	return {0, 0, tonumber(oldest) + window}
`

// RateLimiter 基于 Redis 的滑动窗口限流中间件
func RateLimiter(redisClient *redis.Client, cfg RateLimiterConfig, log *logger.Logger) gin.HandlerFunc {
	if cfg.MaxRequests <= 0 {
		cfg.MaxRequests = 100
	}
	if cfg.WindowSeconds <= 0 {
		cfg.WindowSeconds = 60
	}
	if cfg.Strategy == "" {
		cfg.Strategy = StrategyIP
	}
	if cfg.Name == "" {
		cfg.Name = "default"
	}

	return func(c *gin.Context) {
		key := redisClient.Key("rate_limit", cfg.Name, buildRateLimitKey(c, cfg.Strategy))

		allowed, remaining, resetAt, err := checkRateLimit(c.Request.Context(), redisClient, key, cfg)
		if err != nil {
			log.Error("rate limiter error", zap.Error(err), zap.String("limiter", cfg.Name))
			// 限流器故障时，降级允许请求通过
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(cfg.MaxRequests))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

		if !allowed {
			retryAfter := int(time.Until(resetAt).Seconds()) + 1
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			response.TooManyRequests(c, fmt.Sprintf("try again in %d seconds", retryAfter))
			c.Abort()
			return
		}

		c.Next()
	}
}

// buildRateLimitKey 构建限流 key
func buildRateLimitKey(c *gin.Context, strategy string) string {
	switch strategy {
	case StrategyUser:
		// 未认证用户回退到 IP 限流
		if userID, ok := GetUserID(c); ok {
			return "user:" + userID
		}
		return "ip:" + c.ClientIP()

	case StrategyEndpoint:
		return "endpoint:" + c.FullPath() + ":" + c.ClientIP()

	case StrategyToken:
		return "token:" + c.Param("token") + ":" + c.ClientIP()

	default:
		return "ip:" + c.ClientIP()
	}
}

// checkRateLimit 使用 Redis 滑动窗口算法检查限流
func checkRateLimit(ctx context.Context, redisClient *redis.Client, key string, cfg RateLimiterConfig) (allowed bool, remaining int, resetAt time.Time, err error) {
	now := time.Now().UnixMilli()
	windowMs := int64(cfg.WindowSeconds) * 1000
	member := strconv.FormatInt(now, 10) + "-" + uuid.NewString()

	result, err := redisClient.Eval(ctx, slidingWindowScript, []string{key}, now, windowMs, cfg.MaxRequests, member)
	if err != nil {
		return false, 0, time.Time{}, err
	}

	values, ok := result.([]interface{})
	if !ok || len(values) != 3 {
		return false, 0, time.Time{}, fmt.Errorf("invalid rate limit result: %v", result)
	}

	allowedInt, _ := values[0].(int64)
	remainingInt, _ := values[1].(int64)
	resetMs, _ := values[2].(int64)

	return allowedInt == 1, int(remainingInt), time.UnixMilli(resetMs), nil
}

// ShareRateLimiter 分享链接端点限流（基于令牌 + IP）
func ShareRateLimiter(redisClient *redis.Client, maxRequests, windowSeconds int, log *logger.Logger) gin.HandlerFunc {
	return RateLimiter(redisClient, RateLimiterConfig{
		MaxRequests:   maxRequests,
		WindowSeconds: windowSeconds,
		Strategy:      StrategyToken,
		Name:          "share",
	}, log)
}

// APIRateLimiter 通用 API 限流
// 100 次请求 / 1 分钟（基于用户 ID）
func APIRateLimiter(redisClient *redis.Client, log *logger.Logger) gin.HandlerFunc {
	return RateLimiter(redisClient, RateLimiterConfig{
		MaxRequests:   100,
		WindowSeconds: 60,
		Strategy:      StrategyUser,
		Name:          "api",
	}, log)
}
