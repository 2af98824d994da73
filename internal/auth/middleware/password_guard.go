package middleware

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/kingshare/transfer-backend/internal/pkg/redis"
)

// localGuardSize 进程内最多跟踪的 (token, IP) 组合数
const localGuardSize = 10000

// PasswordGuard 记录分享密码的失败次数，达到上限后在锁定期内拒绝继续尝试。
// client 为 nil 时计数保存在进程内；nil *PasswordGuard 不做任何限制。
type PasswordGuard struct {
	client      *redis.Client
	maxFailures int
	lockout     time.Duration

	mu    sync.Mutex
	local *expirable.LRU[string, *failureWindow]
	now   func() time.Time
}

// failureWindow 进程内的失败计数，窗口从第一次失败开始
type failureWindow struct {
	count   int64
	expires time.Time
}

// NewPasswordGuard 创建密码尝试保护
func NewPasswordGuard(client *redis.Client, maxFailures int, lockout time.Duration) *PasswordGuard {
	if maxFailures <= 0 {
		maxFailures = 10
	}
	if lockout <= 0 {
		lockout = 15 * time.Minute
	}
	g := &PasswordGuard{client: client, maxFailures: maxFailures, lockout: lockout, now: time.Now}
	if client == nil {
		g.local = expirable.NewLRU[string, *failureWindow](localGuardSize, nil, lockout)
	}
	return g
}

func (g *PasswordGuard) key(token, ip string) string {
	if g.client == nil {
		return token + ":" + ip
	}
	return g.client.Key("pwfail", token, ip)
}

// window 返回未过期的进程内计数
func (g *PasswordGuard) window(key string) (*failureWindow, bool) {
	w, ok := g.local.Get(key)
	if !ok || !g.now().Before(w.expires) {
		return nil, false
	}
	return w, true
}

// Locked 是否已被锁定。Redis 故障时放行，由上层密码校验兜底。
func (g *PasswordGuard) Locked(ctx context.Context, token, ip string) bool {
	if g == nil {
		return false
	}
	if g.client == nil {
		g.mu.Lock()
		defer g.mu.Unlock()
		w, ok := g.window(g.key(token, ip))
		return ok && w.count >= int64(g.maxFailures)
	}
	v, err := g.client.Get(ctx, g.key(token, ip))
	if err != nil {
		return false
	}
	n, err := strconv.Atoi(v)
	return err == nil && n >= g.maxFailures
}

// RetryAfter 锁定剩余时间，取不到时返回完整锁定期
func (g *PasswordGuard) RetryAfter(ctx context.Context, token, ip string) time.Duration {
	if g == nil {
		return 0
	}
	if g.client == nil {
		g.mu.Lock()
		defer g.mu.Unlock()
		if w, ok := g.window(g.key(token, ip)); ok {
			return w.expires.Sub(g.now())
		}
		return g.lockout
	}
	ttl, err := g.client.TTL(ctx, g.key(token, ip))
	if err != nil || ttl <= 0 {
		return g.lockout
	}
	return ttl
}

// RecordFailure 记录一次失败，返回当前窗口内的失败次数
func (g *PasswordGuard) RecordFailure(ctx context.Context, token, ip string) (int64, error) {
	if g == nil {
		return 0, nil
	}
	if g.client == nil {
		g.mu.Lock()
		defer g.mu.Unlock()
		key := g.key(token, ip)
		w, ok := g.window(key)
		if !ok {
			w = &failureWindow{expires: g.now().Add(g.lockout)}
			g.local.Add(key, w)
		}
		w.count++
		return w.count, nil
	}
	return g.client.IncrWithTTL(ctx, g.key(token, ip), g.lockout)
}

// Reset 密码正确后清除失败计数
func (g *PasswordGuard) Reset(ctx context.Context, token, ip string) {
	if g == nil {
		return
	}
	if g.client == nil {
		g.mu.Lock()
		defer g.mu.Unlock()
		g.local.Remove(g.key(token, ip))
		return
	}
	_, _ = g.client.Del(ctx, g.key(token, ip))
}
