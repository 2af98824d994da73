package workerpool

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

var (
	ErrPoolClosed = errors.New("worker pool is closed")
	ErrPoolFull   = errors.New("worker pool is full")
)

// Config Worker Pool 配置
type Config struct {
	Workers        int           `mapstructure:"workers"`         // 最大并发 worker 数
	MaxBlocking    int           `mapstructure:"max_blocking"`    // 允许排队等待的任务数，0 表示不排队直接拒绝
	ExpiryDuration time.Duration `mapstructure:"expiry_duration"` // 空闲 worker 回收时间
	ReleaseTimeout time.Duration `mapstructure:"release_timeout"` // 关闭时等待任务结束的时间
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		Workers:        16,
		MaxBlocking:    256,
		ExpiryDuration: time.Minute,
		ReleaseTimeout: 5 * time.Second,
	}
}

// Statistics 统计信息
type Statistics struct {
	Submitted int64 // 已提交
	Completed int64 // 已完成
	Rejected  int64 // 被拒绝
	Panicked  int64 // 发生 panic
}

// Pool 基于 ants 的任务池，用于不阻塞请求路径的后台任务
type Pool struct {
	pool   *ants.Pool
	config *Config
	logger *zap.Logger

	submitted atomic.Int64
	completed atomic.Int64
	rejected  atomic.Int64
	panicked  atomic.Int64

	closeOnce sync.Once
}

// New 创建 Worker Pool
func New(config *Config, logger *zap.Logger) (*Pool, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Workers <= 0 {
		return nil, fmt.Errorf("workerpool: workers must be > 0")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &Pool{config: config, logger: logger}

	opts := []ants.Option{
		ants.WithExpiryDuration(config.ExpiryDuration),
		ants.WithPanicHandler(func(v interface{}) {
			p.panicked.Add(1)
			logger.Error("worker panic", zap.Any("error", v))
		}),
	}
	if config.MaxBlocking > 0 {
		opts = append(opts, ants.WithMaxBlockingTasks(config.MaxBlocking))
	} else {
		opts = append(opts, ants.WithNonblocking(true))
	}

	antsPool, err := ants.NewPool(config.Workers, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create ants pool: %w", err)
	}
	p.pool = antsPool

	return p, nil
}

// Submit 提交任务；池已满或已关闭时立即返回错误
func (p *Pool) Submit(task func()) error {
	p.submitted.Add(1)

	err := p.pool.Submit(func() {
		defer p.completed.Add(1)
		task()
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ants.ErrPoolClosed):
		p.rejected.Add(1)
		return ErrPoolClosed
	case errors.Is(err, ants.ErrPoolOverload):
		p.rejected.Add(1)
		return ErrPoolFull
	default:
		p.rejected.Add(1)
		return err
	}
}

// Running 获取运行中的 worker 数量
func (p *Pool) Running() int {
	return p.pool.Running()
}

// Stats 获取统计信息
func (p *Pool) Stats() Statistics {
	return Statistics{
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Rejected:  p.rejected.Load(),
		Panicked:  p.panicked.Load(),
	}
}

// Shutdown 关闭并等待在途任务结束
func (p *Pool) Shutdown() {
	p.closeOnce.Do(func() {
		if err := p.pool.ReleaseTimeout(p.config.ReleaseTimeout); err != nil {
			p.logger.Warn("worker pool release timed out", zap.Error(err))
		}
	})
}
