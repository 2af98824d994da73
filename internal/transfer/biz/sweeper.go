package biz

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/kingshare/transfer-backend/internal/pkg/logger"
	"go.uber.org/zap"
)

// Sweeper periodically marks expired transfers at rest so listings stay
// cheap. Access decisions never depend on it.
type Sweeper struct {
	repo     TransferRepo
	interval time.Duration
	logger   *logger.Logger
	now      func() time.Time

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewSweeper creates a sweeper running every interval.
func NewSweeper(repo TransferRepo, interval time.Duration, log *logger.Logger, opts ...Option) *Sweeper {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &Sweeper{
		repo:     repo,
		interval: interval,
		logger:   log.Named("sweeper"),
		now:      o.now,
	}
}

// Start runs the sweep loop until Stop or ctx is done.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.New("sweeper already running")
	}
	s.running = true
	s.stopCh = make(chan struct{})

	s.wg.Add(1)
	go s.loop(ctx)

	s.logger.Info("expiry sweeper started", zap.Duration("interval", s.interval))
	return nil
}

// Stop stops the loop and waits for an in-flight sweep.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	close(s.stopCh)
	s.wg.Wait()
	s.running = false
	s.logger.Info("expiry sweeper stopped")
}

func (s *Sweeper) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				s.logger.Warn("expiry sweep failed", zap.Error(err))
			}
		}
	}
}

// SweepOnce marks every ACTIVE transfer past its expiration as EXPIRED.
func (s *Sweeper) SweepOnce(ctx context.Context) (int64, error) {
	n, err := s.repo.MarkExpired(ctx, s.now().UTC())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		sweptTransfers.Add(float64(n))
		s.logger.Info("marked expired transfers", zap.Int64("count", n))
	}
	return n, nil
}
