package biz_test

import (
	"context"
	"testing"
	"time"

	"github.com/kingshare/transfer-backend/internal/pkg/logger"
	"github.com/kingshare/transfer-backend/internal/transfer/biz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweepOnce(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	short := e.create(t, func(r *biz.CreateTransferRequest) { r.ExpirationDays = 1 })
	long := e.create(t, func(r *biz.CreateTransferRequest) { r.ExpirationDays = 30 })
	revoked := e.create(t, func(r *biz.CreateTransferRequest) { r.ExpirationDays = 1 })
	_, err := e.transfers.Revoke(ctx, revoked.ID, owner)
	require.NoError(t, err)

	sweeper := biz.NewSweeper(e.store, time.Hour, logger.NewNop(), biz.WithClock(e.clock.Now))

	n, err := sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	e.clock.Advance(48 * time.Hour)
	n, err = sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := e.transfers.Get(ctx, short.ShareToken)
	require.NoError(t, err)
	assert.Equal(t, biz.StatusExpired, got.Status)

	got, err = e.transfers.Get(ctx, long.ShareToken)
	require.NoError(t, err)
	assert.Equal(t, biz.StatusActive, got.Status)

	got, err = e.transfers.Get(ctx, revoked.ShareToken)
	require.NoError(t, err)
	assert.Equal(t, biz.StatusRevoked, got.Status)

	n, err = sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSweeperStartStop(t *testing.T) {
	e := newEnv(t)
	tr := e.create(t, func(r *biz.CreateTransferRequest) { r.ExpirationDays = 1 })
	e.clock.Advance(48 * time.Hour)

	sweeper := biz.NewSweeper(e.store, 10*time.Millisecond, logger.NewNop(), biz.WithClock(e.clock.Now))
	require.NoError(t, sweeper.Start(context.Background()))
	assert.Error(t, sweeper.Start(context.Background()))

	assert.Eventually(t, func() bool {
		got, err := e.transfers.Get(context.Background(), tr.ShareToken)
		return err == nil && got.Status == biz.StatusExpired
	}, 2*time.Second, 10*time.Millisecond)

	sweeper.Stop()
	sweeper.Stop()
}

// A persisted EXPIRED hint does not change the decision: the clock does.
func TestExpiredHintIsAdvisory(t *testing.T) {
	e := newEnv(t)
	tr := e.create(t, func(r *biz.CreateTransferRequest) { r.ExpirationDays = 1 })

	_, err := e.store.MarkExpired(context.Background(), e.clock.Now().Add(48*time.Hour))
	require.NoError(t, err)

	_, err = e.access(tr.ShareToken)
	assert.NoError(t, err)
}
