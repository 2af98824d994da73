package biz_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kingshare/transfer-backend/internal/pkg/logger"
	"github.com/kingshare/transfer-backend/internal/transfer/biz"
	"github.com/kingshare/transfer-backend/internal/transfer/data"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var (
	owner    = biz.NewIdentity("owner-1", "owner@example.com", biz.RoleUser)
	stranger = biz.NewIdentity("user-2", "someone@example.com", biz.RoleUser)
	admin    = biz.NewIdentity("admin-1", "admin@example.com", biz.RoleAdmin)
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Notify(ctx context.Context, n *biz.Notification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

func (m *mockNotifier) sent(kind biz.NotificationKind) []*biz.Notification {
	var out []*biz.Notification
	for _, call := range m.Calls {
		if n := call.Arguments.Get(1).(*biz.Notification); n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

type mockGeo struct {
	mock.Mock
}

func (m *mockGeo) Lookup(ctx context.Context, ip string) (string, error) {
	args := m.Called(ctx, ip)
	return args.String(0), args.Error(1)
}

type env struct {
	store     *data.MemoryStore
	clock     *clock
	notifier  *mockNotifier
	geo       *mockGeo
	transfers *biz.TransferUseCase
	approvals *biz.ApprovalUseCase
	tracker   *biz.DownloadTracker
	evaluator *biz.PolicyEvaluator
}

func newEnv(t *testing.T) *env {
	t.Helper()

	e := &env{
		store:    data.NewMemoryStore(),
		clock:    &clock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)},
		notifier: &mockNotifier{},
		geo:      &mockGeo{},
	}
	e.notifier.On("Notify", mock.Anything, mock.Anything).Return(nil).Maybe()
	e.geo.On("Lookup", mock.Anything, mock.Anything).Return("Berlin, Germany", nil).Maybe()

	log := logger.NewNop()
	opts := []biz.Option{
		biz.WithClock(e.clock.Now),
		biz.WithPasswordCost(bcrypt.MinCost),
	}

	issuer := biz.NewTokenIssuer(e.store, nil)
	e.transfers = biz.NewTransferUseCase(e.store, issuer, e.notifier, log, opts...)
	e.approvals = biz.NewApprovalUseCase(e.store, e.store, e.notifier, log, opts...)
	e.tracker = biz.NewDownloadTracker(e.store, e.store, e.geo, log, opts...)
	e.evaluator = biz.NewPolicyEvaluator(e.store, e.approvals, e.tracker, log)
	return e
}

func intPtr(n int) *int { return &n }

func createReq(mutate ...func(r *biz.CreateTransferRequest)) *biz.CreateTransferRequest {
	r := &biz.CreateTransferRequest{
		UserID:          owner.UserID,
		Title:           "Quarterly report",
		SenderEmail:     owner.Email,
		ExpirationDays:  7,
		TrackingEnabled: true,
		Files: []biz.TransferFile{
			{FileName: "report.pdf", FileSize: 2048, MimeType: "application/pdf", StorageKey: "k/report.pdf"},
		},
	}
	for _, m := range mutate {
		m(r)
	}
	return r
}

func (e *env) create(t *testing.T, mutate ...func(r *biz.CreateTransferRequest)) *biz.Transfer {
	t.Helper()
	tr, err := e.transfers.Create(context.Background(), createReq(mutate...))
	require.NoError(t, err)
	return tr
}

func (e *env) access(token string, mutate ...func(r *biz.AccessRequest)) (*biz.Grant, error) {
	req := biz.AccessRequest{Token: token, Now: e.clock.Now(), IP: "203.0.113.7", UserAgent: "curl/8"}
	for _, m := range mutate {
		m(&req)
	}
	return e.evaluator.Evaluate(context.Background(), req)
}
