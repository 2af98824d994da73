package biz_test

import (
	"context"
	"sync"
	"testing"
	"time"

	apperrors "github.com/kingshare/transfer-backend/internal/pkg/errors"
	"github.com/kingshare/transfer-backend/internal/transfer/biz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gated(r *biz.CreateTransferRequest) { r.RequireApproval = true }

func TestRequestAccessIsIdempotent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	tr := e.create(t, gated)

	first, err := e.approvals.RequestAccess(ctx, tr.ShareToken, "Bob@Example.com", "", "hello")
	require.NoError(t, err)
	assert.Equal(t, biz.ApprovalPending, first.Status)
	assert.Equal(t, "bob@example.com", first.RequesterEmail)
	assert.Equal(t, "hello", first.RequestMessage)

	second, err := e.approvals.RequestAccess(ctx, tr.ShareToken, "bob@example.com", "", "again")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "hello", second.RequestMessage)

	sent := e.notifier.sent(biz.NotifyAccessRequested)
	require.Len(t, sent, 1)
	assert.Equal(t, owner.Email, sent[0].To)
	assert.Equal(t, first.ID, sent[0].Approval.ID)
}

func TestRequestAccessRejections(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	open := e.create(t)
	revoked := e.create(t, gated)
	_, err := e.transfers.Revoke(ctx, revoked.ID, owner)
	require.NoError(t, err)
	expiring := e.create(t, gated, func(r *biz.CreateTransferRequest) { r.ExpirationDays = 1 })
	valid := e.create(t, gated)

	tests := []struct {
		name  string
		token string
		email string
		want  apperrors.Kind
	}{
		{"unknown token", "unknown-token", "bob@example.com", apperrors.KindTransferNotFound},
		{"bad email", valid.ShareToken, "not an email", apperrors.KindInvalidArgument},
		{"approval not required", open.ShareToken, "bob@example.com", apperrors.KindInvalidArgument},
		{"revoked", revoked.ShareToken, "bob@example.com", apperrors.KindTransferRevoked},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.approvals.RequestAccess(ctx, tt.token, tt.email, "", "")
			assert.Equal(t, tt.want, apperrors.KindOf(err))
		})
	}

	e.clock.Advance(48 * time.Hour)
	_, err = e.approvals.RequestAccess(ctx, expiring.ShareToken, "bob@example.com", "", "")
	assert.True(t, apperrors.Is(err, apperrors.KindTransferExpired))
}

func TestRequestAccessChecksPassword(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	tr := e.create(t, gated, func(r *biz.CreateTransferRequest) { r.Password = "s3cret" })

	_, err := e.approvals.RequestAccess(ctx, tr.ShareToken, "bob@example.com", "", "")
	assert.Equal(t, apperrors.KindPasswordRequired, apperrors.KindOf(err))
	_, err = e.approvals.RequestAccess(ctx, tr.ShareToken, "bob@example.com", "wrong", "")
	assert.Equal(t, apperrors.KindPasswordIncorrect, apperrors.KindOf(err))

	assert.Empty(t, e.notifier.sent(biz.NotifyAccessRequested))
	pending, err := e.approvals.Lookup(ctx, tr.ID, "bob@example.com")
	require.NoError(t, err)
	assert.Nil(t, pending)

	req, err := e.approvals.RequestAccess(ctx, tr.ShareToken, "bob@example.com", "s3cret", "")
	require.NoError(t, err)
	assert.Equal(t, biz.ApprovalPending, req.Status)
	assert.Len(t, e.notifier.sent(biz.NotifyAccessRequested), 1)
}

func TestDecideOnce(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	tr := e.create(t, gated)

	req, err := e.approvals.RequestAccess(ctx, tr.ShareToken, "bob@example.com", "", "")
	require.NoError(t, err)

	_, err = e.approvals.Decide(ctx, req.ID, stranger, biz.ApprovalApproved, "")
	assert.True(t, apperrors.Is(err, apperrors.KindForbidden))

	_, err = e.approvals.Decide(ctx, req.ID, owner, biz.ApprovalPending, "")
	assert.True(t, apperrors.Is(err, apperrors.KindInvalidArgument))

	decided, err := e.approvals.Decide(ctx, req.ID, owner, biz.ApprovalDenied, " not today ")
	require.NoError(t, err)
	assert.Equal(t, biz.ApprovalDenied, decided.Status)
	assert.Equal(t, "not today", decided.ResponseMessage)
	require.NotNil(t, decided.DecidedAt)

	again, err := e.approvals.Decide(ctx, req.ID, owner, biz.ApprovalApproved, "changed my mind")
	require.NoError(t, err)
	assert.Equal(t, biz.ApprovalDenied, again.Status)
	assert.Equal(t, "not today", again.ResponseMessage)

	sent := e.notifier.sent(biz.NotifyApprovalDecided)
	require.Len(t, sent, 1)
	assert.Equal(t, "bob@example.com", sent[0].To)

	_, err = e.approvals.Decide(ctx, "missing", owner, biz.ApprovalApproved, "")
	assert.True(t, apperrors.Is(err, apperrors.KindApprovalNotFound))
}

func TestConcurrentDecideSingleOutcome(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	tr := e.create(t, gated)

	req, err := e.approvals.RequestAccess(ctx, tr.ShareToken, "bob@example.com", "", "")
	require.NoError(t, err)

	outcomes := []biz.ApprovalStatus{
		biz.ApprovalApproved, biz.ApprovalDenied,
		biz.ApprovalApproved, biz.ApprovalDenied,
		biz.ApprovalApproved, biz.ApprovalDenied,
	}
	results := make([]biz.ApprovalStatus, len(outcomes))

	var wg sync.WaitGroup
	for i, outcome := range outcomes {
		wg.Add(1)
		go func(i int, outcome biz.ApprovalStatus) {
			defer wg.Done()
			got, err := e.approvals.Decide(ctx, req.ID, owner, outcome, "")
			if assert.NoError(t, err) {
				results[i] = got.Status
			}
		}(i, outcome)
	}
	wg.Wait()

	stored, err := e.approvals.Get(ctx, req.ID, owner)
	require.NoError(t, err)
	for _, got := range results {
		assert.Equal(t, stored.Status, got)
	}
	assert.Len(t, e.notifier.sent(biz.NotifyApprovalDecided), 1)
}

func TestDecideOnRevokedTransfer(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	tr := e.create(t, gated)

	req, err := e.approvals.RequestAccess(ctx, tr.ShareToken, "bob@example.com", "", "")
	require.NoError(t, err)
	_, err = e.transfers.Revoke(ctx, tr.ID, owner)
	require.NoError(t, err)

	_, err = e.approvals.Decide(ctx, req.ID, owner, biz.ApprovalApproved, "")
	assert.True(t, apperrors.Is(err, apperrors.KindTransferRevoked))
}

func TestListPending(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	mine := e.create(t, gated)
	theirs := e.create(t, gated, func(r *biz.CreateTransferRequest) { r.UserID = stranger.UserID })

	a, err := e.approvals.RequestAccess(ctx, mine.ShareToken, "a@example.com", "", "")
	require.NoError(t, err)
	e.clock.Advance(time.Second)
	b, err := e.approvals.RequestAccess(ctx, mine.ShareToken, "b@example.com", "", "")
	require.NoError(t, err)
	_, err = e.approvals.RequestAccess(ctx, theirs.ShareToken, "c@example.com", "", "")
	require.NoError(t, err)

	_, err = e.approvals.Decide(ctx, b.ID, owner, biz.ApprovalApproved, "")
	require.NoError(t, err)

	list, err := e.approvals.ListPending(ctx, owner)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, a.ID, list[0].ID)

	all, err := e.approvals.ListPending(ctx, admin)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = e.approvals.ListPending(ctx, biz.Identity{})
	assert.True(t, apperrors.Is(err, apperrors.KindUnauthorized))
}

func TestNormalizeEmail(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"bob@example.com", "bob@example.com", false},
		{"  Bob@Example.COM ", "bob@example.com", false},
		{"Bob <bob@example.com>", "bob@example.com", false},
		{"bob", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := biz.NormalizeEmail(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
