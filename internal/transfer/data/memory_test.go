package data

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/kingshare/transfer-backend/internal/transfer/biz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTransfer(id, token string, limit *int) *biz.Transfer {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return &biz.Transfer{
		ID:            id,
		ShareToken:    token,
		UserID:        "owner-1",
		ExpirationAt:  now.Add(24 * time.Hour),
		DownloadLimit: limit,
		Status:        biz.StatusActive,
		Files:         []biz.TransferFile{{ID: id + "-f", FileName: "a.txt", FileSize: 1}},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func event(transferID string, ip string) *biz.DownloadEvent {
	return &biz.DownloadEvent{
		ID:           fmt.Sprintf("%s-%s-%d", transferID, ip, time.Now().UnixNano()),
		TransferID:   transferID,
		IPAddress:    ip,
		DownloadedAt: time.Now().UTC(),
	}
}

func TestMemoryStoreCreateDuplicateToken(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, newTransfer("t1", "token-aaaa", nil)))
	err := s.Create(ctx, newTransfer("t2", "token-aaaa", nil))
	assert.ErrorIs(t, err, biz.ErrDuplicateToken)

	exists, err := s.TokenExists(ctx, "token-aaaa")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, newTransfer("t1", "token-aaaa", nil)))

	got, err := s.GetByID(ctx, "t1")
	require.NoError(t, err)
	got.Status = biz.StatusRevoked
	got.Files[0].FileName = "changed"

	again, err := s.GetByToken(ctx, "token-aaaa")
	require.NoError(t, err)
	assert.Equal(t, biz.StatusActive, again.Status)
	assert.Equal(t, "a.txt", again.Files[0].FileName)
}

func TestMemoryStoreIncrementRefusals(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	limit := 1
	require.NoError(t, s.Create(ctx, newTransfer("t1", "token-aaaa", &limit)))

	n, err := s.IncrementDownload(ctx, "t1", event("t1", "1.1.1.1"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, err = s.IncrementDownload(ctx, "t1", event("t1", "1.1.1.1"))
	assert.ErrorIs(t, err, biz.ErrLimitReached)
	_, err = s.IncrementDownload(ctx, "missing", event("missing", ""))
	assert.ErrorIs(t, err, biz.ErrNotFound)

	require.NoError(t, s.Create(ctx, newTransfer("t2", "token-bbbb", nil)))
	require.NoError(t, s.Revoke(ctx, "t2", time.Now()))
	_, err = s.IncrementDownload(ctx, "t2", event("t2", ""))
	assert.ErrorIs(t, err, biz.ErrRevoked)

	got, err := s.GetByID(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.DownloadCount)
}

func TestMemoryStoreConcurrentIncrement(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	const transfers = 8
	for i := 0; i < transfers; i++ {
		limit := i + 1
		id := fmt.Sprintf("t%d", i)
		require.NoError(t, s.Create(ctx, newTransfer(id, "token-"+id+"-xxxx", &limit)))
	}

	var wg sync.WaitGroup
	for i := 0; i < transfers; i++ {
		id := fmt.Sprintf("t%d", i)
		for j := 0; j < 50; j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = s.IncrementDownload(ctx, id, event(id, "9.9.9.9"))
			}()
		}
	}
	wg.Wait()

	for i := 0; i < transfers; i++ {
		id := fmt.Sprintf("t%d", i)
		got, err := s.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, i+1, got.DownloadCount)

		summary, err := s.DownloadSummary(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, int64(i+1), summary.TotalDownloads)
		assert.Equal(t, int64(1), summary.UniqueDownloaders)
	}
}

func TestMemoryStoreApprovals(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, newTransfer("t1", "token-aaaa", nil)))

	req := &biz.ApprovalRequest{ID: "a1", TransferID: "t1", RequesterEmail: "bob@example.com", Status: biz.ApprovalPending}
	stored, created, err := s.CreateApproval(ctx, req)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "a1", stored.ID)

	dup := &biz.ApprovalRequest{ID: "a2", TransferID: "t1", RequesterEmail: "BOB@example.com", Status: biz.ApprovalPending}
	stored, created, err = s.CreateApproval(ctx, dup)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "a1", stored.ID)

	found, err := s.FindApproval(ctx, "t1", "bob@example.com")
	require.NoError(t, err)
	assert.Equal(t, "a1", found.ID)

	_, err = s.FindApproval(ctx, "t1", "eve@example.com")
	assert.ErrorIs(t, err, biz.ErrApprovalNotFound)

	ok, err := s.DecideApproval(ctx, "a1", biz.ApprovalApproved, "fine", time.Now())
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.DecideApproval(ctx, "a1", biz.ApprovalDenied, "", time.Now())
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := s.GetApproval(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, biz.ApprovalApproved, got.Status)
	assert.Equal(t, "fine", got.ResponseMessage)

	pending, err := s.ListPendingApprovals(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, pending)
}
