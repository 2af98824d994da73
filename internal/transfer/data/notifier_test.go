package data

import (
	"context"
	"strings"
	"testing"
	"time"

	emailtypes "github.com/kingshare/transfer-backend/internal/email/types"
	"github.com/kingshare/transfer-backend/internal/pkg/logger"
	"github.com/kingshare/transfer-backend/internal/pkg/workerpool"
	"github.com/kingshare/transfer-backend/internal/transfer/biz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSender struct {
	sent chan *emailtypes.Email
}

func (f *fakeSender) SendEmail(_ context.Context, email *emailtypes.Email) (*emailtypes.EmailStatus, error) {
	f.sent <- email
	return &emailtypes.EmailStatus{MessageID: "id", SentAt: time.Now(), Attempts: 1}, nil
}

func newTestNotifier(t *testing.T) (*EmailNotifier, *fakeSender) {
	t.Helper()

	pool, err := workerpool.New(workerpool.DefaultConfig(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(pool.Shutdown)

	sender := &fakeSender{sent: make(chan *emailtypes.Email, 4)}
	return NewEmailNotifier(sender, pool, "https://share.example.com", logger.NewNop()), sender
}

func sampleTransfer() *biz.Transfer {
	return &biz.Transfer{
		ID:           "t1",
		ShareToken:   "abcDEF123456",
		Title:        "Q1 report",
		Message:      "see attached",
		SenderEmail:  "alice@example.com",
		PasswordHash: "$2a$04$hash",
		ExpirationAt: time.Date(2025, 3, 8, 12, 0, 0, 0, time.UTC),
		Files:        []biz.TransferFile{{FileName: "report.pdf"}},
	}
}

func receive(t *testing.T, ch <-chan *emailtypes.Email) *emailtypes.Email {
	t.Helper()
	select {
	case email := <-ch:
		return email
	case <-time.After(2 * time.Second):
		t.Fatal("notification was not delivered")
		return nil
	}
}

func TestEmailNotifierTransferShared(t *testing.T) {
	n, sender := newTestNotifier(t)

	err := n.Notify(context.Background(), &biz.Notification{
		Kind:     biz.NotifyTransferShared,
		To:       "bob@example.com",
		Transfer: sampleTransfer(),
	})
	require.NoError(t, err)

	email := receive(t, sender.sent)
	assert.Equal(t, []string{"bob@example.com"}, email.To)
	assert.Equal(t, `alice@example.com shared "Q1 report" with you`, email.Subject)
	assert.Equal(t, "alice@example.com", email.ReplyTo)
	assert.Contains(t, email.Body, "https://share.example.com/share/abcDEF123456")
	assert.Contains(t, email.Body, "2025-03-08 12:00 UTC")
	assert.Contains(t, email.Body, "password")
	assert.Contains(t, email.HTMLBody, "<strong>")
}

func TestEmailNotifierApprovalDecided(t *testing.T) {
	n, sender := newTestNotifier(t)

	tests := []struct {
		status  biz.ApprovalStatus
		subject string
		hasLink bool
	}{
		{biz.ApprovalApproved, "Access approved: Q1 report", true},
		{biz.ApprovalDenied, "Access request denied: Q1 report", false},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			err := n.Notify(context.Background(), &biz.Notification{
				Kind:     biz.NotifyApprovalDecided,
				To:       "bob@example.com",
				Transfer: sampleTransfer(),
				Approval: &biz.ApprovalRequest{RequesterEmail: "bob@example.com", Status: tt.status, ResponseMessage: "ok"},
			})
			require.NoError(t, err)

			email := receive(t, sender.sent)
			assert.Equal(t, tt.subject, email.Subject)
			assert.Equal(t, tt.hasLink, strings.Contains(email.Body, "/share/abcDEF123456"))
			assert.Empty(t, email.ReplyTo)
		})
	}
}

func TestEmailNotifierRejectsUnknownKind(t *testing.T) {
	n, _ := newTestNotifier(t)

	err := n.Notify(context.Background(), &biz.Notification{Kind: "bogus", To: "x@example.com", Transfer: sampleTransfer()})
	assert.Error(t, err)

	err = n.Notify(context.Background(), &biz.Notification{Kind: biz.NotifyAccessRequested, To: "x@example.com"})
	assert.Error(t, err)
}

func TestLogNotifier(t *testing.T) {
	n := NewLogNotifier(logger.NewNop())
	assert.NoError(t, n.Notify(context.Background(), &biz.Notification{Kind: biz.NotifyAccessRequested, Transfer: sampleTransfer()}))
}
