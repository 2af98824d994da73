package biz

import (
	"context"
	"io"
	"time"

	"github.com/kingshare/transfer-backend/internal/pkg/logger"
	"go.uber.org/zap"
)

// GeoResolver resolves an IP address to a human readable location.
// Failures are tolerated by callers.
type GeoResolver interface {
	Lookup(ctx context.Context, ip string) (string, error)
}

// NotificationKind identifies a notification template.
type NotificationKind string

const (
	NotifyTransferShared  NotificationKind = "transfer_shared"
	NotifyAccessRequested NotificationKind = "access_requested"
	NotifyApprovalDecided NotificationKind = "approval_decided"
)

// Notification is a message handed to the dispatcher.
type Notification struct {
	Kind     NotificationKind
	To       string
	Transfer *Transfer
	Approval *ApprovalRequest
}

// Notifier dispatches notifications without blocking the caller. An error
// means the notification was not accepted for delivery.
type Notifier interface {
	Notify(ctx context.Context, n *Notification) error
}

// NopNotifier drops every notification.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, *Notification) error { return nil }

// BlobStore stores file bytes by key.
type BlobStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	// PresignGet returns a time-limited URL that serves key as fileName.
	PresignGet(ctx context.Context, key, fileName string) (string, time.Time, error)
	Delete(ctx context.Context, key string) error
}

func dispatchNotification(ctx context.Context, n Notifier, log *logger.Logger, msg *Notification) {
	if msg.To == "" {
		return
	}
	if err := n.Notify(ctx, msg); err != nil {
		notificationsDropped.WithLabelValues(string(msg.Kind)).Inc()
		log.Warn("notification not dispatched",
			zap.String("kind", string(msg.Kind)),
			zap.Error(err))
	}
}
