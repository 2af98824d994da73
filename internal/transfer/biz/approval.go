package biz

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/kingshare/transfer-backend/internal/pkg/errors"
	"github.com/kingshare/transfer-backend/internal/pkg/logger"
	"go.uber.org/zap"
)

// ApprovalStatus PENDING moves to APPROVED or DENIED exactly once.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "PENDING"
	ApprovalApproved ApprovalStatus = "APPROVED"
	ApprovalDenied   ApprovalStatus = "DENIED"
)

// ApprovalRequest is one requester's ask to access a transfer.
type ApprovalRequest struct {
	ID              string
	TransferID      string
	RequesterEmail  string
	Status          ApprovalStatus
	RequestMessage  string
	ResponseMessage string
	CreatedAt       time.Time
	DecidedAt       *time.Time
}

// ApprovalRepo persists approval requests.
type ApprovalRepo interface {
	// CreateApproval inserts req unless a request for the same
	// (transfer, email) exists, in which case the existing one is returned
	// with created=false.
	CreateApproval(ctx context.Context, req *ApprovalRequest) (stored *ApprovalRequest, created bool, err error)
	GetApproval(ctx context.Context, id string) (*ApprovalRequest, error)
	FindApproval(ctx context.Context, transferID, email string) (*ApprovalRequest, error)
	// DecideApproval sets the outcome only while the request is PENDING and
	// reports whether this call made the transition.
	DecideApproval(ctx context.Context, id string, outcome ApprovalStatus, message string, at time.Time) (bool, error)
	// ListPendingApprovals lists pending requests on transfers owned by
	// ownerID; an empty ownerID lists all of them.
	ListPendingApprovals(ctx context.Context, ownerID string) ([]*ApprovalRequest, error)
}

// NormalizeEmail validates addr and returns its lower-cased address part.
func NormalizeEmail(addr string) (string, error) {
	parsed, err := mail.ParseAddress(strings.TrimSpace(addr))
	if err != nil {
		return "", err
	}
	return strings.ToLower(parsed.Address), nil
}

// ApprovalUseCase runs the per-requester approval gate.
type ApprovalUseCase struct {
	transfers TransferRepo
	approvals ApprovalRepo
	notifier  Notifier
	logger    *logger.Logger
	opts      options
}

// NewApprovalUseCase creates an approval use case.
func NewApprovalUseCase(transfers TransferRepo, approvals ApprovalRepo, notifier Notifier, log *logger.Logger, opts ...Option) *ApprovalUseCase {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &ApprovalUseCase{
		transfers: transfers,
		approvals: approvals,
		notifier:  notifier,
		logger:    log.Named("approval"),
		opts:      o,
	}
}

// RequestAccess files a PENDING request for email, or returns the existing
// request for that pair unchanged. A password-protected transfer only
// accepts requests carrying its password.
func (uc *ApprovalUseCase) RequestAccess(ctx context.Context, token, email, password, message string) (*ApprovalRequest, error) {
	const op = "approval.RequestAccess"

	normalized, err := NormalizeEmail(email)
	if err != nil {
		return nil, apperrors.Wrap(err, op, apperrors.KindInvalidArgument, "a valid requester email is required")
	}

	t, err := uc.transfers.GetByToken(ctx, token)
	if err != nil {
		return nil, translateRepoError(op, err)
	}
	switch EffectiveStatus(t, uc.opts.now()) {
	case StatusRevoked:
		return nil, apperrors.New(op, apperrors.KindTransferRevoked)
	case StatusExpired:
		return nil, apperrors.New(op, apperrors.KindTransferExpired)
	}
	if t.HasPassword() {
		if password == "" {
			return nil, apperrors.New(op, apperrors.KindPasswordRequired)
		}
		ok, err := CheckPassword(t.PasswordHash, password)
		if err != nil {
			return nil, apperrors.Wrap(err, op, apperrors.KindInternal)
		}
		if !ok {
			return nil, apperrors.New(op, apperrors.KindPasswordIncorrect)
		}
	}
	if !t.ApprovalRequired {
		return nil, apperrors.New(op, apperrors.KindInvalidArgument, "transfer does not require approval")
	}

	req := &ApprovalRequest{
		ID:             uuid.NewString(),
		TransferID:     t.ID,
		RequesterEmail: normalized,
		Status:         ApprovalPending,
		RequestMessage: strings.TrimSpace(message),
		CreatedAt:      uc.opts.now().UTC(),
	}

	stored, created, err := uc.approvals.CreateApproval(ctx, req)
	if err != nil {
		return nil, apperrors.Storage(op, err)
	}

	if created {
		uc.logger.Info("access requested",
			zap.String("transfer_id", t.ID),
			zap.String("request_id", stored.ID))
		dispatchNotification(ctx, uc.notifier, uc.logger, &Notification{
			Kind:     NotifyAccessRequested,
			To:       t.SenderEmail,
			Transfer: t,
			Approval: stored,
		})
	}
	return stored, nil
}

// Decide records the owner's outcome. Deciding an already decided request
// returns it unchanged; of two concurrent deciders only the first wins.
func (uc *ApprovalUseCase) Decide(ctx context.Context, requestID string, id Identity, outcome ApprovalStatus, message string) (*ApprovalRequest, error) {
	const op = "approval.Decide"

	if outcome != ApprovalApproved && outcome != ApprovalDenied {
		return nil, apperrors.New(op, apperrors.KindInvalidArgument, "outcome must be APPROVED or DENIED")
	}

	req, t, err := uc.load(ctx, op, requestID, id)
	if err != nil {
		return nil, err
	}
	if t.Status == StatusRevoked {
		return nil, apperrors.New(op, apperrors.KindTransferRevoked)
	}
	if req.Status != ApprovalPending {
		return req, nil
	}

	now := uc.opts.now().UTC()
	decided, err := uc.approvals.DecideApproval(ctx, req.ID, outcome, strings.TrimSpace(message), now)
	if err != nil {
		return nil, apperrors.Storage(op, err)
	}
	if !decided {
		// Another decider got there first; report its outcome.
		current, err := uc.approvals.GetApproval(ctx, req.ID)
		if err != nil {
			return nil, translateRepoError(op, err)
		}
		return current, nil
	}

	req.Status = outcome
	req.ResponseMessage = strings.TrimSpace(message)
	req.DecidedAt = &now
	approvalDecisions.WithLabelValues(string(outcome)).Inc()

	uc.logger.Info("approval decided",
		zap.String("transfer_id", t.ID),
		zap.String("request_id", req.ID),
		zap.String("outcome", string(outcome)),
		zap.String("by", id.UserID))

	dispatchNotification(ctx, uc.notifier, uc.logger, &Notification{
		Kind:     NotifyApprovalDecided,
		To:       req.RequesterEmail,
		Transfer: t,
		Approval: req,
	})
	return req, nil
}

// Get returns a request visible to id.
func (uc *ApprovalUseCase) Get(ctx context.Context, requestID string, id Identity) (*ApprovalRequest, error) {
	req, _, err := uc.load(ctx, "approval.Get", requestID, id)
	return req, err
}

// ListPending lists pending requests for the caller's transfers. Admins see
// every pending request.
func (uc *ApprovalUseCase) ListPending(ctx context.Context, id Identity) ([]*ApprovalRequest, error) {
	const op = "approval.ListPending"

	if id.IsAnonymous() {
		return nil, apperrors.New(op, apperrors.KindUnauthorized)
	}
	owner := id.UserID
	if id.HasRole(RoleAdmin) {
		owner = ""
	}
	list, err := uc.approvals.ListPendingApprovals(ctx, owner)
	if err != nil {
		return nil, apperrors.Storage(op, err)
	}
	return list, nil
}

// Lookup returns the request of email on transferID, or nil if none.
func (uc *ApprovalUseCase) Lookup(ctx context.Context, transferID, email string) (*ApprovalRequest, error) {
	const op = "approval.Lookup"

	normalized, err := NormalizeEmail(email)
	if err != nil {
		return nil, nil
	}
	req, err := uc.approvals.FindApproval(ctx, transferID, normalized)
	if errors.Is(err, ErrApprovalNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Storage(op, err)
	}
	return req, nil
}

func (uc *ApprovalUseCase) load(ctx context.Context, op, requestID string, id Identity) (*ApprovalRequest, *Transfer, error) {
	req, err := uc.approvals.GetApproval(ctx, requestID)
	if err != nil {
		return nil, nil, translateRepoError(op, err)
	}
	t, err := uc.transfers.GetByID(ctx, req.TransferID)
	if err != nil {
		return nil, nil, translateRepoError(op, err)
	}
	if !CanManage(id, t.UserID) {
		return nil, nil, apperrors.New(op, apperrors.KindForbidden, "not the owner of this transfer")
	}
	return req, t, nil
}
