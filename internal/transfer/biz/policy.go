package biz

import (
	"context"
	"time"

	apperrors "github.com/kingshare/transfer-backend/internal/pkg/errors"
	"github.com/kingshare/transfer-backend/internal/pkg/logger"
	"go.uber.org/zap"
)

// AccessRequest is one attempt to access a share. Empty Password and
// RequesterEmail mean "not provided". A non-empty FileID narrows the
// download to that file of the transfer.
type AccessRequest struct {
	Token          string
	Now            time.Time
	Password       string
	RequesterEmail string
	FileID         string
	IP             string
	UserAgent      string
}

// FileRef is enough to stream one file from the blob store.
type FileRef struct {
	FileID     string
	FileName   string
	FileSize   int64
	MimeType   string
	StorageKey string
}

// Grant is the result of an allowed access.
type Grant struct {
	Transfer *Transfer
	Files    []FileRef
	Event    *DownloadEvent
}

// PolicyEvaluator decides each access attempt.
type PolicyEvaluator struct {
	transfers TransferRepo
	approvals *ApprovalUseCase
	tracker   *DownloadTracker
	logger    *logger.Logger
}

// NewPolicyEvaluator creates an evaluator.
func NewPolicyEvaluator(transfers TransferRepo, approvals *ApprovalUseCase, tracker *DownloadTracker, log *logger.Logger) *PolicyEvaluator {
	return &PolicyEvaluator{
		transfers: transfers,
		approvals: approvals,
		tracker:   tracker,
		logger:    log.Named("policy"),
	}
}

// Evaluate runs the ordered checks and, if all pass, records the download.
// Only the final step has side effects.
func (e *PolicyEvaluator) Evaluate(ctx context.Context, req AccessRequest) (*Grant, error) {
	const op = "policy.Evaluate"

	t, err := e.check(ctx, op, req)
	if err != nil {
		e.observe(req, err)
		return nil, err
	}
	files, err := selectFiles(op, t, req.FileID)
	if err != nil {
		e.observe(req, err)
		return nil, err
	}

	event, err := e.tracker.record(ctx, t, req.IP, req.UserAgent, req.Now)
	if err != nil {
		e.observe(req, err)
		return nil, err
	}

	e.observe(req, nil)
	return &Grant{Transfer: t, Files: files, Event: event}, nil
}

// Inspect runs the same checks as Evaluate without recording a download.
func (e *PolicyEvaluator) Inspect(ctx context.Context, req AccessRequest) (*Transfer, error) {
	return e.check(ctx, "policy.Inspect", req)
}

func (e *PolicyEvaluator) check(ctx context.Context, op string, req AccessRequest) (*Transfer, error) {
	if req.Now.IsZero() {
		req.Now = time.Now()
	}

	if req.Token == "" {
		return nil, apperrors.New(op, apperrors.KindTransferNotFound)
	}
	t, err := e.transfers.GetByToken(ctx, req.Token)
	if err != nil {
		return nil, translateRepoError(op, err)
	}

	switch EffectiveStatus(t, req.Now) {
	case StatusRevoked:
		return nil, apperrors.New(op, apperrors.KindTransferRevoked)
	case StatusExpired:
		return nil, apperrors.New(op, apperrors.KindTransferExpired)
	case StatusExhausted:
		return nil, apperrors.New(op, apperrors.KindDownloadLimitReached)
	}

	if t.HasPassword() {
		if req.Password == "" {
			return nil, apperrors.New(op, apperrors.KindPasswordRequired)
		}
		ok, err := CheckPassword(t.PasswordHash, req.Password)
		if err != nil {
			return nil, apperrors.Wrap(err, op, apperrors.KindInternal)
		}
		if !ok {
			return nil, apperrors.New(op, apperrors.KindPasswordIncorrect)
		}
	}

	if t.ApprovalRequired {
		if req.RequesterEmail == "" {
			return nil, apperrors.New(op, apperrors.KindApprovalRequired)
		}
		ar, err := e.approvals.Lookup(ctx, t.ID, req.RequesterEmail)
		if err != nil {
			return nil, err
		}
		switch {
		case ar == nil:
			return nil, apperrors.New(op, apperrors.KindApprovalRequired)
		case ar.Status == ApprovalPending:
			return nil, apperrors.New(op, apperrors.KindApprovalPending)
		case ar.Status == ApprovalDenied:
			return nil, apperrors.New(op, apperrors.KindApprovalDenied)
		}
	}

	return t, nil
}

func (e *PolicyEvaluator) observe(req AccessRequest, err error) {
	kind := apperrors.KindOf(err)
	accessDecisions.WithLabelValues(string(kind)).Inc()
	if err != nil && apperrors.IsServerError(kind) {
		e.logger.Error("access evaluation failed", zap.String("kind", string(kind)), zap.Error(err))
	}
}

// selectFiles returns every file of t, or only fileID when set.
func selectFiles(op string, t *Transfer, fileID string) ([]FileRef, error) {
	refs := fileRefs(t)
	if fileID == "" {
		return refs, nil
	}
	for _, ref := range refs {
		if ref.FileID == fileID {
			return []FileRef{ref}, nil
		}
	}
	return nil, apperrors.New(op, apperrors.KindInvalidArgument, "unknown file")
}

func fileRefs(t *Transfer) []FileRef {
	refs := make([]FileRef, len(t.Files))
	for i, f := range t.Files {
		refs[i] = FileRef{
			FileID:     f.ID,
			FileName:   f.FileName,
			FileSize:   f.FileSize,
			MimeType:   f.MimeType,
			StorageKey: f.StorageKey,
		}
	}
	return refs
}
