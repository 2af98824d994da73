package biz

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/kingshare/transfer-backend/internal/pkg/errors"
	"github.com/kingshare/transfer-backend/internal/pkg/logger"
	"go.uber.org/zap"
)

// Status of a transfer. Only ACTIVE and REVOKED are authoritative when
// persisted; EXPIRED may be written at rest by the sweeper as a hint.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusExpired   Status = "EXPIRED"
	StatusExhausted Status = "EXHAUSTED"
	StatusRevoked   Status = "REVOKED"
)

// DefaultMaxExpirationDays bounds expirationDays when no limit is configured.
const DefaultMaxExpirationDays = 365

// TransferFile is one file of a transfer. StorageKey references the blob store.
type TransferFile struct {
	ID         string
	FileName   string
	FileSize   int64
	MimeType   string
	StorageKey string
	Position   int
}

// Transfer is the unit of a share.
type Transfer struct {
	ID               string
	ShareToken       string
	UserID           string
	Title            string
	Message          string
	SenderEmail      string
	RecipientEmail   string
	PasswordHash     string
	ExpirationAt     time.Time
	DownloadLimit    *int
	DownloadCount    int
	TrackingEnabled  bool
	ApprovalRequired bool
	Status           Status
	TotalSize        int64
	ClientOrigin     string
	Files            []TransferFile
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (t *Transfer) HasPassword() bool {
	return t.PasswordHash != ""
}

// RemainingDownloads returns nil when the transfer is unlimited.
func (t *Transfer) RemainingDownloads() *int {
	if t.DownloadLimit == nil {
		return nil
	}
	n := *t.DownloadLimit - t.DownloadCount
	if n < 0 {
		n = 0
	}
	return &n
}

// CreateTransferRequest carries everything needed to create a transfer.
// ID and file IDs may be preassigned by callers that upload blobs first.
type CreateTransferRequest struct {
	ID              string
	UserID          string
	Title           string
	Message         string
	SenderEmail     string
	RecipientEmail  string
	Password        string
	ExpirationDays  int
	DownloadLimit   *int
	TrackingEnabled bool
	RequireApproval bool
	ShareLink       string
	ClientOrigin    string
	Files           []TransferFile
}

// Validate checks the request against maxDays.
func (r *CreateTransferRequest) Validate(maxDays int) error {
	const op = "transfer.Validate"

	if r.ExpirationDays <= 0 {
		return apperrors.New(op, apperrors.KindInvalidArgument, "expirationDays must be > 0")
	}
	if maxDays > 0 && r.ExpirationDays > maxDays {
		return apperrors.New(op, apperrors.KindInvalidArgument, fmt.Sprintf("expirationDays must be <= %d", maxDays))
	}
	if r.DownloadLimit != nil && *r.DownloadLimit < 0 {
		return apperrors.New(op, apperrors.KindInvalidArgument, "downloadLimit must be >= 0")
	}
	if len(r.Password) > MaxPasswordBytes {
		return apperrors.New(op, apperrors.KindInvalidArgument, fmt.Sprintf("password must be at most %d bytes", MaxPasswordBytes))
	}
	if len(r.Files) == 0 {
		return apperrors.New(op, apperrors.KindInvalidArgument, "at least one file is required")
	}
	for i, f := range r.Files {
		if strings.TrimSpace(f.FileName) == "" {
			return apperrors.New(op, apperrors.KindInvalidArgument, fmt.Sprintf("file %d has no name", i))
		}
		if f.FileSize < 0 {
			return apperrors.New(op, apperrors.KindInvalidArgument, fmt.Sprintf("file %d has negative size", i))
		}
	}
	for _, addr := range []string{r.SenderEmail, r.RecipientEmail} {
		if addr == "" {
			continue
		}
		if _, err := NormalizeEmail(addr); err != nil {
			return apperrors.Wrap(err, op, apperrors.KindInvalidArgument, "invalid email address")
		}
	}
	return nil
}

// TransferRepo persists transfers. Implementations must enforce share
// token uniqueness and return ErrDuplicateToken on conflict.
type TransferRepo interface {
	Create(ctx context.Context, t *Transfer) error
	TokenExists(ctx context.Context, token string) (bool, error)
	GetByToken(ctx context.Context, token string) (*Transfer, error)
	GetByID(ctx context.Context, id string) (*Transfer, error)
	ListByOwner(ctx context.Context, userID string) ([]*Transfer, error)
	Revoke(ctx context.Context, id string, at time.Time) error
	// MarkExpired flags ACTIVE transfers past their expiration. Advisory only.
	MarkExpired(ctx context.Context, now time.Time) (int64, error)
}

// Option configures the use cases in this package.
type Option func(*options)

type options struct {
	now               func() time.Time
	maxExpirationDays int
	passwordCost      int
}

func defaultOptions() options {
	return options{
		now:               time.Now,
		maxExpirationDays: DefaultMaxExpirationDays,
		passwordCost:      DefaultPasswordCost,
	}
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithMaxExpirationDays sets the upper bound for expirationDays.
func WithMaxExpirationDays(days int) Option {
	return func(o *options) {
		if days > 0 {
			o.maxExpirationDays = days
		}
	}
}

// WithPasswordCost sets the bcrypt cost for transfer passwords.
func WithPasswordCost(cost int) Option {
	return func(o *options) { o.passwordCost = cost }
}

// TransferUseCase creates and mutates transfers.
type TransferUseCase struct {
	repo     TransferRepo
	issuer   *TokenIssuer
	notifier Notifier
	logger   *logger.Logger
	opts     options
}

// NewTransferUseCase creates a transfer use case.
func NewTransferUseCase(repo TransferRepo, issuer *TokenIssuer, notifier Notifier, log *logger.Logger, opts ...Option) *TransferUseCase {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &TransferUseCase{
		repo:     repo,
		issuer:   issuer,
		notifier: notifier,
		logger:   log.Named("transfer"),
		opts:     o,
	}
}

// Now returns the use case's current time.
func (uc *TransferUseCase) Now() time.Time {
	return uc.opts.now()
}

// Create validates req, hashes the password, allocates a share token and
// persists the transfer.
func (uc *TransferUseCase) Create(ctx context.Context, req *CreateTransferRequest) (*Transfer, error) {
	const op = "transfer.Create"

	if req == nil {
		return nil, apperrors.New(op, apperrors.KindInvalidArgument, "request is required")
	}
	if err := req.Validate(uc.opts.maxExpirationDays); err != nil {
		return nil, err
	}

	var passwordHash string
	if req.Password != "" {
		h, err := HashPassword(req.Password, uc.opts.passwordCost)
		if err != nil {
			return nil, apperrors.Wrap(err, op, apperrors.KindInternal)
		}
		passwordHash = h
	}

	now := uc.opts.now().UTC()
	t := &Transfer{
		ID:               req.ID,
		UserID:           req.UserID,
		Title:            strings.TrimSpace(req.Title),
		Message:          req.Message,
		SenderEmail:      req.SenderEmail,
		RecipientEmail:   req.RecipientEmail,
		PasswordHash:     passwordHash,
		ExpirationAt:     now.Add(time.Duration(req.ExpirationDays) * 24 * time.Hour),
		DownloadLimit:    req.DownloadLimit,
		TrackingEnabled:  req.TrackingEnabled,
		ApprovalRequired: req.RequireApproval,
		Status:           StatusActive,
		ClientOrigin:     req.ClientOrigin,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}

	t.Files = make([]TransferFile, len(req.Files))
	for i, f := range req.Files {
		if f.ID == "" {
			f.ID = uuid.NewString()
		}
		f.Position = i
		t.Files[i] = f
		t.TotalSize += f.FileSize
	}

	if err := uc.persistWithToken(ctx, t, req.ShareLink); err != nil {
		return nil, err
	}

	uc.logger.Info("transfer created",
		zap.String("transfer_id", t.ID),
		zap.String("user_id", t.UserID),
		zap.Int("files", len(t.Files)),
		zap.Bool("password", t.HasPassword()),
		zap.Bool("approval_required", t.ApprovalRequired))
	transfersCreated.Inc()

	if t.RecipientEmail != "" {
		uc.dispatch(ctx, &Notification{Kind: NotifyTransferShared, To: t.RecipientEmail, Transfer: t})
	}

	return t, nil
}

// persistWithToken allocates a token and inserts t, retrying when a
// concurrent insert takes the same token between the existence check and
// the insert. Every allocation counts against the issuer's attempt budget.
func (uc *TransferUseCase) persistWithToken(ctx context.Context, t *Transfer, proposed string) error {
	const op = "transfer.Create"

	budget := uc.issuer.MaxAttempts()
	for budget > 0 {
		token, used, err := uc.issuer.allocate(ctx, proposed, budget)
		budget -= used
		if err != nil {
			return err
		}
		proposed = ""

		t.ShareToken = token
		err = uc.repo.Create(ctx, t)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrDuplicateToken) {
			return apperrors.Storage(op, err)
		}
		uc.logger.Warn("share token taken on insert, reallocating", zap.String("transfer_id", t.ID))
	}
	return apperrors.New(op, apperrors.KindTokenSpaceExhausted)
}

// Get returns the transfer behind a share token.
func (uc *TransferUseCase) Get(ctx context.Context, token string) (*Transfer, error) {
	const op = "transfer.Get"

	if token == "" {
		return nil, apperrors.New(op, apperrors.KindTransferNotFound)
	}
	t, err := uc.repo.GetByToken(ctx, token)
	if err != nil {
		return nil, translateRepoError(op, err)
	}
	return t, nil
}

// GetByID returns a transfer by id if id may manage it.
func (uc *TransferUseCase) GetByID(ctx context.Context, transferID string, id Identity) (*Transfer, error) {
	const op = "transfer.GetByID"

	t, err := uc.repo.GetByID(ctx, transferID)
	if err != nil {
		return nil, translateRepoError(op, err)
	}
	if !CanManage(id, t.UserID) {
		return nil, apperrors.New(op, apperrors.KindForbidden, "not the owner of this transfer")
	}
	return t, nil
}

// Revoke permanently disables a transfer. Revoking twice is a no-op.
func (uc *TransferUseCase) Revoke(ctx context.Context, transferID string, id Identity) (*Transfer, error) {
	const op = "transfer.Revoke"

	t, err := uc.GetByID(ctx, transferID, id)
	if err != nil {
		return nil, err
	}
	if t.Status == StatusRevoked {
		return t, nil
	}

	now := uc.opts.now().UTC()
	if err := uc.repo.Revoke(ctx, t.ID, now); err != nil {
		return nil, translateRepoError(op, err)
	}
	t.Status = StatusRevoked
	t.UpdatedAt = now

	uc.logger.Info("transfer revoked",
		zap.String("transfer_id", t.ID),
		zap.String("by", id.UserID))
	return t, nil
}

// ListByOwner lists the caller's transfers, newest first.
func (uc *TransferUseCase) ListByOwner(ctx context.Context, id Identity) ([]*Transfer, error) {
	const op = "transfer.ListByOwner"

	if id.IsAnonymous() {
		return nil, apperrors.New(op, apperrors.KindUnauthorized)
	}
	list, err := uc.repo.ListByOwner(ctx, id.UserID)
	if err != nil {
		return nil, apperrors.Storage(op, err)
	}
	return list, nil
}

func (uc *TransferUseCase) dispatch(ctx context.Context, n *Notification) {
	dispatchNotification(ctx, uc.notifier, uc.logger, n)
}

// translateRepoError maps repository sentinels onto error kinds. Anything
// unrecognised is a storage failure.
func translateRepoError(op string, err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return apperrors.New(op, apperrors.KindTransferNotFound)
	case errors.Is(err, ErrRevoked):
		return apperrors.New(op, apperrors.KindTransferRevoked)
	case errors.Is(err, ErrLimitReached):
		return apperrors.New(op, apperrors.KindDownloadLimitReached)
	case errors.Is(err, ErrApprovalNotFound):
		return apperrors.New(op, apperrors.KindApprovalNotFound)
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return apperrors.Storage(op, err)
}

// ShareURL is the public link recipients open for token.
func ShareURL(baseURL, token string) string {
	return strings.TrimRight(baseURL, "/") + "/share/" + token
}
