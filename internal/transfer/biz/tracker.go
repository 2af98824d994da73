package biz

import (
	"context"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/kingshare/transfer-backend/internal/pkg/errors"
	"github.com/kingshare/transfer-backend/internal/pkg/logger"
	"github.com/kingshare/transfer-backend/internal/pkg/validator"
	"go.uber.org/zap"
)

// DefaultRecentDownloads is the size of the event page returned by Stats.
const DefaultRecentDownloads = 50

// geoLookupTimeout caps the best-effort location lookup on the download path.
const geoLookupTimeout = 2 * time.Second

// DownloadEvent is an append-only record of one successful download.
// IPAddress, Location and UserAgent are empty when tracking is disabled.
type DownloadEvent struct {
	ID           string
	TransferID   string
	IPAddress    string
	Location     string
	UserAgent    string
	DownloadedAt time.Time
}

// DownloadSummary is aggregated from the event log.
type DownloadSummary struct {
	TotalDownloads    int64
	UniqueDownloaders int64
	LastDownload      *time.Time
}

// DownloadStats is the owner's view of a transfer's downloads.
type DownloadStats struct {
	DownloadSummary
	Downloads []*DownloadEvent
}

// DownloadRepo owns the download counter and event log.
type DownloadRepo interface {
	// IncrementDownload atomically increments the transfer's download count
	// if it is below the limit (or unlimited) and the transfer is not
	// revoked, and appends event in the same unit of work. It returns the
	// count after the increment, or ErrLimitReached, ErrRevoked or
	// ErrNotFound without mutating anything when the increment is refused.
	IncrementDownload(ctx context.Context, transferID string, event *DownloadEvent) (int, error)
	DownloadSummary(ctx context.Context, transferID string) (*DownloadSummary, error)
	// ListDownloadEvents returns up to limit events, newest first.
	ListDownloadEvents(ctx context.Context, transferID string, limit int) ([]*DownloadEvent, error)
}

// DownloadTracker records downloads and serves statistics.
type DownloadTracker struct {
	transfers TransferRepo
	downloads DownloadRepo
	geo       GeoResolver
	logger    *logger.Logger
	opts      options
	recent    int
}

// NewDownloadTracker creates a tracker. geo may be nil.
func NewDownloadTracker(transfers TransferRepo, downloads DownloadRepo, geo GeoResolver, log *logger.Logger, opts ...Option) *DownloadTracker {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &DownloadTracker{
		transfers: transfers,
		downloads: downloads,
		geo:       geo,
		logger:    log.Named("tracker"),
		opts:      o,
		recent:    DefaultRecentDownloads,
	}
}

// SetRecentLimit sets the number of events Stats returns.
func (tr *DownloadTracker) SetRecentLimit(n int) {
	if n > 0 {
		tr.recent = n
	}
}

// RecordDownload counts one download of transferID.
func (tr *DownloadTracker) RecordDownload(ctx context.Context, transferID, ip, userAgent string) (*DownloadEvent, error) {
	t, err := tr.transfers.GetByID(ctx, transferID)
	if err != nil {
		return nil, translateRepoError("tracker.RecordDownload", err)
	}
	return tr.record(ctx, t, ip, userAgent, tr.opts.now())
}

func (tr *DownloadTracker) record(ctx context.Context, t *Transfer, ip, userAgent string, now time.Time) (*DownloadEvent, error) {
	const op = "tracker.RecordDownload"

	event := &DownloadEvent{
		ID:           uuid.NewString(),
		TransferID:   t.ID,
		DownloadedAt: now.UTC(),
	}
	if t.TrackingEnabled {
		event.IPAddress = validator.NormalizeIP(ip)
		event.UserAgent = userAgent
		event.Location = tr.locate(ctx, event.IPAddress)
	}

	count, err := tr.downloads.IncrementDownload(ctx, t.ID, event)
	if err != nil {
		return nil, translateRepoError(op, err)
	}

	t.DownloadCount = count
	downloadsRecorded.Inc()
	tr.logger.Debug("download recorded",
		zap.String("transfer_id", t.ID),
		zap.String("event_id", event.ID))
	return event, nil
}

// locate resolves ip through the geo collaborator. Failures yield "".
func (tr *DownloadTracker) locate(ctx context.Context, ip string) string {
	if tr.geo == nil || ip == "" {
		return ""
	}
	lookupCtx, cancel := context.WithTimeout(ctx, geoLookupTimeout)
	defer cancel()

	loc, err := tr.geo.Lookup(lookupCtx, ip)
	if err != nil {
		tr.logger.Warn("geo lookup failed", zap.Error(err))
		return ""
	}
	return loc
}

// Stats returns download statistics for a transfer the caller manages.
func (tr *DownloadTracker) Stats(ctx context.Context, transferID string, id Identity) (*DownloadStats, error) {
	const op = "tracker.Stats"

	t, err := tr.transfers.GetByID(ctx, transferID)
	if err != nil {
		return nil, translateRepoError(op, err)
	}
	if !CanManage(id, t.UserID) {
		return nil, apperrors.New(op, apperrors.KindForbidden, "not the owner of this transfer")
	}

	summary, err := tr.downloads.DownloadSummary(ctx, t.ID)
	if err != nil {
		return nil, apperrors.Storage(op, err)
	}
	events, err := tr.downloads.ListDownloadEvents(ctx, t.ID, tr.recent)
	if err != nil {
		return nil, apperrors.Storage(op, err)
	}

	return &DownloadStats{DownloadSummary: *summary, Downloads: events}, nil
}
