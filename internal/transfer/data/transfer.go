package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kingshare/transfer-backend/internal/pkg/database"
	"github.com/kingshare/transfer-backend/internal/transfer/biz"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TransferRepo PostgreSQL 实现，同时实现审批和下载仓储
type TransferRepo struct {
	db *database.DB
}

var (
	_ biz.TransferRepo = (*TransferRepo)(nil)
	_ biz.ApprovalRepo = (*TransferRepo)(nil)
	_ biz.DownloadRepo = (*TransferRepo)(nil)
)

// NewTransferRepo 创建仓储
func NewTransferRepo(db *database.DB) *TransferRepo {
	return &TransferRepo{db: db}
}

func (r *TransferRepo) Create(ctx context.Context, t *biz.Transfer) error {
	po := toTransferPO(t)
	err := r.db.Transaction(ctx, func(ctx context.Context, tx *gorm.DB) error {
		return tx.Create(po).Error
	})
	if database.IsDuplicateKeyError(err) {
		return biz.ErrDuplicateToken
	}
	if err != nil {
		return fmt.Errorf("create transfer: %w", err)
	}
	return nil
}

func (r *TransferRepo) TokenExists(ctx context.Context, token string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&TransferPO{}).
		Where("share_token = ?", token).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("check token: %w", err)
	}
	return count > 0, nil
}

func withFiles(db *gorm.DB) *gorm.DB {
	return db.Preload("Files", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC")
	})
}

func (r *TransferRepo) GetByToken(ctx context.Context, token string) (*biz.Transfer, error) {
	return r.getBy(ctx, "share_token = ?", token)
}

func (r *TransferRepo) GetByID(ctx context.Context, id string) (*biz.Transfer, error) {
	return r.getBy(ctx, "id = ?", id)
}

func (r *TransferRepo) getBy(ctx context.Context, cond string, arg string) (*biz.Transfer, error) {
	var po TransferPO
	err := r.db.WithContext(ctx).Scopes(withFiles).Where(cond, arg).First(&po).Error
	if database.IsRecordNotFoundError(err) {
		return nil, biz.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get transfer: %w", err)
	}
	return po.toBiz(), nil
}

func (r *TransferRepo) ListByOwner(ctx context.Context, userID string) ([]*biz.Transfer, error) {
	var pos []TransferPO
	err := r.db.WithContext(ctx).Scopes(withFiles, database.OrderBy("created_at", true)).
		Where("user_id = ?", userID).
		Find(&pos).Error
	if err != nil {
		return nil, fmt.Errorf("list transfers: %w", err)
	}

	list := make([]*biz.Transfer, len(pos))
	for i := range pos {
		list[i] = pos[i].toBiz()
	}
	return list, nil
}

func (r *TransferRepo) Revoke(ctx context.Context, id string, at time.Time) error {
	res := revokeQuery(r.db.WithContext(ctx).DB, id, at)
	if res.Error != nil {
		return fmt.Errorf("revoke transfer: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		// Either missing or already revoked.
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func revokeQuery(db *gorm.DB, id string, at time.Time) *gorm.DB {
	return db.Model(&TransferPO{}).
		Where("id = ? AND status <> ?", id, string(biz.StatusRevoked)).
		UpdateColumns(map[string]interface{}{
			"status":     string(biz.StatusRevoked),
			"updated_at": at,
		})
}

func (r *TransferRepo) MarkExpired(ctx context.Context, now time.Time) (int64, error) {
	res := markExpiredQuery(r.db.WithContext(ctx).DB, now)
	if res.Error != nil {
		return 0, fmt.Errorf("mark expired: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func markExpiredQuery(db *gorm.DB, now time.Time) *gorm.DB {
	return db.Model(&TransferPO{}).
		Where("status = ? AND expiration_at < ?", string(biz.StatusActive), now).
		UpdateColumns(map[string]interface{}{
			"status":     string(biz.StatusExpired),
			"updated_at": now,
		})
}

// IncrementDownload 条件自增和事件写入在同一事务中完成，返回自增后的计数
func (r *TransferRepo) IncrementDownload(ctx context.Context, transferID string, event *biz.DownloadEvent) (int, error) {
	var count int
	err := r.db.Transaction(ctx, func(ctx context.Context, tx *gorm.DB) error {
		var po TransferPO
		res := incrementQuery(tx, &po, transferID, event.DownloadedAt)
		if res.Error != nil {
			return fmt.Errorf("increment download count: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return refusalReason(tx, transferID)
		}
		if err := tx.Create(toEventPO(event)).Error; err != nil {
			return fmt.Errorf("append download event: %w", err)
		}
		count = po.DownloadCount
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// incrementQuery compare-and-increment: matches only while the transfer is
// not revoked and below its limit. The new count is returned into dest.
func incrementQuery(db *gorm.DB, dest *TransferPO, transferID string, at time.Time) *gorm.DB {
	return db.Model(dest).
		Clauses(clause.Returning{Columns: []clause.Column{{Name: "download_count"}}}).
		Where("id = ? AND status <> ? AND (download_limit IS NULL OR download_count < download_limit)",
			transferID, string(biz.StatusRevoked)).
		UpdateColumns(map[string]interface{}{
			"download_count": gorm.Expr("download_count + 1"),
			"updated_at":     at,
		})
}

func refusalReason(tx *gorm.DB, transferID string) error {
	var po TransferPO
	err := tx.Select("id", "status").Where("id = ?", transferID).Take(&po).Error
	switch {
	case database.IsRecordNotFoundError(err):
		return biz.ErrNotFound
	case err != nil:
		return fmt.Errorf("load transfer: %w", err)
	case biz.Status(po.Status) == biz.StatusRevoked:
		return biz.ErrRevoked
	default:
		return biz.ErrLimitReached
	}
}

type summaryRow struct {
	TotalDownloads    int64
	UniqueDownloaders int64
	LastDownload      *time.Time
}

func (r *TransferRepo) DownloadSummary(ctx context.Context, transferID string) (*biz.DownloadSummary, error) {
	var row summaryRow
	if err := summaryQuery(r.db.WithContext(ctx).DB, transferID).Scan(&row).Error; err != nil {
		return nil, fmt.Errorf("download summary: %w", err)
	}
	return &biz.DownloadSummary{
		TotalDownloads:    row.TotalDownloads,
		UniqueDownloaders: row.UniqueDownloaders,
		LastDownload:      row.LastDownload,
	}, nil
}

func summaryQuery(db *gorm.DB, transferID string) *gorm.DB {
	return db.Model(&DownloadEventPO{}).
		Select("COUNT(*) AS total_downloads, "+
			"COUNT(DISTINCT NULLIF(ip_address, '')) AS unique_downloaders, "+
			"MAX(downloaded_at) AS last_download").
		Where("transfer_id = ?", transferID)
}

func (r *TransferRepo) ListDownloadEvents(ctx context.Context, transferID string, limit int) ([]*biz.DownloadEvent, error) {
	var pos []DownloadEventPO
	q := r.db.WithContext(ctx).
		Where("transfer_id = ?", transferID).
		Order("downloaded_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&pos).Error; err != nil {
		return nil, fmt.Errorf("list download events: %w", err)
	}

	events := make([]*biz.DownloadEvent, len(pos))
	for i := range pos {
		events[i] = pos[i].toBiz()
	}
	return events, nil
}

// CreateApproval 依赖 (transfer_id, requester_email) 唯一索引实现幂等
func (r *TransferRepo) CreateApproval(ctx context.Context, req *biz.ApprovalRequest) (*biz.ApprovalRequest, bool, error) {
	var (
		stored  *biz.ApprovalRequest
		created bool
	)
	err := r.db.Transaction(ctx, func(ctx context.Context, tx *gorm.DB) error {
		po := toApprovalPO(req)
		res := insertApprovalQuery(tx, po)
		if res.Error != nil {
			return fmt.Errorf("insert approval: %w", res.Error)
		}
		if res.RowsAffected == 1 {
			stored, created = po.toBiz(), true
			return nil
		}

		var existing ApprovalRequestPO
		if err := tx.Where("transfer_id = ? AND requester_email = ?", req.TransferID, req.RequesterEmail).
			Take(&existing).Error; err != nil {
			return fmt.Errorf("load existing approval: %w", err)
		}
		stored = existing.toBiz()
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return stored, created, nil
}

func insertApprovalQuery(db *gorm.DB, po *ApprovalRequestPO) *gorm.DB {
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "transfer_id"}, {Name: "requester_email"}},
		DoNothing: true,
	}).Create(po)
}

func (r *TransferRepo) GetApproval(ctx context.Context, id string) (*biz.ApprovalRequest, error) {
	return r.getApproval(ctx, "id = ?", id)
}

func (r *TransferRepo) FindApproval(ctx context.Context, transferID, email string) (*biz.ApprovalRequest, error) {
	return r.getApproval(ctx, "transfer_id = ? AND requester_email = ?", transferID, email)
}

func (r *TransferRepo) getApproval(ctx context.Context, cond string, args ...interface{}) (*biz.ApprovalRequest, error) {
	var po ApprovalRequestPO
	err := r.db.WithContext(ctx).Where(cond, args...).Take(&po).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, biz.ErrApprovalNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get approval: %w", err)
	}
	return po.toBiz(), nil
}

func (r *TransferRepo) DecideApproval(ctx context.Context, id string, outcome biz.ApprovalStatus, message string, at time.Time) (bool, error) {
	res := decideQuery(r.db.WithContext(ctx).DB, id, outcome, message, at)
	if res.Error != nil {
		return false, fmt.Errorf("decide approval: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// decideQuery first writer wins: the row only matches while PENDING.
func decideQuery(db *gorm.DB, id string, outcome biz.ApprovalStatus, message string, at time.Time) *gorm.DB {
	return db.Model(&ApprovalRequestPO{}).
		Where("id = ? AND status = ?", id, string(biz.ApprovalPending)).
		UpdateColumns(map[string]interface{}{
			"status":           string(outcome),
			"response_message": message,
			"decided_at":       at,
		})
}

func (r *TransferRepo) ListPendingApprovals(ctx context.Context, ownerID string) ([]*biz.ApprovalRequest, error) {
	var pos []ApprovalRequestPO
	if err := pendingQuery(r.db.WithContext(ctx).DB, ownerID).Find(&pos).Error; err != nil {
		return nil, fmt.Errorf("list pending approvals: %w", err)
	}

	list := make([]*biz.ApprovalRequest, len(pos))
	for i := range pos {
		list[i] = pos[i].toBiz()
	}
	return list, nil
}

func pendingQuery(db *gorm.DB, ownerID string) *gorm.DB {
	q := db.Model(&ApprovalRequestPO{}).
		Select("approval_requests.*").
		Joins("JOIN transfers ON transfers.id = approval_requests.transfer_id").
		Where("approval_requests.status = ?", string(biz.ApprovalPending))
	if ownerID != "" {
		q = q.Where("transfers.user_id = ?", ownerID)
	}
	return q.Order("approval_requests.created_at ASC")
}
