package data

import (
	"time"

	"github.com/kingshare/transfer-backend/internal/transfer/biz"
)

// TransferPO 传输记录
type TransferPO struct {
	ID               string           `gorm:"type:uuid;primarykey"`
	ShareToken       string           `gorm:"size:64;not null;uniqueIndex:idx_transfers_share_token"`
	UserID           string           `gorm:"size:64;index:idx_transfers_user_id"`
	Title            string           `gorm:"size:255"`
	Message          string           `gorm:"type:text"`
	SenderEmail      string           `gorm:"size:320"`
	RecipientEmail   string           `gorm:"size:320"`
	PasswordHash     string           `gorm:"size:100"`
	ExpirationAt     time.Time        `gorm:"not null;index:idx_transfers_status_expiration,priority:2"`
	DownloadLimit    *int             `gorm:""`
	DownloadCount    int              `gorm:"not null;default:0"`
	TrackingEnabled  bool             `gorm:"not null;default:false"`
	ApprovalRequired bool             `gorm:"not null;default:false"`
	Status           string           `gorm:"size:16;not null;default:'ACTIVE';index:idx_transfers_status_expiration,priority:1"`
	TotalSize        int64            `gorm:"not null;default:0"`
	ClientOrigin     string           `gorm:"size:255"`
	CreatedAt        time.Time        `gorm:"not null"`
	UpdatedAt        time.Time        `gorm:"not null"`
	Files            []TransferFilePO `gorm:"foreignKey:TransferID;constraint:OnDelete:CASCADE"`
}

func (TransferPO) TableName() string {
	return "transfers"
}

// TransferFilePO 传输中的单个文件
type TransferFilePO struct {
	ID         string `gorm:"type:uuid;primarykey"`
	TransferID string `gorm:"type:uuid;not null;index:idx_transfer_files_transfer_id"`
	FileName   string `gorm:"size:255;not null"`
	FileSize   int64  `gorm:"not null"`
	MimeType   string `gorm:"size:255"`
	StorageKey string `gorm:"size:1024;not null"`
	Position   int    `gorm:"not null;default:0"`
}

func (TransferFilePO) TableName() string {
	return "transfer_files"
}

// ApprovalRequestPO 访问审批请求，每个 (transfer, email) 只有一条
type ApprovalRequestPO struct {
	ID              string     `gorm:"type:uuid;primarykey"`
	TransferID      string     `gorm:"type:uuid;not null;uniqueIndex:idx_approval_requests_transfer_email,priority:1"`
	RequesterEmail  string     `gorm:"size:320;not null;uniqueIndex:idx_approval_requests_transfer_email,priority:2"`
	Status          string     `gorm:"size:16;not null;default:'PENDING';index:idx_approval_requests_status"`
	RequestMessage  string     `gorm:"type:text"`
	ResponseMessage string     `gorm:"type:text"`
	CreatedAt       time.Time  `gorm:"not null"`
	DecidedAt       *time.Time `gorm:""`
}

func (ApprovalRequestPO) TableName() string {
	return "approval_requests"
}

// DownloadEventPO 下载审计记录，只追加
type DownloadEventPO struct {
	ID           string    `gorm:"type:uuid;primarykey"`
	TransferID   string    `gorm:"type:uuid;not null;index:idx_download_events_transfer_time,priority:1"`
	IPAddress    string    `gorm:"size:64"`
	Location     string    `gorm:"size:255"`
	UserAgent    string    `gorm:"size:512"`
	DownloadedAt time.Time `gorm:"not null;index:idx_download_events_transfer_time,priority:2,sort:desc"`
}

func (DownloadEventPO) TableName() string {
	return "download_events"
}

// Models 需要迁移的表
func Models() []interface{} {
	return []interface{}{
		&TransferPO{},
		&TransferFilePO{},
		&ApprovalRequestPO{},
		&DownloadEventPO{},
	}
}

func toTransferPO(t *biz.Transfer) *TransferPO {
	po := &TransferPO{
		ID:               t.ID,
		ShareToken:       t.ShareToken,
		UserID:           t.UserID,
		Title:            t.Title,
		Message:          t.Message,
		SenderEmail:      t.SenderEmail,
		RecipientEmail:   t.RecipientEmail,
		PasswordHash:     t.PasswordHash,
		ExpirationAt:     t.ExpirationAt,
		DownloadLimit:    t.DownloadLimit,
		DownloadCount:    t.DownloadCount,
		TrackingEnabled:  t.TrackingEnabled,
		ApprovalRequired: t.ApprovalRequired,
		Status:           string(t.Status),
		TotalSize:        t.TotalSize,
		ClientOrigin:     t.ClientOrigin,
		CreatedAt:        t.CreatedAt,
		UpdatedAt:        t.UpdatedAt,
		Files:            make([]TransferFilePO, len(t.Files)),
	}
	for i, f := range t.Files {
		po.Files[i] = TransferFilePO{
			ID:         f.ID,
			TransferID: t.ID,
			FileName:   f.FileName,
			FileSize:   f.FileSize,
			MimeType:   f.MimeType,
			StorageKey: f.StorageKey,
			Position:   f.Position,
		}
	}
	return po
}

func (po *TransferPO) toBiz() *biz.Transfer {
	t := &biz.Transfer{
		ID:               po.ID,
		ShareToken:       po.ShareToken,
		UserID:           po.UserID,
		Title:            po.Title,
		Message:          po.Message,
		SenderEmail:      po.SenderEmail,
		RecipientEmail:   po.RecipientEmail,
		PasswordHash:     po.PasswordHash,
		ExpirationAt:     po.ExpirationAt,
		DownloadLimit:    po.DownloadLimit,
		DownloadCount:    po.DownloadCount,
		TrackingEnabled:  po.TrackingEnabled,
		ApprovalRequired: po.ApprovalRequired,
		Status:           biz.Status(po.Status),
		TotalSize:        po.TotalSize,
		ClientOrigin:     po.ClientOrigin,
		CreatedAt:        po.CreatedAt,
		UpdatedAt:        po.UpdatedAt,
		Files:            make([]biz.TransferFile, len(po.Files)),
	}
	for i, f := range po.Files {
		t.Files[i] = biz.TransferFile{
			ID:         f.ID,
			FileName:   f.FileName,
			FileSize:   f.FileSize,
			MimeType:   f.MimeType,
			StorageKey: f.StorageKey,
			Position:   f.Position,
		}
	}
	return t
}

func toApprovalPO(r *biz.ApprovalRequest) *ApprovalRequestPO {
	return &ApprovalRequestPO{
		ID:              r.ID,
		TransferID:      r.TransferID,
		RequesterEmail:  r.RequesterEmail,
		Status:          string(r.Status),
		RequestMessage:  r.RequestMessage,
		ResponseMessage: r.ResponseMessage,
		CreatedAt:       r.CreatedAt,
		DecidedAt:       r.DecidedAt,
	}
}

func (po *ApprovalRequestPO) toBiz() *biz.ApprovalRequest {
	return &biz.ApprovalRequest{
		ID:              po.ID,
		TransferID:      po.TransferID,
		RequesterEmail:  po.RequesterEmail,
		Status:          biz.ApprovalStatus(po.Status),
		RequestMessage:  po.RequestMessage,
		ResponseMessage: po.ResponseMessage,
		CreatedAt:       po.CreatedAt,
		DecidedAt:       po.DecidedAt,
	}
}

func toEventPO(e *biz.DownloadEvent) *DownloadEventPO {
	return &DownloadEventPO{
		ID:           e.ID,
		TransferID:   e.TransferID,
		IPAddress:    e.IPAddress,
		Location:     e.Location,
		UserAgent:    e.UserAgent,
		DownloadedAt: e.DownloadedAt,
	}
}

func (po *DownloadEventPO) toBiz() *biz.DownloadEvent {
	return &biz.DownloadEvent{
		ID:           po.ID,
		TransferID:   po.TransferID,
		IPAddress:    po.IPAddress,
		Location:     po.Location,
		UserAgent:    po.UserAgent,
		DownloadedAt: po.DownloadedAt,
	}
}
