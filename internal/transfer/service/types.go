package service

import (
	"time"

	"github.com/kingshare/transfer-backend/internal/transfer/biz"
)

// CreateTransferForm 创建传输的 multipart 表单字段，文件字段名为 files
type CreateTransferForm struct {
	Title           string `form:"title" binding:"omitempty,max=255"`
	Message         string `form:"message" binding:"omitempty,max=5000"`
	SenderEmail     string `form:"sender_email" binding:"omitempty,email"`
	RecipientEmail  string `form:"recipient_email" binding:"omitempty,email"`
	Password        string `form:"password" binding:"omitempty,max=72"`
	ExpirationDays  int    `form:"expiration_days" binding:"required,min=1"`
	DownloadLimit   *int   `form:"download_limit" binding:"omitempty,min=0"`
	TrackingEnabled bool   `form:"tracking_enabled"`
	RequireApproval bool   `form:"require_approval"`
	ShareLink       string `form:"share_link" binding:"omitempty,min=8,max=64"`
}

// CreateTransferResponse 创建结果
type CreateTransferResponse struct {
	TransferID  string    `json:"transfer_id"`
	ShareToken  string    `json:"share_token"`
	ShareLink   string    `json:"share_link"`
	DownloadURL string    `json:"download_url"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// FileResponse 文件信息
type FileResponse struct {
	ID       string `json:"id"`
	FileName string `json:"file_name"`
	FileSize int64  `json:"file_size"`
	MimeType string `json:"mime_type,omitempty"`
}

// TransferResponse 所有者视角的传输详情
type TransferResponse struct {
	ID                 string          `json:"id"`
	ShareToken         string          `json:"share_token"`
	ShareLink          string          `json:"share_link"`
	Title              string          `json:"title"`
	Message            string          `json:"message,omitempty"`
	RecipientEmail     string          `json:"recipient_email,omitempty"`
	Status             string          `json:"status"`
	ExpirationAt       time.Time       `json:"expiration_at"`
	DownloadLimit      *int            `json:"download_limit"`
	DownloadCount      int             `json:"download_count"`
	RemainingDownloads *int            `json:"remaining_downloads"`
	TrackingEnabled    bool            `json:"tracking_enabled"`
	ApprovalRequired   bool            `json:"approval_required"`
	PasswordProtected  bool            `json:"password_protected"`
	TotalSize          int64           `json:"total_size"`
	Files              []*FileResponse `json:"files"`
	CreatedAt          time.Time       `json:"created_at"`
}

// ListTransfersResponse 列表响应
type ListTransfersResponse struct {
	Items []*TransferResponse `json:"items"`
	Total int                 `json:"total"`
}

// ShareResponse 接收方视角，不含所有者信息
type ShareResponse struct {
	Title              string          `json:"title"`
	Message            string          `json:"message,omitempty"`
	SenderEmail        string          `json:"sender_email,omitempty"`
	ExpirationAt       time.Time       `json:"expiration_at"`
	RemainingDownloads *int            `json:"remaining_downloads"`
	PasswordProtected  bool            `json:"password_protected"`
	ApprovalRequired   bool            `json:"approval_required"`
	TotalSize          int64           `json:"total_size"`
	Files              []*FileResponse `json:"files"`
}

// DownloadRequest 下载请求，字段均可选
type DownloadRequest struct {
	Password string `json:"password"`
	Email    string `json:"email" binding:"omitempty,email"`
	FileID   string `json:"file_id"` // 为空时返回全部文件
}

// DownloadFileResponse 单个文件的预签名下载地址
type DownloadFileResponse struct {
	FileID    string    `json:"file_id"`
	FileName  string    `json:"file_name"`
	FileSize  int64     `json:"file_size"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// DownloadResponse 下载响应
type DownloadResponse struct {
	DownloadID         string                  `json:"download_id"`
	RemainingDownloads *int                    `json:"remaining_downloads"`
	Files              []*DownloadFileResponse `json:"files"`
}

// RequestAccessRequest 申请访问
type RequestAccessRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"omitempty,max=72"`
	Message  string `json:"message" binding:"omitempty,max=2000"`
}

// DecisionRequest 审批决定
type DecisionRequest struct {
	Outcome string `json:"outcome" binding:"required,oneof=APPROVED DENIED approved denied"`
	Message string `json:"message" binding:"omitempty,max=2000"`
}

// ApprovalResponse 审批请求
type ApprovalResponse struct {
	ID              string     `json:"id"`
	TransferID      string     `json:"transfer_id"`
	RequesterEmail  string     `json:"requester_email"`
	Status          string     `json:"status"`
	RequestMessage  string     `json:"request_message,omitempty"`
	ResponseMessage string     `json:"response_message,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	DecidedAt       *time.Time `json:"decided_at,omitempty"`
}

// DownloadEventResponse 下载记录
type DownloadEventResponse struct {
	ID           string    `json:"id"`
	IPAddress    string    `json:"ip_address,omitempty"`
	Location     string    `json:"location,omitempty"`
	UserAgent    string    `json:"user_agent,omitempty"`
	DownloadedAt time.Time `json:"downloaded_at"`
}

// DownloadStatsResponse 下载统计
type DownloadStatsResponse struct {
	TotalDownloads    int64                    `json:"total_downloads"`
	UniqueDownloaders int64                    `json:"unique_downloaders"`
	LastDownload      *time.Time               `json:"last_download"`
	Downloads         []*DownloadEventResponse `json:"downloads"`
}

func toFileResponses(files []biz.TransferFile) []*FileResponse {
	out := make([]*FileResponse, len(files))
	for i, f := range files {
		out[i] = &FileResponse{ID: f.ID, FileName: f.FileName, FileSize: f.FileSize, MimeType: f.MimeType}
	}
	return out
}

func toTransferResponse(t *biz.Transfer, baseURL string, now time.Time) *TransferResponse {
	return &TransferResponse{
		ID:                 t.ID,
		ShareToken:         t.ShareToken,
		ShareLink:          biz.ShareURL(baseURL, t.ShareToken),
		Title:              t.Title,
		Message:            t.Message,
		RecipientEmail:     t.RecipientEmail,
		Status:             string(biz.EffectiveStatus(t, now)),
		ExpirationAt:       t.ExpirationAt,
		DownloadLimit:      t.DownloadLimit,
		DownloadCount:      t.DownloadCount,
		RemainingDownloads: t.RemainingDownloads(),
		TrackingEnabled:    t.TrackingEnabled,
		ApprovalRequired:   t.ApprovalRequired,
		PasswordProtected:  t.HasPassword(),
		TotalSize:          t.TotalSize,
		Files:              toFileResponses(t.Files),
		CreatedAt:          t.CreatedAt,
	}
}

func toShareResponse(t *biz.Transfer) *ShareResponse {
	return &ShareResponse{
		Title:              t.Title,
		Message:            t.Message,
		SenderEmail:        t.SenderEmail,
		ExpirationAt:       t.ExpirationAt,
		RemainingDownloads: t.RemainingDownloads(),
		PasswordProtected:  t.HasPassword(),
		ApprovalRequired:   t.ApprovalRequired,
		TotalSize:          t.TotalSize,
		Files:              toFileResponses(t.Files),
	}
}

func toApprovalResponse(a *biz.ApprovalRequest) *ApprovalResponse {
	return &ApprovalResponse{
		ID:              a.ID,
		TransferID:      a.TransferID,
		RequesterEmail:  a.RequesterEmail,
		Status:          string(a.Status),
		RequestMessage:  a.RequestMessage,
		ResponseMessage: a.ResponseMessage,
		CreatedAt:       a.CreatedAt,
		DecidedAt:       a.DecidedAt,
	}
}

func toStatsResponse(s *biz.DownloadStats) *DownloadStatsResponse {
	out := &DownloadStatsResponse{
		TotalDownloads:    s.TotalDownloads,
		UniqueDownloaders: s.UniqueDownloaders,
		LastDownload:      s.LastDownload,
		Downloads:         make([]*DownloadEventResponse, len(s.Downloads)),
	}
	for i, e := range s.Downloads {
		out.Downloads[i] = &DownloadEventResponse{
			ID:           e.ID,
			IPAddress:    e.IPAddress,
			Location:     e.Location,
			UserAgent:    e.UserAgent,
			DownloadedAt: e.DownloadedAt,
		}
	}
	return out
}
