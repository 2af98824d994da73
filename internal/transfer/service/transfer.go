package service

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/kingshare/transfer-backend/internal/auth/middleware"
	apperrors "github.com/kingshare/transfer-backend/internal/pkg/errors"
	"github.com/kingshare/transfer-backend/internal/pkg/logger"
	pkgminio "github.com/kingshare/transfer-backend/internal/pkg/minio"
	"github.com/kingshare/transfer-backend/internal/pkg/response"
	"github.com/kingshare/transfer-backend/internal/transfer/biz"
	"go.uber.org/zap"
)

// cleanupTimeout 上传失败后删除已写入文件的时间上限
const cleanupTimeout = 30 * time.Second

// Options HTTP 层参数
type Options struct {
	PublicBaseURL  string
	MaxUploadBytes int64
	MaxFiles       int
}

// Routes 路由所需的中间件，为 nil 时跳过
type Routes struct {
	Auth         gin.HandlerFunc
	OptionalAuth gin.HandlerFunc
	ShareLimit   gin.HandlerFunc
}

// TransferService 传输 HTTP 服务
type TransferService struct {
	transfers *biz.TransferUseCase
	approvals *biz.ApprovalUseCase
	tracker   *biz.DownloadTracker
	policy    *biz.PolicyEvaluator
	blobs     biz.BlobStore
	guard     *middleware.PasswordGuard
	opts      Options
	logger    *logger.Logger
}

// NewTransferService 创建传输服务。guard 可以为 nil。
func NewTransferService(
	transfers *biz.TransferUseCase,
	approvals *biz.ApprovalUseCase,
	tracker *biz.DownloadTracker,
	policy *biz.PolicyEvaluator,
	blobs biz.BlobStore,
	guard *middleware.PasswordGuard,
	opts Options,
	log *logger.Logger,
) *TransferService {
	return &TransferService{
		transfers: transfers,
		approvals: approvals,
		tracker:   tracker,
		policy:    policy,
		blobs:     blobs,
		guard:     guard,
		opts:      opts,
		logger:    log.Named("transfer.http"),
	}
}

// RegisterRoutes 注册路由
func (s *TransferService) RegisterRoutes(r *gin.RouterGroup, mw Routes) {
	transfers := r.Group("/transfers")
	{
		transfers.POST("", chain(mw.OptionalAuth, s.CreateTransfer)...)
		transfers.GET("", chain(mw.Auth, s.ListTransfers)...)
		transfers.GET("/:id", chain(mw.Auth, s.GetTransfer)...)
		transfers.DELETE("/:id", chain(mw.Auth, s.RevokeTransfer)...)
		transfers.GET("/:id/stats", chain(mw.Auth, s.GetStats)...)
	}

	shares := r.Group("/shares/:token")
	{
		shares.GET("", chain(mw.ShareLimit, s.GetShare)...)
		shares.GET("/qrcode", s.QRCode)
		shares.POST("/download", chain(mw.ShareLimit, s.Download)...)
		shares.POST("/approvals", chain(mw.ShareLimit, s.RequestAccess)...)
	}

	approvals := r.Group("/approvals")
	{
		approvals.GET("/pending", chain(mw.Auth, s.ListPendingApprovals)...)
		approvals.POST("/:id/decision", chain(mw.Auth, s.DecideApproval)...)
	}
}

func chain(handlers ...gin.HandlerFunc) []gin.HandlerFunc {
	out := make([]gin.HandlerFunc, 0, len(handlers))
	for _, h := range handlers {
		if h != nil {
			out = append(out, h)
		}
	}
	return out
}

// CreateTransfer 上传文件并创建传输
// @Summary 创建传输
// @Tags transfers
// @Accept multipart/form-data
// @Produce json
// @Param files formData file true "文件，可多个"
// @Param expiration_days formData int true "有效天数"
// @Success 201 {object} response.Response{data=CreateTransferResponse}
// @Router /api/v1/transfers [post]
func (s *TransferService) CreateTransfer(c *gin.Context) {
	if s.opts.MaxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.opts.MaxUploadBytes)
	}

	var form CreateTransferForm
	if err := c.ShouldBind(&form); err != nil {
		s.bindError(c, err)
		return
	}
	mf, err := c.MultipartForm()
	if err != nil {
		s.bindError(c, err)
		return
	}
	headers := mf.File["files"]
	if len(headers) == 0 {
		response.BadRequest(c, "at least one file is required")
		return
	}
	if s.opts.MaxFiles > 0 && len(headers) > s.opts.MaxFiles {
		response.BadRequest(c, fmt.Sprintf("at most %d files per transfer", s.opts.MaxFiles))
		return
	}

	ctx := c.Request.Context()
	id := identityFrom(c)
	transferID := uuid.NewString()

	files, err := s.storeFiles(ctx, transferID, headers)
	if err != nil {
		s.handleError(c, err)
		return
	}

	req := &biz.CreateTransferRequest{
		ID:              transferID,
		UserID:          id.UserID,
		Title:           form.Title,
		Message:         form.Message,
		SenderEmail:     form.SenderEmail,
		RecipientEmail:  form.RecipientEmail,
		Password:        form.Password,
		ExpirationDays:  form.ExpirationDays,
		DownloadLimit:   form.DownloadLimit,
		TrackingEnabled: form.TrackingEnabled,
		RequireApproval: form.RequireApproval,
		ShareLink:       form.ShareLink,
		ClientOrigin:    c.GetHeader("Origin"),
		Files:           files,
	}
	if req.SenderEmail == "" {
		req.SenderEmail = id.Email
	}

	t, err := s.transfers.Create(ctx, req)
	if err != nil {
		s.discard(files)
		s.handleError(c, err)
		return
	}

	link := biz.ShareURL(s.opts.PublicBaseURL, t.ShareToken)
	response.Created(c, &CreateTransferResponse{
		TransferID:  t.ID,
		ShareToken:  t.ShareToken,
		ShareLink:   link,
		DownloadURL: link,
		ExpiresAt:   t.ExpirationAt,
	})
}

func (s *TransferService) storeFiles(ctx context.Context, transferID string, headers []*multipart.FileHeader) ([]biz.TransferFile, error) {
	files := make([]biz.TransferFile, 0, len(headers))
	for _, fh := range headers {
		f := biz.TransferFile{
			ID:       uuid.NewString(),
			FileName: fh.Filename,
			FileSize: fh.Size,
			MimeType: fh.Header.Get("Content-Type"),
		}
		if f.MimeType == "" || f.MimeType == "application/octet-stream" {
			f.MimeType = pkgminio.DetectContentType(fh.Filename)
		}
		f.StorageKey = pkgminio.ObjectKey(transferID, f.ID, fh.Filename)

		if err := s.putFile(ctx, f, fh); err != nil {
			s.discard(files)
			return nil, apperrors.Storage("transfer.Upload", err)
		}
		files = append(files, f)
	}
	return files, nil
}

func (s *TransferService) putFile(ctx context.Context, f biz.TransferFile, fh *multipart.FileHeader) error {
	src, err := fh.Open()
	if err != nil {
		return fmt.Errorf("open upload %s: %w", fh.Filename, err)
	}
	defer src.Close()
	return s.blobs.Put(ctx, f.StorageKey, src, fh.Size, f.MimeType)
}

// discard 删除已上传但未落库的文件
func (s *TransferService) discard(files []biz.TransferFile) {
	if len(files) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	for _, f := range files {
		if err := s.blobs.Delete(ctx, f.StorageKey); err != nil {
			s.logger.Warn("failed to remove orphaned upload",
				zap.String("key", f.StorageKey),
				zap.Error(err))
		}
	}
}

// ListTransfers 当前用户的传输列表
// @Router /api/v1/transfers [get]
func (s *TransferService) ListTransfers(c *gin.Context) {
	list, err := s.transfers.ListByOwner(c.Request.Context(), identityFrom(c))
	if err != nil {
		s.handleError(c, err)
		return
	}

	now := s.transfers.Now()
	items := make([]*TransferResponse, len(list))
	for i, t := range list {
		items[i] = toTransferResponse(t, s.opts.PublicBaseURL, now)
	}
	response.Success(c, &ListTransfersResponse{Items: items, Total: len(items)})
}

// GetTransfer 传输详情
// @Router /api/v1/transfers/{id} [get]
func (s *TransferService) GetTransfer(c *gin.Context) {
	t, err := s.transfers.GetByID(c.Request.Context(), c.Param("id"), identityFrom(c))
	if err != nil {
		s.handleError(c, err)
		return
	}
	response.Success(c, toTransferResponse(t, s.opts.PublicBaseURL, s.transfers.Now()))
}

// RevokeTransfer 撤销传输，重复撤销返回相同结果
// @Router /api/v1/transfers/{id} [delete]
func (s *TransferService) RevokeTransfer(c *gin.Context) {
	t, err := s.transfers.Revoke(c.Request.Context(), c.Param("id"), identityFrom(c))
	if err != nil {
		s.handleError(c, err)
		return
	}
	response.Success(c, toTransferResponse(t, s.opts.PublicBaseURL, s.transfers.Now()))
}

// GetStats 下载统计
// @Router /api/v1/transfers/{id}/stats [get]
func (s *TransferService) GetStats(c *gin.Context) {
	stats, err := s.tracker.Stats(c.Request.Context(), c.Param("id"), identityFrom(c))
	if err != nil {
		s.handleError(c, err)
		return
	}
	response.Success(c, toStatsResponse(stats))
}

func identityFrom(c *gin.Context) biz.Identity {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return biz.Identity{}
	}
	email, _ := middleware.GetEmail(c)
	role, _ := middleware.GetRole(c)
	return biz.NewIdentity(userID, email, biz.ParseRole(role))
}

func (s *TransferService) bindError(c *gin.Context, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		response.BadRequest(c, fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit))
		return
	}
	response.BadRequest(c, err.Error())
}

func (s *TransferService) handleError(c *gin.Context, err error) {
	if apperrors.IsServerError(apperrors.KindOf(err)) {
		s.logger.WithContext(c.Request.Context()).Error("request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}
	response.HandleError(c, err)
}
