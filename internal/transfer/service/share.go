package service

import (
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	apperrors "github.com/kingshare/transfer-backend/internal/pkg/errors"
	"github.com/kingshare/transfer-backend/internal/pkg/response"
	"github.com/kingshare/transfer-backend/internal/pkg/validator"
	"github.com/kingshare/transfer-backend/internal/transfer/biz"
	qrcode "github.com/skip2/go-qrcode"
	"go.uber.org/zap"
)

// SharePasswordHeader 查看分享时携带密码的请求头
const SharePasswordHeader = "X-Share-Password"

const (
	defaultQRSize = 256
	minQRSize     = 128
	maxQRSize     = 1024
)

// GetShare 查看分享内容，不计入下载次数
// @Summary 查看分享
// @Tags shares
// @Param token path string true "分享 token"
// @Param X-Share-Password header string false "分享密码"
// @Param email query string false "申请人邮箱（需审批时）"
// @Success 200 {object} response.Response{data=ShareResponse}
// @Router /api/v1/shares/{token} [get]
func (s *TransferService) GetShare(c *gin.Context) {
	req := s.accessRequest(c, c.GetHeader(SharePasswordHeader), c.Query("email"))
	if s.passwordLocked(c, req) {
		return
	}

	t, err := s.policy.Inspect(c.Request.Context(), req)
	s.trackPassword(c, req, err)
	if err != nil {
		s.handleError(c, err)
		return
	}
	response.Success(c, toShareResponse(t))
}

// Download 校验访问策略并返回预签名下载地址，成功时计入一次下载
// @Summary 下载分享
// @Tags shares
// @Param token path string true "分享 token"
// @Param body body DownloadRequest false "密码与申请人邮箱"
// @Success 200 {object} response.Response{data=DownloadResponse}
// @Router /api/v1/shares/{token}/download [post]
func (s *TransferService) Download(c *gin.Context) {
	var body DownloadRequest
	if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
		response.BadRequest(c, err.Error())
		return
	}

	req := s.accessRequest(c, body.Password, body.Email)
	req.FileID = body.FileID
	if s.passwordLocked(c, req) {
		return
	}

	ctx := c.Request.Context()
	grant, err := s.policy.Evaluate(ctx, req)
	s.trackPassword(c, req, err)
	if err != nil {
		s.handleError(c, err)
		return
	}

	files := make([]*DownloadFileResponse, len(grant.Files))
	for i, f := range grant.Files {
		url, expiresAt, err := s.blobs.PresignGet(ctx, f.StorageKey, f.FileName)
		if err != nil {
			s.logger.Error("download counted but presign failed",
				zap.String("transfer_id", grant.Transfer.ID),
				zap.String("event_id", grant.Event.ID),
				zap.Error(err))
			s.handleError(c, apperrors.Storage("share.Download", err))
			return
		}
		files[i] = &DownloadFileResponse{
			FileID:    f.FileID,
			FileName:  f.FileName,
			FileSize:  f.FileSize,
			URL:       url,
			ExpiresAt: expiresAt,
		}
	}

	response.Success(c, &DownloadResponse{
		DownloadID:         grant.Event.ID,
		RemainingDownloads: grant.Transfer.RemainingDownloads(),
		Files:              files,
	})
}

// QRCode 分享链接二维码（PNG）
// @Router /api/v1/shares/{token}/qrcode [get]
func (s *TransferService) QRCode(c *gin.Context) {
	token := c.Param("token")
	if _, err := s.transfers.Get(c.Request.Context(), token); err != nil {
		s.handleError(c, err)
		return
	}

	size := defaultQRSize
	if v := c.Query("size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < minQRSize || n > maxQRSize {
			response.BadRequest(c, "size must be between 128 and 1024")
			return
		}
		size = n
	}

	png, err := qrcode.Encode(biz.ShareURL(s.opts.PublicBaseURL, token), qrcode.Medium, size)
	if err != nil {
		s.handleError(c, apperrors.Wrap(err, "share.QRCode", apperrors.KindInternal))
		return
	}
	c.Header("Cache-Control", "public, max-age=3600")
	c.Data(http.StatusOK, "image/png", png)
}

func (s *TransferService) accessRequest(c *gin.Context, password, email string) biz.AccessRequest {
	return biz.AccessRequest{
		Token:          c.Param("token"),
		Now:            s.transfers.Now(),
		Password:       password,
		RequesterEmail: email,
		IP:             validator.GetIPOrDefault(c.ClientIP(), ""),
		UserAgent:      c.Request.UserAgent(),
	}
}

// passwordLocked 同一 token 和 IP 的密码失败次数超限时拒绝
func (s *TransferService) passwordLocked(c *gin.Context, req biz.AccessRequest) bool {
	if req.Password == "" || !s.guard.Locked(c.Request.Context(), req.Token, req.IP) {
		return false
	}
	wait := s.guard.RetryAfter(c.Request.Context(), req.Token, req.IP)
	c.Header("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
	response.TooManyRequests(c, "too many incorrect passwords, try again later")
	return true
}

func (s *TransferService) trackPassword(c *gin.Context, req biz.AccessRequest, err error) {
	if req.Password == "" {
		return
	}
	ctx := c.Request.Context()
	switch {
	case apperrors.Is(err, apperrors.KindPasswordIncorrect):
		if n, ferr := s.guard.RecordFailure(ctx, req.Token, req.IP); ferr != nil {
			s.logger.Warn("failed to record password failure", zap.Error(ferr))
		} else if n > 0 {
			s.logger.Info("incorrect share password", zap.Int64("failures", n), zap.String("ip", req.IP))
		}
	case err == nil:
		s.guard.Reset(ctx, req.Token, req.IP)
	}
}
