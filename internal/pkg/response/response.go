package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
	apperrors "github.com/kingshare/transfer-backend/internal/pkg/errors"
)

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`              // 业务错误码（0表示成功）
	Kind    string      `json:"kind,omitempty"`    // 错误类别
	Message string      `json:"message,omitempty"` // 提示信息
	Data    interface{} `json:"data"`              // 实际数据（可能为空对象 {}）
}

// Success 成功响应（200）
func Success(c *gin.Context, data interface{}) {
	if data == nil {
		data = struct{}{}
	}
	c.JSON(http.StatusOK, Response{
		Code: apperrors.GetCode(apperrors.KindOK).Code,
		Data: data,
	})
}

// Created 创建资源成功（201）
func Created(c *gin.Context, data interface{}) {
	if data == nil {
		data = struct{}{}
	}
	c.JSON(http.StatusCreated, Response{
		Code: apperrors.GetCode(apperrors.KindOK).Code,
		Data: data,
	})
}

// Error 错误响应
func Error(c *gin.Context, httpStatus int, message string) {
	c.JSON(httpStatus, Response{
		Code:    httpStatus,
		Message: message,
		Data:    struct{}{},
	})
}

// BadRequest 400 错误
func BadRequest(c *gin.Context, message string) {
	ErrorWithKind(c, apperrors.KindInvalidArgument, message)
}

// Unauthorized 401 错误
func Unauthorized(c *gin.Context, message string) {
	ErrorWithKind(c, apperrors.KindUnauthorized, message)
}

// Forbidden 403 错误
func Forbidden(c *gin.Context, message string) {
	ErrorWithKind(c, apperrors.KindForbidden, message)
}

// TooManyRequests 429 错误
func TooManyRequests(c *gin.Context, message string) {
	ErrorWithKind(c, apperrors.KindRateLimited, message)
}

// HandleError 统一错误处理（使用AppError）
func HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}

	kind := apperrors.KindOf(err)
	ErrorWithKind(c, kind, apperrors.GetDetails(err))
}

// ErrorWithKind 使用错误类别的错误响应
func ErrorWithKind(c *gin.Context, kind apperrors.Kind, details ...string) {
	code := apperrors.GetCode(kind)
	if code.Retryable && c.Writer.Header().Get("Retry-After") == "" {
		c.Header("Retry-After", "1")
	}

	c.JSON(code.Status, Response{
		Code:    code.Code,
		Kind:    string(kind),
		Message: apperrors.FormatError(kind, details...),
		Data:    struct{}{},
	})
}
