package service

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/kingshare/transfer-backend/internal/pkg/response"
	"github.com/kingshare/transfer-backend/internal/transfer/biz"
)

// RequestAccess 申请下载审批；同一邮箱重复申请返回已有请求
// @Summary 申请访问
// @Tags approvals
// @Param token path string true "分享 token"
// @Param body body RequestAccessRequest true "申请人"
// @Success 201 {object} response.Response{data=ApprovalResponse}
// @Router /api/v1/shares/{token}/approvals [post]
func (s *TransferService) RequestAccess(c *gin.Context) {
	var req RequestAccessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	access := s.accessRequest(c, req.Password, req.Email)
	if s.passwordLocked(c, access) {
		return
	}

	ar, err := s.approvals.RequestAccess(c.Request.Context(), access.Token, req.Email, req.Password, req.Message)
	s.trackPassword(c, access, err)
	if err != nil {
		s.handleError(c, err)
		return
	}
	response.Created(c, toApprovalResponse(ar))
}

// ListPendingApprovals 待处理的审批请求
// @Router /api/v1/approvals/pending [get]
func (s *TransferService) ListPendingApprovals(c *gin.Context) {
	list, err := s.approvals.ListPending(c.Request.Context(), identityFrom(c))
	if err != nil {
		s.handleError(c, err)
		return
	}

	items := make([]*ApprovalResponse, len(list))
	for i, a := range list {
		items[i] = toApprovalResponse(a)
	}
	response.Success(c, gin.H{"items": items, "total": len(items)})
}

// DecideApproval 批准或拒绝
// @Router /api/v1/approvals/{id}/decision [post]
func (s *TransferService) DecideApproval(c *gin.Context) {
	var req DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	outcome := biz.ApprovalStatus(strings.ToUpper(req.Outcome))
	ar, err := s.approvals.Decide(c.Request.Context(), c.Param("id"), identityFrom(c), outcome, req.Message)
	if err != nil {
		s.handleError(c, err)
		return
	}
	response.Success(c, toApprovalResponse(ar))
}
