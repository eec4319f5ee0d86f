package admin

import (
	"errors"
	"strconv"
	"strings"

	"github.com/member-next/internal/http/response"
	"github.com/member-next/internal/repository"
	"github.com/member-next/internal/service"

	"github.com/gin-gonic/gin"
)

// BindReferralRequest 绑定邀请关系请求
type BindReferralRequest struct {
	InviteeID uint `json:"invitee_id" binding:"required"`
	InviterID uint `json:"inviter_id" binding:"required"`
}

// BindReferral 绑定邀请关系
func (h *Handler) BindReferral(c *gin.Context) {
	adminID, ok := getAdminID(c)
	if !ok {
		return
	}

	var req BindReferralRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "bad request", err)
		return
	}

	result, err := h.ReferralService.Bind(service.BindInput{
		InviteeID:  req.InviteeID,
		InviterID:  req.InviterID,
		OperatorID: adminID,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			respondError(c, response.CodeNotFound, "user not found", nil)
		case errors.Is(err, service.ErrSelfInvite):
			respondError(c, response.CodeBadRequest, "cannot bind to oneself", nil)
		case errors.Is(err, service.ErrInviteeAlreadyBound):
			respondError(c, response.CodeConflict, "invitee already bound to another inviter", nil)
		case errors.Is(err, service.ErrRiskRejected):
			respondError(c, response.CodeBadRequest, "binding rejected by risk check", nil)
		default:
			respondError(c, response.CodeInternal, "bind failed", err)
		}
		return
	}
	response.Success(c, gin.H{
		"binding":       result.Binding,
		"already_bound": result.AlreadyBound,
	})
}

// GetReferralBindings 邀请人名下绑定列表
func (h *Handler) GetReferralBindings(c *gin.Context) {
	inviterID, ok := parsePathUint(c, "id")
	if !ok {
		respondError(c, response.CodeBadRequest, "inviter id invalid", nil)
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	page, pageSize = normalizePagination(page, pageSize)

	bindings, total, err := h.ReferralService.ListBindings(inviterID, page, pageSize)
	if err != nil {
		respondError(c, response.CodeInternal, "binding fetch failed", err)
		return
	}
	response.SuccessWithPage(c, bindings, response.NewPagination(page, pageSize, total))
}

// GetReferralSummary 邀请人返利汇总
func (h *Handler) GetReferralSummary(c *gin.Context) {
	inviterID, ok := parsePathUint(c, "id")
	if !ok {
		respondError(c, response.CodeBadRequest, "inviter id invalid", nil)
		return
	}

	summary, err := h.ReferralService.Summary(inviterID)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			respondError(c, response.CodeNotFound, "user not found", nil)
			return
		}
		respondError(c, response.CodeInternal, "summary fetch failed", err)
		return
	}
	response.Success(c, summary)
}

// GetReferralRewards 返利记录列表
func (h *Handler) GetReferralRewards(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	page, pageSize = normalizePagination(page, pageSize)

	filter := repository.RewardListFilter{
		Page:     page,
		PageSize: pageSize,
		Status:   strings.TrimSpace(c.Query("status")),
	}
	if raw := strings.TrimSpace(c.Query("inviter_id")); raw != "" {
		if value, err := strconv.ParseUint(raw, 10, 64); err == nil {
			filter.InviterID = uint(value)
		}
	}
	if raw := strings.TrimSpace(c.Query("invitee_id")); raw != "" {
		if value, err := strconv.ParseUint(raw, 10, 64); err == nil {
			filter.InviteeID = uint(value)
		}
	}

	rewards, total, err := h.ReferralService.ListRewards(filter)
	if err != nil {
		respondError(c, response.CodeInternal, "reward fetch failed", err)
		return
	}
	response.SuccessWithPage(c, rewards, response.NewPagination(page, pageSize, total))
}

// CreateReferralWithdrawalRequest 提现请求
type CreateReferralWithdrawalRequest struct {
	Note string `json:"note"`
}

// CreateReferralWithdrawal 一次性提走邀请人全部可提现奖励
func (h *Handler) CreateReferralWithdrawal(c *gin.Context) {
	adminID, ok := getAdminID(c)
	if !ok {
		return
	}
	inviterID, ok := parsePathUint(c, "id")
	if !ok {
		respondError(c, response.CodeBadRequest, "inviter id invalid", nil)
		return
	}

	var req CreateReferralWithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "bad request", err)
		return
	}

	withdrawal, err := h.ReferralService.Withdraw(service.WithdrawInput{
		InviterID:  inviterID,
		Note:       req.Note,
		OperatorID: adminID,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			respondError(c, response.CodeNotFound, "user not found", nil)
		case errors.Is(err, service.ErrNothingToWithdraw):
			respondError(c, response.CodeBadRequest, "no withdrawable reward", nil)
		case errors.Is(err, service.ErrInvalidInput):
			respondError(c, response.CodeBadRequest, "bad request", nil)
		default:
			respondError(c, response.CodeInternal, "withdraw failed", err)
		}
		return
	}
	response.Success(c, withdrawal)
}

// GetReferralWithdrawals 提现记录列表
func (h *Handler) GetReferralWithdrawals(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	page, pageSize = normalizePagination(page, pageSize)

	filter := repository.WithdrawalListFilter{
		Page:     page,
		PageSize: pageSize,
	}
	if raw := strings.TrimSpace(c.Query("inviter_id")); raw != "" {
		if value, err := strconv.ParseUint(raw, 10, 64); err == nil {
			filter.InviterID = uint(value)
		}
	}

	withdrawals, total, err := h.ReferralService.ListWithdrawals(filter)
	if err != nil {
		respondError(c, response.CodeInternal, "withdrawal fetch failed", err)
		return
	}
	response.SuccessWithPage(c, withdrawals, response.NewPagination(page, pageSize, total))
}

// GetReferralWithdrawal 提现批次详情
func (h *Handler) GetReferralWithdrawal(c *gin.Context) {
	id, ok := parsePathUint(c, "id")
	if !ok {
		respondError(c, response.CodeBadRequest, "withdrawal id invalid", nil)
		return
	}

	withdrawal, err := h.ReferralService.GetWithdrawal(id)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			respondError(c, response.CodeNotFound, "withdrawal not found", nil)
			return
		}
		respondError(c, response.CodeInternal, "withdrawal fetch failed", err)
		return
	}
	response.Success(c, withdrawal)
}

// UnlockReferralRewards 手工触发到期奖励解锁
func (h *Handler) UnlockReferralRewards(c *gin.Context) {
	unlocked, err := h.ReferralService.UnlockPendingRewards()
	if err != nil {
		respondError(c, response.CodeInternal, "unlock failed", err)
		return
	}
	response.Success(c, gin.H{"unlocked": unlocked})
}
