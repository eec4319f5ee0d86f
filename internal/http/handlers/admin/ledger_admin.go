package admin

import (
	"errors"
	"strconv"
	"strings"

	"github.com/member-next/internal/http/response"
	"github.com/member-next/internal/models"
	"github.com/member-next/internal/repository"
	"github.com/member-next/internal/service"

	"github.com/gin-gonic/gin"
)

// CreateRechargeRequest 普通充值请求，金额单位为元
type CreateRechargeRequest struct {
	ChangeDays int           `json:"change_days" binding:"required"`
	Reason     string        `json:"reason" binding:"required"`
	Amount     models.Amount `json:"amount"`
	Note       string        `json:"note"`
}

// CreateBackfillRequest 补录充值请求，occurred_at 为业务时间（Unix 秒）
type CreateBackfillRequest struct {
	ChangeDays int           `json:"change_days" binding:"required"`
	Reason     string        `json:"reason" binding:"required"`
	Amount     models.Amount `json:"amount"`
	Note       string        `json:"note"`
	OccurredAt int64         `json:"occurred_at" binding:"required"`
}

// RefundRechargeRequest 退款冲销请求
type RefundRechargeRequest struct {
	Amount models.Amount `json:"amount"`
	Note   string        `json:"note"`
}

// CreateRecharge 会员普通充值
func (h *Handler) CreateRecharge(c *gin.Context) {
	adminID, ok := getAdminID(c)
	if !ok {
		return
	}
	userID, ok := parsePathUint(c, "id")
	if !ok {
		respondError(c, response.CodeBadRequest, "user id invalid", nil)
		return
	}

	var req CreateRechargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "bad request", err)
		return
	}

	record, err := h.LedgerService.Recharge(service.RechargeInput{
		UserID:      userID,
		ChangeDays:  req.ChangeDays,
		Reason:      req.Reason,
		AmountMinor: req.Amount,
		Note:        req.Note,
		OperatorID:  adminID,
	})
	if err != nil {
		h.respondLedgerError(c, err, "recharge failed")
		return
	}
	response.Success(c, record)
}

// CreateBackfill 补录历史充值，整条链全量重放
func (h *Handler) CreateBackfill(c *gin.Context) {
	adminID, ok := getAdminID(c)
	if !ok {
		return
	}
	userID, ok := parsePathUint(c, "id")
	if !ok {
		respondError(c, response.CodeBadRequest, "user id invalid", nil)
		return
	}

	var req CreateBackfillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "bad request", err)
		return
	}

	record, err := h.LedgerService.Backfill(service.BackfillInput{
		UserID:      userID,
		ChangeDays:  req.ChangeDays,
		Reason:      req.Reason,
		AmountMinor: req.Amount,
		Note:        req.Note,
		OccurredAt:  req.OccurredAt,
		OperatorID:  adminID,
	})
	if err != nil {
		h.respondLedgerError(c, err, "backfill failed")
		return
	}
	response.Success(c, record)
}

// RefundRecharge 退款冲销指定充值记录
func (h *Handler) RefundRecharge(c *gin.Context) {
	adminID, ok := getAdminID(c)
	if !ok {
		return
	}
	recordID, ok := parsePathUint(c, "id")
	if !ok {
		respondError(c, response.CodeBadRequest, "record id invalid", nil)
		return
	}

	var req RefundRechargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "bad request", err)
		return
	}

	rollback, err := h.LedgerService.Refund(service.RefundInput{
		RecordID:    recordID,
		AmountMinor: req.Amount,
		Note:        req.Note,
		OperatorID:  adminID,
	})
	if err != nil {
		h.respondLedgerError(c, err, "refund failed")
		return
	}
	response.Success(c, rollback)
}

// GetRechargeRecords 充值流水列表
func (h *Handler) GetRechargeRecords(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	page, pageSize = normalizePagination(page, pageSize)

	filter := repository.RechargeListFilter{
		Page:     page,
		PageSize: pageSize,
		Reason:   strings.TrimSpace(c.Query("reason")),
		Source:   strings.TrimSpace(c.Query("source")),
	}
	if raw := strings.TrimSpace(c.Query("user_id")); raw != "" {
		if value, err := strconv.ParseUint(raw, 10, 64); err == nil {
			filter.UserID = uint(value)
		}
	}
	if raw := strings.TrimSpace(c.Query("refunded")); raw != "" {
		refunded := raw == "1" || strings.EqualFold(raw, "true")
		filter.Refunded = &refunded
	}
	if raw := strings.TrimSpace(c.Query("occurred_from")); raw != "" {
		if value, err := strconv.ParseInt(raw, 10, 64); err == nil {
			filter.OccurredFrom = &value
		}
	}
	if raw := strings.TrimSpace(c.Query("occurred_to")); raw != "" {
		if value, err := strconv.ParseInt(raw, 10, 64); err == nil {
			filter.OccurredTo = &value
		}
	}

	records, total, err := h.LedgerService.ListRecords(filter)
	if err != nil {
		respondError(c, response.CodeInternal, "record fetch failed", err)
		return
	}
	response.SuccessWithPage(c, records, response.NewPagination(page, pageSize, total))
}

// GetRechargeRecord 充值记录详情
func (h *Handler) GetRechargeRecord(c *gin.Context) {
	recordID, ok := parsePathUint(c, "id")
	if !ok {
		respondError(c, response.CodeBadRequest, "record id invalid", nil)
		return
	}

	record, err := h.LedgerService.GetRecord(recordID)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			respondError(c, response.CodeNotFound, "record not found", nil)
			return
		}
		respondError(c, response.CodeInternal, "record fetch failed", err)
		return
	}
	response.Success(c, record)
}

// GetUserLedger 会员完整账本链，按业务时间升序
func (h *Handler) GetUserLedger(c *gin.Context) {
	userID, ok := parsePathUint(c, "id")
	if !ok {
		respondError(c, response.CodeBadRequest, "user id invalid", nil)
		return
	}

	records, err := h.LedgerService.ListUserRecords(userID)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			respondError(c, response.CodeNotFound, "user not found", nil)
			return
		}
		respondError(c, response.CodeInternal, "ledger fetch failed", err)
		return
	}
	response.Success(c, records)
}

// RebuildUserLedger 手工触发账本重放，用于数据修复
func (h *Handler) RebuildUserLedger(c *gin.Context) {
	userID, ok := parsePathUint(c, "id")
	if !ok {
		respondError(c, response.CodeBadRequest, "user id invalid", nil)
		return
	}

	if err := h.LedgerService.RebuildUserChain(userID); err != nil {
		if errors.Is(err, service.ErrNotFound) {
			respondError(c, response.CodeNotFound, "user not found", nil)
			return
		}
		respondError(c, response.CodeInternal, "rebuild failed", err)
		return
	}
	requestLog(c).Infow("ledger_rebuild_triggered", "user_id", userID)
	response.Success(c, nil)
}

func (h *Handler) respondLedgerError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		respondError(c, response.CodeNotFound, "record not found", nil)
	case errors.Is(err, service.ErrInvalidInput):
		respondError(c, response.CodeBadRequest, "bad request", nil)
	case errors.Is(err, service.ErrConflict):
		respondError(c, response.CodeConflict, "concurrent modification, please retry", nil)
	case errors.Is(err, service.ErrAlreadyProcessed):
		respondError(c, response.CodeConflict, "record already processed", nil)
	default:
		respondError(c, response.CodeInternal, fallback, err)
	}
}
