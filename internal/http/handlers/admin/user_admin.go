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

// CreateUserRequest 创建会员请求
type CreateUserRequest struct {
	Username    string `json:"username" binding:"required"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	EmailAlias  string `json:"email_alias"`
	GroupName   string `json:"group_name"`
	Remark      string `json:"remark"`
}

// CreateUser 创建会员，状态令牌明文仅在本次响应返回
func (h *Handler) CreateUser(c *gin.Context) {
	adminID, ok := getAdminID(c)
	if !ok {
		return
	}

	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "bad request", err)
		return
	}

	user, token, err := h.UserService.Create(service.CreateUserInput{
		Username:    req.Username,
		DisplayName: req.DisplayName,
		Email:       req.Email,
		EmailAlias:  req.EmailAlias,
		GroupName:   req.GroupName,
		Remark:      req.Remark,
		OperatorID:  adminID,
	})
	if err != nil {
		if errors.Is(err, service.ErrInvalidInput) {
			respondError(c, response.CodeBadRequest, "username invalid or already taken", nil)
			return
		}
		respondError(c, response.CodeInternal, "user create failed", err)
		return
	}

	response.Success(c, gin.H{
		"user":  user,
		"token": token,
	})
}

// GetUsers 会员列表
func (h *Handler) GetUsers(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	page, pageSize = normalizePagination(page, pageSize)

	filter := repository.UserListFilter{
		Page:      page,
		PageSize:  pageSize,
		Search:    strings.TrimSpace(c.Query("search")),
		GroupName: strings.TrimSpace(c.Query("group_name")),
	}
	if raw := strings.TrimSpace(c.Query("expire_before")); raw != "" {
		if value, err := strconv.ParseInt(raw, 10, 64); err == nil {
			filter.ExpireBefore = &value
		}
	}
	if raw := strings.TrimSpace(c.Query("expire_after")); raw != "" {
		if value, err := strconv.ParseInt(raw, 10, 64); err == nil {
			filter.ExpireAfter = &value
		}
	}

	users, total, err := h.UserService.List(filter)
	if err != nil {
		respondError(c, response.CodeInternal, "user fetch failed", err)
		return
	}
	response.SuccessWithPage(c, users, response.NewPagination(page, pageSize, total))
}

// GetUser 会员详情
func (h *Handler) GetUser(c *gin.Context) {
	id, ok := parsePathUint(c, "id")
	if !ok {
		respondError(c, response.CodeBadRequest, "user id invalid", nil)
		return
	}

	user, err := h.UserService.Get(id)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			respondError(c, response.CodeNotFound, "user not found", nil)
			return
		}
		respondError(c, response.CodeInternal, "user fetch failed", err)
		return
	}
	response.Success(c, user)
}

// UpdateUserProfileRequest 修改会员资料请求。
// 指针字段为 null 表示不修改，note 为必填审计备注。
type UpdateUserProfileRequest struct {
	DisplayName *string `json:"display_name"`
	Email       *string `json:"email"`
	EmailAlias  *string `json:"email_alias"`
	GroupName   *string `json:"group_name"`
	Remark      *string `json:"remark"`
	Note        string  `json:"note" binding:"required"`
}

// UpdateUserProfile 修改会员资料并落审计日志
func (h *Handler) UpdateUserProfile(c *gin.Context) {
	adminID, ok := getAdminID(c)
	if !ok {
		return
	}
	id, ok := parsePathUint(c, "id")
	if !ok {
		respondError(c, response.CodeBadRequest, "user id invalid", nil)
		return
	}

	var req UpdateUserProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "bad request", err)
		return
	}

	user, err := h.UserService.UpdateProfile(service.UpdateProfileInput{
		UserID:      id,
		DisplayName: req.DisplayName,
		Email:       req.Email,
		EmailAlias:  req.EmailAlias,
		GroupName:   req.GroupName,
		Remark:      req.Remark,
		Note:        req.Note,
		OperatorID:  adminID,
	})
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			respondError(c, response.CodeNotFound, "user not found", nil)
			return
		}
		if errors.Is(err, service.ErrInvalidInput) {
			respondError(c, response.CodeBadRequest, "audit note required", nil)
			return
		}
		respondError(c, response.CodeInternal, "user update failed", err)
		return
	}
	response.Success(c, user)
}

// ResetUserToken 重置会员状态令牌，新令牌明文仅在本次响应返回
func (h *Handler) ResetUserToken(c *gin.Context) {
	adminID, ok := getAdminID(c)
	if !ok {
		return
	}
	id, ok := parsePathUint(c, "id")
	if !ok {
		respondError(c, response.CodeBadRequest, "user id invalid", nil)
		return
	}

	user, token, err := h.UserService.ResetToken(id, adminID)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			respondError(c, response.CodeNotFound, "user not found", nil)
			return
		}
		respondError(c, response.CodeInternal, "token reset failed", err)
		return
	}
	response.Success(c, gin.H{
		"user":  user,
		"token": token,
	})
}

// GetUserChangeLogs 会员资料变更日志
func (h *Handler) GetUserChangeLogs(c *gin.Context) {
	id, ok := parsePathUint(c, "id")
	if !ok {
		respondError(c, response.CodeBadRequest, "user id invalid", nil)
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	page, pageSize = normalizePagination(page, pageSize)

	logs, total, err := h.UserService.ListChangeLogs(repository.ChangeLogListFilter{
		Page:     page,
		PageSize: pageSize,
		UserID:   id,
		Field:    strings.TrimSpace(c.Query("field")),
	})
	if err != nil {
		respondError(c, response.CodeInternal, "change log fetch failed", err)
		return
	}
	response.SuccessWithPage(c, logs, response.NewPagination(page, pageSize, total))
}
