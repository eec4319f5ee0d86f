package service

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// 服务层错误哨兵，HTTP 层据此映射状态码。
var (
	ErrNotFound            = errors.New("record not found")
	ErrInvalidInput        = errors.New("invalid input")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrConflict            = errors.New("concurrent modification, please retry")
	ErrAlreadyProcessed    = errors.New("record already processed")
	ErrNothingToWithdraw   = errors.New("no withdrawable reward")
	ErrSelfInvite          = errors.New("cannot bind to oneself")
	ErrInviteeAlreadyBound = errors.New("invitee already bound to another inviter")
	ErrRiskRejected        = errors.New("binding rejected by risk check")
	ErrRateLimited         = errors.New("too many failed attempts")
)

// RateLimitedError 登录限流错误，携带剩余锁定时长
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("too many failed attempts, retry after %s", e.RetryAfter.Round(time.Second))
}

// Unwrap 支持 errors.Is(err, ErrRateLimited)
func (e *RateLimitedError) Unwrap() error {
	return ErrRateLimited
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}
