package repository

import "time"

// UserListFilter 查询会员列表的过滤条件
type UserListFilter struct {
	Page         int
	PageSize     int
	Search       string
	GroupName    string
	ExpireBefore *int64
	ExpireAfter  *int64
}

// RechargeListFilter 查询充值流水的过滤条件
type RechargeListFilter struct {
	Page         int
	PageSize     int
	UserID       uint
	Reason       string
	Source       string
	Refunded     *bool
	OccurredFrom *int64
	OccurredTo   *int64
}

// RewardListFilter 查询返利记录的过滤条件
type RewardListFilter struct {
	Page      int
	PageSize  int
	InviterID uint
	InviteeID uint
	Status    string
}

// WithdrawalListFilter 查询提现记录的过滤条件
type WithdrawalListFilter struct {
	Page        int
	PageSize    int
	InviterID   uint
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

// ChangeLogListFilter 查询资料变更日志的过滤条件
type ChangeLogListFilter struct {
	Page     int
	PageSize int
	UserID   uint
	Field    string
}
