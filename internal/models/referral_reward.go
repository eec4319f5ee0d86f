package models

import "time"

// ReferralReward 邀请返利奖励账目
// 触发充值记录唯一索引保证同一笔充值至多产生一条奖励。
type ReferralReward struct {
	ID               uint       `gorm:"primarykey" json:"id"`                              // 主键
	InviterID        uint       `gorm:"not null;index" json:"inviter_id"`                  // 邀请人
	InviteeID        uint       `gorm:"not null;index" json:"invitee_id"`                  // 被邀请人
	RechargeRecordID uint       `gorm:"not null;uniqueIndex" json:"recharge_record_id"`    // 触发充值记录（唯一）
	Reason           string     `gorm:"type:varchar(32);not null" json:"reason"`           // 触发原因（快照）
	Source           string     `gorm:"type:varchar(20);not null" json:"source"`           // 触发来源（快照）
	AmountMinor      Amount     `gorm:"not null;default:0" json:"amount"`                  // 触发支付金额（分，快照）
	RateBps          int        `gorm:"not null;default:0" json:"rate_bps"`                // 返利比例（基点，快照）
	RewardMinor      Amount     `gorm:"not null;default:0" json:"reward_amount"`           // 奖励金额（分）
	Status           string     `gorm:"type:varchar(20);not null;index" json:"status"`     // pending / available / canceled / withdrawn
	UnlockAt         time.Time  `gorm:"not null;index" json:"unlock_at"`                   // 解锁时间
	AvailableAt      *time.Time `json:"available_at,omitempty"`                            // 转可提现时间
	CanceledAt       *time.Time `json:"canceled_at,omitempty"`                             // 取消时间
	CancelReason     string     `gorm:"type:varchar(255);default:''" json:"cancel_reason"` // 取消原因
	WithdrawnAt      *time.Time `json:"withdrawn_at,omitempty"`                            // 提现时间
	WithdrawalID     *uint      `gorm:"index" json:"withdrawal_id,omitempty"`              // 关联提现批次
	CreatedAt        time.Time  `gorm:"index" json:"created_at"`                           // 创建时间
	UpdatedAt        time.Time  `json:"updated_at"`                                        // 更新时间
}

// TableName 指定表名
func (ReferralReward) TableName() string {
	return "referral_rewards"
}
