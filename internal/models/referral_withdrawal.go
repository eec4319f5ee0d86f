package models

import "time"

// ReferralWithdrawal 返利提现批次
// 金额为本批次转为 withdrawn 的奖励之和，入库后不可变。
type ReferralWithdrawal struct {
	ID          uint      `gorm:"primarykey" json:"id"`                     // 主键
	InviterID   uint      `gorm:"not null;index" json:"inviter_id"`         // 邀请人
	AmountMinor Amount    `gorm:"not null;default:0" json:"amount"`         // 提现总额（分）
	ProcessedBy uint      `gorm:"not null;default:0" json:"processed_by"`   // 处理管理员
	Note        string    `gorm:"type:varchar(255);default:''" json:"note"` // 备注
	CreatedAt   time.Time `gorm:"index" json:"created_at"`                  // 创建时间
}

// TableName 指定表名
func (ReferralWithdrawal) TableName() string {
	return "referral_withdrawals"
}
