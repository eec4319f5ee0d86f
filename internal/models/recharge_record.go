package models

import "time"

// RechargeRecord 充值账本记录
// 记录一经写入不可变更，唯一例外是退款元数据（refunded_*），且只允许写入一次。
// expire_before / expire_after 为链快照，每次重建时重算，禁止手工修改。
type RechargeRecord struct {
	ID           uint   `gorm:"primarykey" json:"id"`                                                      // 主键
	UserID       uint   `gorm:"not null;index;index:idx_recharge_user_occurred,priority:1" json:"user_id"` // 用户ID
	ChangeDays   int    `gorm:"not null" json:"change_days"`                                               // 变更天数（负数为冲销）
	Reason       string `gorm:"type:varchar(32);not null;index" json:"reason"`                             // 充值原因
	AmountMinor  Amount `gorm:"not null;default:0" json:"amount"`                                          // 支付金额（分）
	Source       string `gorm:"type:varchar(20);not null;index" json:"source"`                             // 来源
	Note         string `gorm:"type:varchar(255);default:''" json:"note"`                                  // 备注
	OccurredAt   int64  `gorm:"not null;index:idx_recharge_user_occurred,priority:2" json:"occurred_at"`   // 业务发生时间（unix 秒，可回填）
	ExpireBefore int64  `gorm:"not null;default:0" json:"expire_before"`                                   // 应用前到期时间快照
	ExpireAfter  int64  `gorm:"not null;default:0" json:"expire_after"`                                    // 应用后到期时间快照
	OperatorID   uint   `gorm:"not null;default:0" json:"operator_id"`                                     // 操作管理员

	RefundedAt        *time.Time `gorm:"index" json:"refunded_at,omitempty"`              // 退款时间
	RefundedBy        *uint      `json:"refunded_by,omitempty"`                           // 退款操作管理员
	RefundAmountMinor *Amount    `json:"refund_amount,omitempty"`                         // 退款金额（分）
	RefundNote        string     `gorm:"type:varchar(255);default:''" json:"refund_note"` // 退款备注

	CreatedAt time.Time `gorm:"index" json:"recorded_at"` // 入库时间（墙钟）
}

// TableName 指定表名
func (RechargeRecord) TableName() string {
	return "recharge_records"
}
