package models

import "time"

// ReferralBonusGrant 被邀请人首充赠送
// invitee_id 唯一索引保证每个被邀请人终身至多一次赠送；
// 插入成功者才有资格发放赠送充值记录。
type ReferralBonusGrant struct {
	ID               uint       `gorm:"primarykey" json:"id"`                              // 主键
	InviteeID        uint       `gorm:"not null;uniqueIndex" json:"invitee_id"`            // 被邀请人（唯一）
	RechargeRecordID uint       `gorm:"not null;uniqueIndex" json:"recharge_record_id"`    // 触发充值记录（唯一）
	BonusDays        int        `gorm:"not null" json:"bonus_days"`                        // 赠送天数
	Status           string     `gorm:"type:varchar(20);not null;index" json:"status"`     // pending / granted / revoked
	BonusRecordID    *uint      `gorm:"index" json:"bonus_record_id,omitempty"`            // 赠送充值记录
	RevokedAt        *time.Time `json:"revoked_at,omitempty"`                              // 撤销时间
	RevokeRecordID   *uint      `json:"revoke_record_id,omitempty"`                        // 冲销充值记录
	RevokeReason     string     `gorm:"type:varchar(255);default:''" json:"revoke_reason"` // 撤销原因
	CreatedAt        time.Time  `json:"created_at"`                                        // 创建时间
	UpdatedAt        time.Time  `json:"updated_at"`                                        // 更新时间
}

// TableName 指定表名
func (ReferralBonusGrant) TableName() string {
	return "referral_bonus_grants"
}
