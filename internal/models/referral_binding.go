package models

import "time"

// ReferralBinding 邀请绑定关系
// 每个被邀请人至多绑定一个邀请人，绑定后不更新不删除。
type ReferralBinding struct {
	ID        uint      `gorm:"primarykey" json:"id"`                   // 主键
	InviteeID uint      `gorm:"not null;uniqueIndex" json:"invitee_id"` // 被邀请人（唯一）
	InviterID uint      `gorm:"not null;index" json:"inviter_id"`       // 邀请人
	BoundBy   uint      `gorm:"not null;default:0" json:"bound_by"`     // 绑定操作管理员
	BoundAt   time.Time `gorm:"not null" json:"bound_at"`               // 绑定时间
	CreatedAt time.Time `json:"created_at"`                             // 创建时间
}

// TableName 指定表名
func (ReferralBinding) TableName() string {
	return "referral_bindings"
}
