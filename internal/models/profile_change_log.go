package models

import "time"

// ProfileChangeLog 用户资料变更审计
// 每个被修改的资料字段各记一行，备注必填。
type ProfileChangeLog struct {
	ID        uint      `gorm:"primarykey" json:"id"`                          // 主键
	UserID    uint      `gorm:"not null;index" json:"user_id"`                 // 用户ID
	AdminID   uint      `gorm:"not null;default:0" json:"admin_id"`            // 操作管理员
	Field     string    `gorm:"type:varchar(32);not null" json:"field"`        // 字段名
	OldValue  string    `gorm:"type:varchar(255);default:''" json:"old_value"` // 原值
	NewValue  string    `gorm:"type:varchar(255);default:''" json:"new_value"` // 新值
	Note      string    `gorm:"type:varchar(255);not null" json:"note"`        // 审计备注
	CreatedAt time.Time `gorm:"index" json:"created_at"`                       // 创建时间
}

// TableName 指定表名
func (ProfileChangeLog) TableName() string {
	return "profile_change_logs"
}
