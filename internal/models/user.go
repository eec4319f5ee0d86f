package models

import "time"

// User 会员用户表
// expire_at 为派生字段：始终等于按发生顺序重放该用户全部充值记录后的终点到期时间，
// 仅由链重建逻辑写入。
type User struct {
	ID              uint      `gorm:"primarykey" json:"id"`                                   // 主键
	PublicID        string    `gorm:"type:varchar(36);not null;uniqueIndex" json:"public_id"` // 对外 UUID
	Username        string    `gorm:"type:varchar(64);not null;uniqueIndex" json:"username"`  // 登录名（展示用，无密码）
	DisplayName     string    `gorm:"type:varchar(64);default:''" json:"display_name"`        // 昵称
	Email           string    `gorm:"type:varchar(255);default:'';index" json:"email"`        // 邮箱
	EmailAlias      string    `gorm:"type:varchar(255);default:''" json:"email_alias"`        // 邮箱别名
	GroupName       string    `gorm:"type:varchar(64);default:''" json:"group_name"`          // 分组
	Remark          string    `gorm:"type:varchar(255);default:''" json:"remark"`             // 备注
	ExpireAt        int64     `gorm:"not null;default:0;index" json:"expire_at"`              // 到期时间（unix 秒，派生）
	TokenVersion    uint32    `gorm:"not null;default:0" json:"-"`                            // 令牌版本（重置时 +1）
	AccessTokenHash string    `gorm:"type:varchar(64);index" json:"-"`                        // 当前有效令牌的 SHA-256
	CreatedBy       uint      `gorm:"not null;default:0" json:"created_by"`                   // 创建管理员
	CreatedAt       time.Time `gorm:"index" json:"created_at"`                                // 创建时间
	UpdatedAt       time.Time `gorm:"index" json:"updated_at"`                                // 更新时间
}

// TableName 指定表名
func (User) TableName() string {
	return "users"
}
