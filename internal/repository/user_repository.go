package repository

import (
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/member-next/internal/models"
)

// UserRepository 会员数据访问接口
type UserRepository interface {
	Transaction(fn func(tx *gorm.DB) error) error
	WithTx(tx *gorm.DB) UserRepository

	GetByID(id uint) (*models.User, error)
	GetByIDForUpdate(id uint) (*models.User, error)
	GetByPublicID(publicID string) (*models.User, error)
	GetByUsername(username string) (*models.User, error)
	GetByAccessTokenHash(hash string) (*models.User, error)
	Create(user *models.User) error
	Update(id uint, updates map[string]interface{}) error
	List(filter UserListFilter) ([]models.User, int64, error)

	UpdateExpireAtCAS(id uint, oldExpireAt, newExpireAt int64, updatedAt time.Time) (int64, error)
	UpdateExpireAt(id uint, expireAt int64, updatedAt time.Time) error
}

// GormUserRepository GORM 会员仓储
type GormUserRepository struct {
	db *gorm.DB
}

// NewUserRepository 创建会员仓储
func NewUserRepository(db *gorm.DB) *GormUserRepository {
	return &GormUserRepository{db: db}
}

// WithTx 绑定事务
func (r *GormUserRepository) WithTx(tx *gorm.DB) UserRepository {
	if tx == nil {
		return r
	}
	return &GormUserRepository{db: tx}
}

// Transaction 执行事务
func (r *GormUserRepository) Transaction(fn func(tx *gorm.DB) error) error {
	if fn == nil {
		return nil
	}
	return r.db.Transaction(fn)
}

// GetByID 按ID获取会员
func (r *GormUserRepository) GetByID(id uint) (*models.User, error) {
	if id == 0 {
		return nil, nil
	}
	var user models.User
	if err := r.db.First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

// GetByIDForUpdate 按ID锁定获取会员
func (r *GormUserRepository) GetByIDForUpdate(id uint) (*models.User, error) {
	if id == 0 {
		return nil, nil
	}
	var user models.User
	if err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

// GetByPublicID 按对外ID获取会员
func (r *GormUserRepository) GetByPublicID(publicID string) (*models.User, error) {
	pid := strings.TrimSpace(publicID)
	if pid == "" {
		return nil, nil
	}
	var user models.User
	if err := r.db.Where("public_id = ?", pid).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

// GetByUsername 按用户名获取会员
func (r *GormUserRepository) GetByUsername(username string) (*models.User, error) {
	name := strings.TrimSpace(username)
	if name == "" {
		return nil, nil
	}
	var user models.User
	if err := r.db.Where("username = ?", name).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

// GetByAccessTokenHash 按状态令牌哈希获取会员
func (r *GormUserRepository) GetByAccessTokenHash(hash string) (*models.User, error) {
	h := strings.TrimSpace(hash)
	if h == "" {
		return nil, nil
	}
	var user models.User
	if err := r.db.Where("access_token_hash = ?", h).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

// Create 创建会员
func (r *GormUserRepository) Create(user *models.User) error {
	return r.db.Create(user).Error
}

// Update 按字段更新会员
func (r *GormUserRepository) Update(id uint, updates map[string]interface{}) error {
	if id == 0 || len(updates) == 0 {
		return nil
	}
	return r.db.Model(&models.User{}).Where("id = ?", id).Updates(updates).Error
}

// List 查询会员列表
func (r *GormUserRepository) List(filter UserListFilter) ([]models.User, int64, error) {
	query := r.db.Model(&models.User{})
	if keyword := strings.TrimSpace(filter.Search); keyword != "" {
		like := "%" + keyword + "%"
		query = query.Where("(username LIKE ? OR display_name LIKE ? OR email LIKE ? OR public_id = ?)",
			like, like, like, keyword)
	}
	if group := strings.TrimSpace(filter.GroupName); group != "" {
		query = query.Where("group_name = ?", group)
	}
	if filter.ExpireBefore != nil {
		query = query.Where("expire_at < ?", *filter.ExpireBefore)
	}
	if filter.ExpireAfter != nil {
		query = query.Where("expire_at >= ?", *filter.ExpireAfter)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	query = applyPagination(query, filter.Page, filter.PageSize)

	var rows []models.User
	if err := query.Order("id desc").Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// UpdateExpireAtCAS 以旧到期时间为条件更新到期时间，返回命中行数。
// 命中 0 行说明期间有并发写入，由调用方决定重试。
func (r *GormUserRepository) UpdateExpireAtCAS(id uint, oldExpireAt, newExpireAt int64, updatedAt time.Time) (int64, error) {
	if id == 0 {
		return 0, nil
	}
	result := r.db.Model(&models.User{}).
		Where("id = ? AND expire_at = ?", id, oldExpireAt).
		Updates(map[string]interface{}{
			"expire_at":  newExpireAt,
			"updated_at": updatedAt,
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// UpdateExpireAt 无条件更新到期时间，仅在全量重放后使用
func (r *GormUserRepository) UpdateExpireAt(id uint, expireAt int64, updatedAt time.Time) error {
	if id == 0 {
		return nil
	}
	return r.db.Model(&models.User{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"expire_at":  expireAt,
			"updated_at": updatedAt,
		}).Error
}
