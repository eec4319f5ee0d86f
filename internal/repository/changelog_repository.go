package repository

import (
	"strings"

	"gorm.io/gorm"

	"github.com/member-next/internal/models"
)

// ChangeLogRepository 资料变更日志数据访问接口
type ChangeLogRepository interface {
	WithTx(tx *gorm.DB) ChangeLogRepository

	CreateBatch(logs []models.ProfileChangeLog) error
	List(filter ChangeLogListFilter) ([]models.ProfileChangeLog, int64, error)
}

// GormChangeLogRepository GORM 资料变更日志仓储
type GormChangeLogRepository struct {
	db *gorm.DB
}

// NewChangeLogRepository 创建资料变更日志仓储
func NewChangeLogRepository(db *gorm.DB) *GormChangeLogRepository {
	return &GormChangeLogRepository{db: db}
}

// WithTx 绑定事务
func (r *GormChangeLogRepository) WithTx(tx *gorm.DB) ChangeLogRepository {
	if tx == nil {
		return r
	}
	return &GormChangeLogRepository{db: tx}
}

// CreateBatch 批量写入变更日志
func (r *GormChangeLogRepository) CreateBatch(logs []models.ProfileChangeLog) error {
	if len(logs) == 0 {
		return nil
	}
	return r.db.Create(&logs).Error
}

// List 查询变更日志列表
func (r *GormChangeLogRepository) List(filter ChangeLogListFilter) ([]models.ProfileChangeLog, int64, error) {
	query := r.db.Model(&models.ProfileChangeLog{})
	if filter.UserID != 0 {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if field := strings.TrimSpace(filter.Field); field != "" {
		query = query.Where("field = ?", field)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	query = applyPagination(query, filter.Page, filter.PageSize)

	var rows []models.ProfileChangeLog
	if err := query.Order("id desc").Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}
