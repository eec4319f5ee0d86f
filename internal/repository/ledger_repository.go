package repository

import (
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/member-next/internal/models"
)

// LedgerRepository 充值流水数据访问接口
type LedgerRepository interface {
	Transaction(fn func(tx *gorm.DB) error) error
	WithTx(tx *gorm.DB) LedgerRepository

	CreateRecord(record *models.RechargeRecord) error
	GetRecordByID(id uint) (*models.RechargeRecord, error)
	GetRecordByIDForUpdate(id uint) (*models.RechargeRecord, error)
	ListRecordsByUser(userID uint) ([]models.RechargeRecord, error)
	UpdateSnapshots(id uint, expireBefore, expireAfter int64) error
	SetRefundMetadata(id uint, at time.Time, by uint, amount models.Amount, note string) (int64, error)
	ListRecords(filter RechargeListFilter) ([]models.RechargeRecord, int64, error)
	CountRecordsByUser(userID uint) (int64, error)
}

// GormLedgerRepository GORM 充值流水仓储
type GormLedgerRepository struct {
	db *gorm.DB
}

// NewLedgerRepository 创建充值流水仓储
func NewLedgerRepository(db *gorm.DB) *GormLedgerRepository {
	return &GormLedgerRepository{db: db}
}

// WithTx 绑定事务
func (r *GormLedgerRepository) WithTx(tx *gorm.DB) LedgerRepository {
	if tx == nil {
		return r
	}
	return &GormLedgerRepository{db: tx}
}

// Transaction 执行事务
func (r *GormLedgerRepository) Transaction(fn func(tx *gorm.DB) error) error {
	if fn == nil {
		return nil
	}
	return r.db.Transaction(fn)
}

// CreateRecord 创建充值记录
func (r *GormLedgerRepository) CreateRecord(record *models.RechargeRecord) error {
	return r.db.Create(record).Error
}

// GetRecordByID 按ID获取充值记录
func (r *GormLedgerRepository) GetRecordByID(id uint) (*models.RechargeRecord, error) {
	if id == 0 {
		return nil, nil
	}
	var record models.RechargeRecord
	if err := r.db.First(&record, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// GetRecordByIDForUpdate 按ID锁定获取充值记录
func (r *GormLedgerRepository) GetRecordByIDForUpdate(id uint) (*models.RechargeRecord, error) {
	if id == 0 {
		return nil, nil
	}
	var record models.RechargeRecord
	if err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&record, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// ListRecordsByUser 按会员获取全部充值记录，按业务时间与ID升序。
// 重放链条依赖这个顺序，任何调整都要同步改重放逻辑。
func (r *GormLedgerRepository) ListRecordsByUser(userID uint) ([]models.RechargeRecord, error) {
	if userID == 0 {
		return []models.RechargeRecord{}, nil
	}
	var rows []models.RechargeRecord
	if err := r.db.Where("user_id = ?", userID).
		Order("occurred_at asc, id asc").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// UpdateSnapshots 更新单条记录的生效前后快照
func (r *GormLedgerRepository) UpdateSnapshots(id uint, expireBefore, expireAfter int64) error {
	if id == 0 {
		return nil
	}
	return r.db.Model(&models.RechargeRecord{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"expire_before": expireBefore,
			"expire_after":  expireAfter,
		}).Error
}

// SetRefundMetadata 写入退款标记，仅未退款记录可命中，返回命中行数
func (r *GormLedgerRepository) SetRefundMetadata(id uint, at time.Time, by uint, amount models.Amount, note string) (int64, error) {
	if id == 0 {
		return 0, nil
	}
	result := r.db.Model(&models.RechargeRecord{}).
		Where("id = ? AND refunded_at IS NULL", id).
		Updates(map[string]interface{}{
			"refunded_at":         at,
			"refunded_by":         by,
			"refund_amount_minor": amount,
			"refund_note":         strings.TrimSpace(note),
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// ListRecords 查询充值流水列表
func (r *GormLedgerRepository) ListRecords(filter RechargeListFilter) ([]models.RechargeRecord, int64, error) {
	query := r.db.Model(&models.RechargeRecord{})
	if filter.UserID != 0 {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if reason := strings.TrimSpace(filter.Reason); reason != "" {
		query = query.Where("reason = ?", reason)
	}
	if source := strings.TrimSpace(filter.Source); source != "" {
		query = query.Where("source = ?", source)
	}
	if filter.Refunded != nil {
		if *filter.Refunded {
			query = query.Where("refunded_at IS NOT NULL")
		} else {
			query = query.Where("refunded_at IS NULL")
		}
	}
	if filter.OccurredFrom != nil {
		query = query.Where("occurred_at >= ?", *filter.OccurredFrom)
	}
	if filter.OccurredTo != nil {
		query = query.Where("occurred_at <= ?", *filter.OccurredTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	query = applyPagination(query, filter.Page, filter.PageSize)

	var rows []models.RechargeRecord
	if err := query.Order("occurred_at desc, id desc").Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// CountRecordsByUser 统计会员的充值记录数
func (r *GormLedgerRepository) CountRecordsByUser(userID uint) (int64, error) {
	if userID == 0 {
		return 0, nil
	}
	var total int64
	if err := r.db.Model(&models.RechargeRecord{}).Where("user_id = ?", userID).Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}
