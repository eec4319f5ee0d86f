package repository

import (
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/member-next/internal/constants"
	"github.com/member-next/internal/models"
)

// ReferralRepository 推荐绑定与返利数据访问接口
type ReferralRepository interface {
	Transaction(fn func(tx *gorm.DB) error) error
	WithTx(tx *gorm.DB) ReferralRepository

	GetBindingByInviteeID(inviteeID uint) (*models.ReferralBinding, error)
	CreateBinding(binding *models.ReferralBinding) error
	ListBindingsByInviter(inviterID uint, page, pageSize int) ([]models.ReferralBinding, int64, error)
	CountBindingsByInviter(inviterID uint) (int64, error)

	CreateReward(reward *models.ReferralReward) error
	GetRewardByRecordID(recordID uint) (*models.ReferralReward, error)
	ListRewards(filter RewardListFilter) ([]models.ReferralReward, int64, error)
	ListAvailableRewardsForUpdate(inviterID uint) ([]models.ReferralReward, error)
	BatchUpdateRewards(ids []uint, updates map[string]interface{}) error
	UnlockPendingRewards(before, now time.Time) (int64, error)
	CancelRewardsByRecordID(recordID uint, now time.Time, reason string) (int64, error)
	SumRewardsByInviter(inviterID uint, statuses []string) (models.Amount, error)

	CreateGrant(grant *models.ReferralBonusGrant) error
	GetGrantByInviteeID(inviteeID uint) (*models.ReferralBonusGrant, error)
	GetGrantByRecordID(recordID uint) (*models.ReferralBonusGrant, error)
	UpdateGrant(id uint, updates map[string]interface{}) error
	RevokeGrant(id uint, now time.Time, revokeRecordID *uint, reason string) (int64, error)

	CreateWithdrawal(withdrawal *models.ReferralWithdrawal) error
	GetWithdrawalByID(id uint) (*models.ReferralWithdrawal, error)
	ListWithdrawals(filter WithdrawalListFilter) ([]models.ReferralWithdrawal, int64, error)
}

// GormReferralRepository GORM 推荐返利仓储
type GormReferralRepository struct {
	db *gorm.DB
}

// NewReferralRepository 创建推荐返利仓储
func NewReferralRepository(db *gorm.DB) *GormReferralRepository {
	return &GormReferralRepository{db: db}
}

// WithTx 绑定事务
func (r *GormReferralRepository) WithTx(tx *gorm.DB) ReferralRepository {
	if tx == nil {
		return r
	}
	return &GormReferralRepository{db: tx}
}

// Transaction 执行事务
func (r *GormReferralRepository) Transaction(fn func(tx *gorm.DB) error) error {
	if fn == nil {
		return nil
	}
	return r.db.Transaction(fn)
}

// GetBindingByInviteeID 按被邀请人查询绑定关系
func (r *GormReferralRepository) GetBindingByInviteeID(inviteeID uint) (*models.ReferralBinding, error) {
	if inviteeID == 0 {
		return nil, nil
	}
	var binding models.ReferralBinding
	if err := r.db.Where("invitee_id = ?", inviteeID).First(&binding).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &binding, nil
}

// CreateBinding 创建绑定关系
func (r *GormReferralRepository) CreateBinding(binding *models.ReferralBinding) error {
	return r.db.Create(binding).Error
}

// ListBindingsByInviter 查询邀请人名下的绑定列表
func (r *GormReferralRepository) ListBindingsByInviter(inviterID uint, page, pageSize int) ([]models.ReferralBinding, int64, error) {
	if inviterID == 0 {
		return []models.ReferralBinding{}, 0, nil
	}
	query := r.db.Model(&models.ReferralBinding{}).Where("inviter_id = ?", inviterID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	query = applyPagination(query, page, pageSize)

	var rows []models.ReferralBinding
	if err := query.Order("id desc").Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// CountBindingsByInviter 统计邀请人名下的绑定数
func (r *GormReferralRepository) CountBindingsByInviter(inviterID uint) (int64, error) {
	if inviterID == 0 {
		return 0, nil
	}
	var total int64
	if err := r.db.Model(&models.ReferralBinding{}).Where("inviter_id = ?", inviterID).Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

// CreateReward 创建返利记录
func (r *GormReferralRepository) CreateReward(reward *models.ReferralReward) error {
	return r.db.Create(reward).Error
}

// GetRewardByRecordID 按触发充值记录查询返利
func (r *GormReferralRepository) GetRewardByRecordID(recordID uint) (*models.ReferralReward, error) {
	if recordID == 0 {
		return nil, nil
	}
	var reward models.ReferralReward
	if err := r.db.Where("recharge_record_id = ?", recordID).First(&reward).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &reward, nil
}

// ListRewards 查询返利记录列表
func (r *GormReferralRepository) ListRewards(filter RewardListFilter) ([]models.ReferralReward, int64, error) {
	query := r.db.Model(&models.ReferralReward{})
	if filter.InviterID != 0 {
		query = query.Where("inviter_id = ?", filter.InviterID)
	}
	if filter.InviteeID != 0 {
		query = query.Where("invitee_id = ?", filter.InviteeID)
	}
	if status := strings.TrimSpace(filter.Status); status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	query = applyPagination(query, filter.Page, filter.PageSize)

	var rows []models.ReferralReward
	if err := query.Order("id desc").Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// ListAvailableRewardsForUpdate 查询并锁定可提现返利
func (r *GormReferralRepository) ListAvailableRewardsForUpdate(inviterID uint) ([]models.ReferralReward, error) {
	if inviterID == 0 {
		return []models.ReferralReward{}, nil
	}
	var rows []models.ReferralReward
	if err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("inviter_id = ? AND status = ? AND withdrawal_id IS NULL",
			inviterID, constants.RewardStatusAvailable).
		Order("id asc").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// BatchUpdateRewards 批量更新返利记录
func (r *GormReferralRepository) BatchUpdateRewards(ids []uint, updates map[string]interface{}) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.Model(&models.ReferralReward{}).Where("id IN ?", ids).Updates(updates).Error
}

// UnlockPendingRewards 批量将到期的待解锁返利转为可提现，返回命中行数
func (r *GormReferralRepository) UnlockPendingRewards(before, now time.Time) (int64, error) {
	result := r.db.Model(&models.ReferralReward{}).
		Where("status = ? AND unlock_at <= ?", constants.RewardStatusPending, before).
		Updates(map[string]interface{}{
			"status":       constants.RewardStatusAvailable,
			"available_at": now,
			"updated_at":   now,
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// CancelRewardsByRecordID 作废触发充值记录对应的返利，已提现的不动，返回命中行数
func (r *GormReferralRepository) CancelRewardsByRecordID(recordID uint, now time.Time, reason string) (int64, error) {
	if recordID == 0 {
		return 0, nil
	}
	result := r.db.Model(&models.ReferralReward{}).
		Where("recharge_record_id = ? AND status IN ? AND withdrawal_id IS NULL",
			recordID,
			[]string{constants.RewardStatusPending, constants.RewardStatusAvailable},
		).
		Updates(map[string]interface{}{
			"status":        constants.RewardStatusCanceled,
			"canceled_at":   now,
			"cancel_reason": strings.TrimSpace(reason),
			"updated_at":    now,
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// SumRewardsByInviter 汇总邀请人指定状态的返利金额
func (r *GormReferralRepository) SumRewardsByInviter(inviterID uint, statuses []string) (models.Amount, error) {
	if inviterID == 0 || len(statuses) == 0 {
		return 0, nil
	}
	var row struct {
		Total int64 `gorm:"column:total"`
	}
	if err := r.db.Model(&models.ReferralReward{}).
		Select("COALESCE(SUM(reward_minor), 0) AS total").
		Where("inviter_id = ? AND status IN ?", inviterID, statuses).
		Scan(&row).Error; err != nil {
		return 0, err
	}
	return models.Amount(row.Total), nil
}

// CreateGrant 创建首充赠送记录
func (r *GormReferralRepository) CreateGrant(grant *models.ReferralBonusGrant) error {
	return r.db.Create(grant).Error
}

// GetGrantByInviteeID 按被邀请人查询首充赠送
func (r *GormReferralRepository) GetGrantByInviteeID(inviteeID uint) (*models.ReferralBonusGrant, error) {
	if inviteeID == 0 {
		return nil, nil
	}
	var grant models.ReferralBonusGrant
	if err := r.db.Where("invitee_id = ?", inviteeID).First(&grant).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &grant, nil
}

// GetGrantByRecordID 按触发充值记录查询首充赠送
func (r *GormReferralRepository) GetGrantByRecordID(recordID uint) (*models.ReferralBonusGrant, error) {
	if recordID == 0 {
		return nil, nil
	}
	var grant models.ReferralBonusGrant
	if err := r.db.Where("recharge_record_id = ?", recordID).First(&grant).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &grant, nil
}

// UpdateGrant 按字段更新首充赠送记录
func (r *GormReferralRepository) UpdateGrant(id uint, updates map[string]interface{}) error {
	if id == 0 || len(updates) == 0 {
		return nil
	}
	return r.db.Model(&models.ReferralBonusGrant{}).Where("id = ?", id).Updates(updates).Error
}

// RevokeGrant 撤销首充赠送，仅已发放状态可命中，返回命中行数
func (r *GormReferralRepository) RevokeGrant(id uint, now time.Time, revokeRecordID *uint, reason string) (int64, error) {
	if id == 0 {
		return 0, nil
	}
	result := r.db.Model(&models.ReferralBonusGrant{}).
		Where("id = ? AND status = ?", id, constants.BonusGrantStatusGranted).
		Updates(map[string]interface{}{
			"status":           constants.BonusGrantStatusRevoked,
			"revoked_at":       now,
			"revoke_record_id": revokeRecordID,
			"revoke_reason":    strings.TrimSpace(reason),
			"updated_at":       now,
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// CreateWithdrawal 创建提现记录
func (r *GormReferralRepository) CreateWithdrawal(withdrawal *models.ReferralWithdrawal) error {
	return r.db.Create(withdrawal).Error
}

// GetWithdrawalByID 按ID查询提现记录
func (r *GormReferralRepository) GetWithdrawalByID(id uint) (*models.ReferralWithdrawal, error) {
	if id == 0 {
		return nil, nil
	}
	var row models.ReferralWithdrawal
	if err := r.db.First(&row, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// ListWithdrawals 查询提现记录列表
func (r *GormReferralRepository) ListWithdrawals(filter WithdrawalListFilter) ([]models.ReferralWithdrawal, int64, error) {
	query := r.db.Model(&models.ReferralWithdrawal{})
	if filter.InviterID != 0 {
		query = query.Where("inviter_id = ?", filter.InviterID)
	}
	if filter.CreatedFrom != nil {
		query = query.Where("created_at >= ?", *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		query = query.Where("created_at <= ?", *filter.CreatedTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	query = applyPagination(query, filter.Page, filter.PageSize)

	var rows []models.ReferralWithdrawal
	if err := query.Order("id desc").Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}
