package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/member-next/internal/constants"
	"github.com/member-next/internal/models"
)

// DashboardRepository 仪表盘聚合查询接口
// 说明：仅聚合统计数据，不承载业务规则。
type DashboardRepository interface {
	GetOverview(now time.Time, startAt, endAt time.Time) (DashboardOverviewRow, error)
}

// DashboardOverviewRow 仪表盘总览原始统计结果
type DashboardOverviewRow struct {
	UsersTotal       int64
	UsersActive      int64
	RechargesToday   int64
	DaysGrantedToday int64
	AmountMinorToday int64
	RefundsToday     int64
	BindingsToday    int64
	RewardPending    int64
	RewardAvailable  int64
	RewardWithdrawn  int64
	WithdrawalsToday int64
}

// GormDashboardRepository GORM 仪表盘聚合实现
type GormDashboardRepository struct {
	db *gorm.DB
}

// NewDashboardRepository 创建仪表盘仓库
func NewDashboardRepository(db *gorm.DB) *GormDashboardRepository {
	return &GormDashboardRepository{db: db}
}

// GetOverview 获取总览统计
func (r *GormDashboardRepository) GetOverview(now time.Time, startAt, endAt time.Time) (DashboardOverviewRow, error) {
	result := DashboardOverviewRow{}

	if err := r.db.Model(&models.User{}).Count(&result.UsersTotal).Error; err != nil {
		return result, err
	}
	if err := r.db.Model(&models.User{}).
		Where("expire_at > ?", now.Unix()).
		Count(&result.UsersActive).Error; err != nil {
		return result, err
	}

	rechargeBase := func() *gorm.DB {
		return r.db.Model(&models.RechargeRecord{}).
			Where("created_at >= ? AND created_at < ?", startAt, endAt)
	}
	if err := rechargeBase().Count(&result.RechargesToday).Error; err != nil {
		return result, err
	}

	var totals struct {
		Days   int64 `gorm:"column:days"`
		Amount int64 `gorm:"column:amount"`
	}
	if err := rechargeBase().
		Select("COALESCE(SUM(change_days), 0) AS days, COALESCE(SUM(amount_minor), 0) AS amount").
		Scan(&totals).Error; err != nil {
		return result, err
	}
	result.DaysGrantedToday = totals.Days
	result.AmountMinorToday = totals.Amount

	if err := r.db.Model(&models.RechargeRecord{}).
		Where("refunded_at >= ? AND refunded_at < ?", startAt, endAt).
		Count(&result.RefundsToday).Error; err != nil {
		return result, err
	}

	if err := r.db.Model(&models.ReferralBinding{}).
		Where("created_at >= ? AND created_at < ?", startAt, endAt).
		Count(&result.BindingsToday).Error; err != nil {
		return result, err
	}

	sumRewards := func(status string) (int64, error) {
		var row struct {
			Total int64 `gorm:"column:total"`
		}
		err := r.db.Model(&models.ReferralReward{}).
			Select("COALESCE(SUM(reward_minor), 0) AS total").
			Where("status = ?", status).
			Scan(&row).Error
		return row.Total, err
	}

	var err error
	if result.RewardPending, err = sumRewards(constants.RewardStatusPending); err != nil {
		return result, err
	}
	if result.RewardAvailable, err = sumRewards(constants.RewardStatusAvailable); err != nil {
		return result, err
	}
	if result.RewardWithdrawn, err = sumRewards(constants.RewardStatusWithdrawn); err != nil {
		return result, err
	}

	if err := r.db.Model(&models.ReferralWithdrawal{}).
		Where("created_at >= ? AND created_at < ?", startAt, endAt).
		Count(&result.WithdrawalsToday).Error; err != nil {
		return result, err
	}

	return result, nil
}
