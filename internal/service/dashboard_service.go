package service

import (
	"time"

	"github.com/member-next/internal/models"
	"github.com/member-next/internal/repository"
)

// DashboardService 后台仪表盘服务
type DashboardService struct {
	repo repository.DashboardRepository
	now  func() time.Time
}

// NewDashboardService 创建仪表盘服务
func NewDashboardService(repo repository.DashboardRepository) *DashboardService {
	return &DashboardService{
		repo: repo,
		now:  time.Now,
	}
}

// DashboardOverview 仪表盘总览
type DashboardOverview struct {
	UsersTotal       int64         `json:"users_total"`
	UsersActive      int64         `json:"users_active"`
	RechargesToday   int64         `json:"recharges_today"`
	DaysGrantedToday int64         `json:"days_granted_today"`
	AmountToday      models.Amount `json:"amount_today"`
	RefundsToday     int64         `json:"refunds_today"`
	BindingsToday    int64         `json:"bindings_today"`
	RewardPending    models.Amount `json:"reward_pending"`
	RewardAvailable  models.Amount `json:"reward_available"`
	RewardWithdrawn  models.Amount `json:"reward_withdrawn"`
	WithdrawalsToday int64         `json:"withdrawals_today"`
}

// GetOverview 获取当日总览统计，统计窗口为服务器本地时区的自然日
func (s *DashboardService) GetOverview() (*DashboardOverview, error) {
	now := s.now()
	startAt := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	endAt := startAt.Add(24 * time.Hour)

	row, err := s.repo.GetOverview(now, startAt, endAt)
	if err != nil {
		return nil, err
	}

	return &DashboardOverview{
		UsersTotal:       row.UsersTotal,
		UsersActive:      row.UsersActive,
		RechargesToday:   row.RechargesToday,
		DaysGrantedToday: row.DaysGrantedToday,
		AmountToday:      models.Amount(row.AmountMinorToday),
		RefundsToday:     row.RefundsToday,
		BindingsToday:    row.BindingsToday,
		RewardPending:    models.Amount(row.RewardPending),
		RewardAvailable:  models.Amount(row.RewardAvailable),
		RewardWithdrawn:  models.Amount(row.RewardWithdrawn),
		WithdrawalsToday: row.WithdrawalsToday,
	}, nil
}
