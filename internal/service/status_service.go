package service

import (
	"time"

	"github.com/member-next/internal/constants"
	"github.com/member-next/internal/models"
	"github.com/member-next/internal/repository"
	"github.com/member-next/internal/statustoken"
)

// StatusService 会员状态查询服务（公开接口）。
// 先验签再按令牌哈希查人，签名合法但版本或哈希对不上的令牌一律拒绝。
type StatusService struct {
	userRepo   repository.UserRepository
	ledgerRepo repository.LedgerRepository
	codec      *statustoken.Codec
	now        func() time.Time
}

// NewStatusService 创建状态查询服务
func NewStatusService(userRepo repository.UserRepository, ledgerRepo repository.LedgerRepository, codec *statustoken.Codec) *StatusService {
	return &StatusService{
		userRepo:   userRepo,
		ledgerRepo: ledgerRepo,
		codec:      codec,
		now:        time.Now,
	}
}

// MemberStatus 会员状态响应
type MemberStatus struct {
	PublicID      string                  `json:"public_id"`
	Username      string                  `json:"username"`
	DisplayName   string                  `json:"display_name"`
	Active        bool                    `json:"active"`
	ExpireAt      int64                   `json:"expire_at"`
	RemainingDays int                     `json:"remaining_days"`
	UsedDays      int                     `json:"used_days"`
	RecentRecords []models.RechargeRecord `json:"recent_records"`
}

// Resolve 解析状态令牌并返回会员状态
func (s *StatusService) Resolve(token string) (*MemberStatus, error) {
	claims, err := s.codec.Verify(token)
	if err != nil {
		return nil, ErrUnauthorized
	}

	user, err := s.userRepo.GetByAccessTokenHash(statustoken.Hash(token))
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUnauthorized
	}
	if user.PublicID != claims.UserPublicID.String() || user.TokenVersion != claims.TokenVersion {
		return nil, ErrUnauthorized
	}

	now := s.now().Unix()
	status := &MemberStatus{
		PublicID:    user.PublicID,
		Username:    user.Username,
		DisplayName: user.DisplayName,
		Active:      user.ExpireAt > now,
		ExpireAt:    user.ExpireAt,
	}
	if status.Active {
		remaining := user.ExpireAt - now
		// 不足一天按一天计
		status.RemainingDays = int((remaining + constants.SecondsPerDay - 1) / constants.SecondsPerDay)
	}

	// 已消耗天数 = 账本净入账天数 - 剩余天数
	chain, err := s.ledgerRepo.ListRecordsByUser(user.ID)
	if err != nil {
		return nil, err
	}
	netDays := 0
	for _, record := range chain {
		netDays += record.ChangeDays
	}
	if used := netDays - status.RemainingDays; used > 0 {
		status.UsedDays = used
	}

	records, _, err := s.ledgerRepo.ListRecords(repository.RechargeListFilter{
		UserID:   user.ID,
		Page:     1,
		PageSize: 10,
	})
	if err != nil {
		return nil, err
	}
	status.RecentRecords = records

	return status, nil
}
