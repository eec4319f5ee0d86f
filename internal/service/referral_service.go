package service

import (
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/member-next/internal/config"
	"github.com/member-next/internal/constants"
	"github.com/member-next/internal/logger"
	"github.com/member-next/internal/models"
	"github.com/member-next/internal/queue"
	"github.com/member-next/internal/repository"
)

// ReferralService 邀请绑定与返利业务服务。
// 充值落账后的奖励与赠送属于次级效果：失败只记日志，不影响账本，
// 幂等性由数据库唯一索引兜底。
type ReferralService struct {
	repo     repository.ReferralRepository
	userRepo repository.UserRepository
	ledger   *LedgerService
	queue    *queue.Client
	cfg      config.ReferralConfig
	now      func() time.Time
}

// NewReferralService 创建返利服务
func NewReferralService(
	repo repository.ReferralRepository,
	userRepo repository.UserRepository,
	ledger *LedgerService,
	queueClient *queue.Client,
	cfg config.ReferralConfig,
) *ReferralService {
	return &ReferralService{
		repo:     repo,
		userRepo: userRepo,
		ledger:   ledger,
		queue:    queueClient,
		cfg:      cfg,
		now:      time.Now,
	}
}

// BindInput 绑定邀请关系输入
type BindInput struct {
	InviteeID  uint
	InviterID  uint
	OperatorID uint
}

// BindResult 绑定结果
type BindResult struct {
	Binding      *models.ReferralBinding
	AlreadyBound bool
}

// ReferralSummary 邀请人返利汇总
type ReferralSummary struct {
	InviterID      uint          `json:"inviter_id"`
	BindingCount   int64         `json:"binding_count"`
	PendingMinor   models.Amount `json:"pending_amount"`
	AvailableMinor models.Amount `json:"available_amount"`
	WithdrawnMinor models.Amount `json:"withdrawn_amount"`
}

// Bind 绑定邀请关系。同一邀请人重复绑定幂等返回，
// 换邀请人、自邀、风控命中分别拒绝。
func (s *ReferralService) Bind(input BindInput) (*BindResult, error) {
	if input.InviteeID == 0 || input.InviterID == 0 {
		return nil, ErrNotFound
	}
	if input.InviteeID == input.InviterID {
		return nil, ErrSelfInvite
	}

	invitee, err := s.userRepo.GetByID(input.InviteeID)
	if err != nil {
		return nil, err
	}
	inviter, err := s.userRepo.GetByID(input.InviterID)
	if err != nil {
		return nil, err
	}
	if invitee == nil || inviter == nil {
		return nil, ErrNotFound
	}

	existing, err := s.repo.GetBindingByInviteeID(input.InviteeID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.InviterID == input.InviterID {
			return &BindResult{Binding: existing, AlreadyBound: true}, nil
		}
		return nil, ErrInviteeAlreadyBound
	}

	if s.cfg.AbuseCheck && looksLikeSelfReferral(invitee, inviter) {
		logger.Warnw("referral_bind_risk_rejected",
			"invitee_id", input.InviteeID,
			"inviter_id", input.InviterID,
		)
		return nil, ErrRiskRejected
	}

	now := s.now()
	binding := &models.ReferralBinding{
		InviteeID: input.InviteeID,
		InviterID: input.InviterID,
		BoundBy:   input.OperatorID,
		BoundAt:   now,
	}
	if err := s.repo.CreateBinding(binding); err != nil {
		if isUniqueViolation(err) {
			// 并发绑定被唯一索引拦下，按既有绑定重新判定
			current, getErr := s.repo.GetBindingByInviteeID(input.InviteeID)
			if getErr != nil {
				return nil, getErr
			}
			if current != nil && current.InviterID == input.InviterID {
				return &BindResult{Binding: current, AlreadyBound: true}, nil
			}
			return nil, ErrInviteeAlreadyBound
		}
		return nil, err
	}

	logger.Infow("referral_bound",
		"invitee_id", input.InviteeID,
		"inviter_id", input.InviterID,
		"operator_id", input.OperatorID,
	)
	return &BindResult{Binding: binding}, nil
}

// HandleRechargeApplied 充值落账回调：产生返利奖励与首充赠送
func (s *ReferralService) HandleRechargeApplied(record *models.RechargeRecord) {
	if !s.cfg.Enabled || record == nil {
		return
	}
	if !rewardEligible(record) {
		return
	}

	binding, err := s.repo.GetBindingByInviteeID(record.UserID)
	if err != nil {
		logger.Errorw("referral_binding_lookup_failed", "record_id", record.ID, "error", err)
		return
	}
	if binding == nil {
		return
	}

	if err := s.createReward(binding, record); err != nil {
		logger.Errorw("referral_reward_create_failed", "record_id", record.ID, "error", err)
	}
	if err := s.grantFirstRechargeBonus(binding, record); err != nil {
		logger.Errorw("referral_bonus_grant_failed", "record_id", record.ID, "error", err)
	}
}

// HandleRechargeRefunded 退款回调：作废奖励并回收首充赠送
func (s *ReferralService) HandleRechargeRefunded(record *models.RechargeRecord) {
	if record == nil {
		return
	}
	now := s.now()

	canceled, err := s.repo.CancelRewardsByRecordID(record.ID, now, "source recharge refunded")
	if err != nil {
		logger.Errorw("referral_reward_cancel_failed", "record_id", record.ID, "error", err)
	} else if canceled > 0 {
		logger.Infow("referral_reward_canceled", "record_id", record.ID, "count", canceled)
	} else if reward, getErr := s.repo.GetRewardByRecordID(record.ID); getErr == nil &&
		reward != nil && reward.Status == constants.RewardStatusWithdrawn {
		// 已提现的奖励不能作废，留给人工对账
		logger.Warnw("referral_reward_withdrawn_before_refund",
			"record_id", record.ID,
			"reward_id", reward.ID,
			"inviter_id", reward.InviterID,
		)
	}

	if err := s.revokeBonusGrant(record, now); err != nil {
		logger.Errorw("referral_bonus_revoke_failed", "record_id", record.ID, "error", err)
	}
}

// createReward 为符合条件的充值生成一条待解锁奖励。
// 奖励金额按基点比例向下取整，为零时不产生账目。
func (s *ReferralService) createReward(binding *models.ReferralBinding, record *models.RechargeRecord) error {
	rateBps := s.cfg.RewardRateBps
	if rateBps <= 0 {
		return nil
	}
	rewardMinor := models.Amount(int64(record.AmountMinor) * int64(rateBps) / constants.RewardRateBpsScale)
	if rewardMinor <= 0 {
		return nil
	}

	now := s.now()
	unlockDelay := time.Duration(s.cfg.UnlockDelayHours) * time.Hour
	reward := &models.ReferralReward{
		InviterID:        binding.InviterID,
		InviteeID:        binding.InviteeID,
		RechargeRecordID: record.ID,
		Reason:           record.Reason,
		Source:           record.Source,
		AmountMinor:      record.AmountMinor,
		RateBps:          rateBps,
		RewardMinor:      rewardMinor,
		Status:           constants.RewardStatusPending,
		UnlockAt:         now.Add(unlockDelay),
	}
	if err := s.repo.CreateReward(reward); err != nil {
		if isUniqueViolation(err) {
			return nil
		}
		return err
	}

	logger.Infow("referral_reward_created",
		"reward_id", reward.ID,
		"inviter_id", binding.InviterID,
		"record_id", record.ID,
		"reward_amount", rewardMinor,
	)
	if err := s.queue.EnqueueReferralUnlock(queue.ReferralUnlockPayload{RewardID: reward.ID}, unlockDelay); err != nil {
		logger.Warnw("referral_unlock_enqueue_failed", "reward_id", reward.ID, "error", err)
	}
	return nil
}

// grantFirstRechargeBonus 被邀请人首次合格充值发放赠送天数。
// invitee_id 唯一索引保证终身至多一次，抢到插入的调用负责发放；
// 上次发放中途失败留下的 pending 占位由后续合格充值接续补发。
// 赠送充值 source 为 system_bonus，不会再次触发奖励，链不会无限延伸。
func (s *ReferralService) grantFirstRechargeBonus(binding *models.ReferralBinding, record *models.RechargeRecord) error {
	bonusDays := s.cfg.InviteeBonusDays
	if bonusDays <= 0 {
		return nil
	}

	grant := &models.ReferralBonusGrant{
		InviteeID:        binding.InviteeID,
		RechargeRecordID: record.ID,
		BonusDays:        bonusDays,
		Status:           constants.BonusGrantStatusPending,
	}
	if err := s.repo.CreateGrant(grant); err != nil {
		if !isUniqueViolation(err) {
			return err
		}
		existing, getErr := s.repo.GetGrantByInviteeID(binding.InviteeID)
		if getErr != nil {
			return getErr
		}
		if existing == nil || existing.Status != constants.BonusGrantStatusPending {
			return nil
		}
		grant = existing
	}

	return s.repo.Transaction(func(tx *gorm.DB) error {
		bonusRecord, err := s.ledger.ApplyAdjustmentTx(tx,
			grant.InviteeID,
			grant.BonusDays,
			constants.RechargeReasonReferralReward,
			constants.RechargeSourceSystemBonus,
			"referral first recharge bonus",
			0,
		)
		if err != nil {
			return err
		}
		if err := s.repo.WithTx(tx).UpdateGrant(grant.ID, map[string]interface{}{
			"status":             constants.BonusGrantStatusGranted,
			"bonus_record_id":    bonusRecord.ID,
			"recharge_record_id": record.ID,
			"updated_at":         s.now(),
		}); err != nil {
			return err
		}
		logger.Infow("referral_bonus_granted",
			"grant_id", grant.ID,
			"invitee_id", binding.InviteeID,
			"bonus_days", bonusDays,
			"bonus_record_id", bonusRecord.ID,
		)
		return nil
	})
}

// revokeBonusGrant 回收触发充值对应的首充赠送，插入冲销记录并重放链
func (s *ReferralService) revokeBonusGrant(record *models.RechargeRecord, now time.Time) error {
	grant, err := s.repo.GetGrantByRecordID(record.ID)
	if err != nil {
		return err
	}
	if grant == nil || grant.Status != constants.BonusGrantStatusGranted {
		return nil
	}

	return s.repo.Transaction(func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		rows, err := txRepo.RevokeGrant(grant.ID, now, nil, "source recharge refunded")
		if err != nil {
			return err
		}
		if rows == 0 {
			return nil
		}
		revokeRecord, err := s.ledger.ApplyAdjustmentTx(tx,
			grant.InviteeID,
			-grant.BonusDays,
			constants.RechargeReasonReferralReward,
			constants.RechargeSourceRefundRollback,
			"referral bonus revoked",
			0,
		)
		if err != nil {
			return err
		}
		if err := txRepo.UpdateGrant(grant.ID, map[string]interface{}{
			"revoke_record_id": revokeRecord.ID,
		}); err != nil {
			return err
		}
		logger.Infow("referral_bonus_revoked",
			"grant_id", grant.ID,
			"invitee_id", grant.InviteeID,
			"revoke_record_id", revokeRecord.ID,
		)
		return nil
	})
}

// UnlockPendingRewards 将到期的待解锁奖励批量转为可提现，返回命中数量。
// 同时被延迟任务和周期扫描调用，天然幂等。
func (s *ReferralService) UnlockPendingRewards() (int64, error) {
	now := s.now()
	unlocked, err := s.repo.UnlockPendingRewards(now, now)
	if err != nil {
		return 0, err
	}
	if unlocked > 0 {
		logger.Infow("referral_rewards_unlocked", "count", unlocked)
	}
	return unlocked, nil
}

// WithdrawInput 提现输入
type WithdrawInput struct {
	InviterID  uint
	Note       string
	OperatorID uint
}

// Withdraw 一次性提走邀请人全部可提现奖励。
// 锁定后求和为零返回 ErrNothingToWithdraw，不产生空批次。
func (s *ReferralService) Withdraw(input WithdrawInput) (*models.ReferralWithdrawal, error) {
	if input.InviterID == 0 {
		return nil, ErrNotFound
	}
	if len(input.Note) > constants.MaxNoteLength {
		return nil, ErrInvalidInput
	}

	now := s.now()
	withdrawal := &models.ReferralWithdrawal{}

	err := s.repo.Transaction(func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)

		rewards, err := txRepo.ListAvailableRewardsForUpdate(input.InviterID)
		if err != nil {
			return err
		}

		var total models.Amount
		ids := make([]uint, 0, len(rewards))
		for _, reward := range rewards {
			total += reward.RewardMinor
			ids = append(ids, reward.ID)
		}
		if total <= 0 {
			return ErrNothingToWithdraw
		}

		*withdrawal = models.ReferralWithdrawal{
			InviterID:   input.InviterID,
			AmountMinor: total,
			ProcessedBy: input.OperatorID,
			Note:        strings.TrimSpace(input.Note),
		}
		if err := txRepo.CreateWithdrawal(withdrawal); err != nil {
			return err
		}
		return txRepo.BatchUpdateRewards(ids, map[string]interface{}{
			"status":        constants.RewardStatusWithdrawn,
			"withdrawn_at":  now,
			"withdrawal_id": withdrawal.ID,
			"updated_at":    now,
		})
	})
	if err != nil {
		return nil, err
	}

	logger.Infow("referral_withdrawal_settled",
		"withdrawal_id", withdrawal.ID,
		"inviter_id", input.InviterID,
		"amount", withdrawal.AmountMinor,
	)
	return withdrawal, nil
}

// GetBindingByInvitee 查询被邀请人的绑定关系
func (s *ReferralService) GetBindingByInvitee(inviteeID uint) (*models.ReferralBinding, error) {
	if inviteeID == 0 {
		return nil, ErrNotFound
	}
	return s.repo.GetBindingByInviteeID(inviteeID)
}

// ListBindings 查询邀请人名下绑定列表
func (s *ReferralService) ListBindings(inviterID uint, page, pageSize int) ([]models.ReferralBinding, int64, error) {
	return s.repo.ListBindingsByInviter(inviterID, page, pageSize)
}

// ListRewards 查询返利记录
func (s *ReferralService) ListRewards(filter repository.RewardListFilter) ([]models.ReferralReward, int64, error) {
	return s.repo.ListRewards(filter)
}

// ListWithdrawals 查询提现记录
func (s *ReferralService) ListWithdrawals(filter repository.WithdrawalListFilter) ([]models.ReferralWithdrawal, int64, error) {
	return s.repo.ListWithdrawals(filter)
}

// GetWithdrawal 按ID查询提现批次
func (s *ReferralService) GetWithdrawal(id uint) (*models.ReferralWithdrawal, error) {
	withdrawal, err := s.repo.GetWithdrawalByID(id)
	if err != nil {
		return nil, err
	}
	if withdrawal == nil {
		return nil, ErrNotFound
	}
	return withdrawal, nil
}

// Summary 汇总邀请人的绑定与返利数据
func (s *ReferralService) Summary(inviterID uint) (*ReferralSummary, error) {
	if inviterID == 0 {
		return nil, ErrNotFound
	}
	user, err := s.userRepo.GetByID(inviterID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrNotFound
	}

	summary := &ReferralSummary{InviterID: inviterID}
	if summary.BindingCount, err = s.repo.CountBindingsByInviter(inviterID); err != nil {
		return nil, err
	}
	if summary.PendingMinor, err = s.repo.SumRewardsByInviter(inviterID, []string{constants.RewardStatusPending}); err != nil {
		return nil, err
	}
	if summary.AvailableMinor, err = s.repo.SumRewardsByInviter(inviterID, []string{constants.RewardStatusAvailable}); err != nil {
		return nil, err
	}
	if summary.WithdrawnMinor, err = s.repo.SumRewardsByInviter(inviterID, []string{constants.RewardStatusWithdrawn}); err != nil {
		return nil, err
	}
	return summary, nil
}

// rewardEligible 判断充值记录是否触发返利联动。
// 只有 normal 来源、付费类原因且金额为正的充值才算有效触发。
func rewardEligible(record *models.RechargeRecord) bool {
	if record.Source != constants.RechargeSourceNormal {
		return false
	}
	if !constants.IsRewardEligibleReason(record.Reason) {
		return false
	}
	return record.AmountMinor > 0
}

// looksLikeSelfReferral 自邀检测：邮箱、邮箱别名或分组精确相同即命中
func looksLikeSelfReferral(invitee, inviter *models.User) bool {
	if v := strings.TrimSpace(invitee.Email); v != "" && v == strings.TrimSpace(inviter.Email) {
		return true
	}
	if v := strings.TrimSpace(invitee.EmailAlias); v != "" && v == strings.TrimSpace(inviter.EmailAlias) {
		return true
	}
	if v := strings.TrimSpace(invitee.GroupName); v != "" && v == strings.TrimSpace(inviter.GroupName) {
		return true
	}
	return false
}
