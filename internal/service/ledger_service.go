package service

import (
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/member-next/internal/constants"
	"github.com/member-next/internal/logger"
	"github.com/member-next/internal/models"
	"github.com/member-next/internal/repository"
)

// 普通充值走快路径：单条 CAS 更新到期时间，冲突时整单重试。
const rechargeCASRetries = 3

// RechargeObserver 充值落账后的联动回调。
// 回调失败只记日志不回滚账本，联动方自行保证幂等。
type RechargeObserver interface {
	HandleRechargeApplied(record *models.RechargeRecord)
	HandleRechargeRefunded(record *models.RechargeRecord)
}

// LedgerService 会员时长账本服务
type LedgerService struct {
	repo     repository.LedgerRepository
	userRepo repository.UserRepository
	observer RechargeObserver
	now      func() time.Time
}

// NewLedgerService 创建账本服务
func NewLedgerService(repo repository.LedgerRepository, userRepo repository.UserRepository) *LedgerService {
	return &LedgerService{
		repo:     repo,
		userRepo: userRepo,
		now:      time.Now,
	}
}

// SetObserver 注册充值联动回调，由装配层调用一次
func (s *LedgerService) SetObserver(observer RechargeObserver) {
	s.observer = observer
}

// RechargeInput 普通充值输入
type RechargeInput struct {
	UserID      uint
	ChangeDays  int
	Reason      string
	AmountMinor models.Amount
	Note        string
	OperatorID  uint
}

// BackfillInput 补录充值输入
type BackfillInput struct {
	UserID      uint
	ChangeDays  int
	Reason      string
	AmountMinor models.Amount
	Note        string
	OccurredAt  int64
	OperatorID  uint
}

// RefundInput 退款输入
type RefundInput struct {
	RecordID    uint
	AmountMinor models.Amount
	Note        string
	OperatorID  uint
}

// Recharge 普通充值。业务时间取当前时刻，走 CAS 快路径，
// 到期时间被并发修改时重试，连续失败返回 ErrConflict。
func (s *LedgerService) Recharge(input RechargeInput) (*models.RechargeRecord, error) {
	if input.UserID == 0 {
		return nil, ErrNotFound
	}
	if input.ChangeDays <= 0 || input.ChangeDays > constants.MaxRechargeDays {
		return nil, ErrInvalidInput
	}
	if err := validateRechargeCommon(input.Reason, input.AmountMinor, input.Note); err != nil {
		return nil, err
	}

	var record *models.RechargeRecord
	for attempt := 0; attempt < rechargeCASRetries; attempt++ {
		user, err := s.userRepo.GetByID(input.UserID)
		if err != nil {
			return nil, err
		}
		if user == nil {
			return nil, ErrNotFound
		}

		now := s.now()
		occurredAt := now.Unix()
		expireBefore := user.ExpireAt
		expireAfter := chainAdvance(expireBefore, occurredAt, input.ChangeDays)

		candidate := &models.RechargeRecord{
			UserID:       input.UserID,
			ChangeDays:   input.ChangeDays,
			Reason:       input.Reason,
			AmountMinor:  input.AmountMinor,
			Source:       constants.RechargeSourceNormal,
			Note:         strings.TrimSpace(input.Note),
			OccurredAt:   occurredAt,
			ExpireBefore: expireBefore,
			ExpireAfter:  expireAfter,
			OperatorID:   input.OperatorID,
		}

		applied := false
		err = s.repo.Transaction(func(tx *gorm.DB) error {
			rows, err := s.userRepo.WithTx(tx).UpdateExpireAtCAS(input.UserID, expireBefore, expireAfter, now)
			if err != nil {
				return err
			}
			if rows == 0 {
				return nil
			}
			if err := s.repo.WithTx(tx).CreateRecord(candidate); err != nil {
				return err
			}
			applied = true
			return nil
		})
		if err != nil {
			return nil, err
		}
		if applied {
			record = candidate
			break
		}
		logger.Warnw("recharge_cas_conflict", "user_id", input.UserID, "attempt", attempt+1)
	}
	if record == nil {
		return nil, ErrConflict
	}

	logger.Infow("recharge_applied",
		"user_id", input.UserID,
		"record_id", record.ID,
		"change_days", record.ChangeDays,
		"reason", record.Reason,
		"expire_after", record.ExpireAfter,
	)
	s.notifyApplied(record)
	return record, nil
}

// Backfill 补录历史充值。业务时间可早于当前时刻，
// 插入后对整条链全量重放，所有后续记录的快照随之重算。
func (s *LedgerService) Backfill(input BackfillInput) (*models.RechargeRecord, error) {
	if input.UserID == 0 {
		return nil, ErrNotFound
	}
	if input.ChangeDays == 0 || input.ChangeDays > constants.MaxRechargeDays || input.ChangeDays < -constants.MaxRechargeDays {
		return nil, ErrInvalidInput
	}
	now := s.now()
	if input.OccurredAt <= 0 || input.OccurredAt > now.Unix() {
		return nil, ErrInvalidInput
	}
	if err := validateRechargeCommon(input.Reason, input.AmountMinor, input.Note); err != nil {
		return nil, err
	}

	record := &models.RechargeRecord{
		UserID:      input.UserID,
		ChangeDays:  input.ChangeDays,
		Reason:      input.Reason,
		AmountMinor: input.AmountMinor,
		Source:      constants.RechargeSourceBackfill,
		Note:        strings.TrimSpace(input.Note),
		OccurredAt:  input.OccurredAt,
		OperatorID:  input.OperatorID,
	}

	err := s.repo.Transaction(func(tx *gorm.DB) error {
		user, err := s.userRepo.WithTx(tx).GetByIDForUpdate(input.UserID)
		if err != nil {
			return err
		}
		if user == nil {
			return ErrNotFound
		}
		if err := s.repo.WithTx(tx).CreateRecord(record); err != nil {
			return err
		}
		return s.rebuildChainTx(tx, input.UserID, now)
	})
	if err != nil {
		return nil, err
	}

	logger.Infow("recharge_backfilled",
		"user_id", input.UserID,
		"record_id", record.ID,
		"change_days", record.ChangeDays,
		"occurred_at", record.OccurredAt,
	)
	s.notifyApplied(record)
	return record, nil
}

// Refund 退款冲销。原记录只打一次退款标记，
// 冲销通过插入一条镜像负数记录并全量重放完成，账本保持只增。
func (s *LedgerService) Refund(input RefundInput) (*models.RechargeRecord, error) {
	if input.RecordID == 0 {
		return nil, ErrNotFound
	}
	if input.AmountMinor < 0 || len(input.Note) > constants.MaxNoteLength {
		return nil, ErrInvalidInput
	}

	now := s.now()
	var original *models.RechargeRecord
	rollback := &models.RechargeRecord{}

	err := s.repo.Transaction(func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)

		record, err := txRepo.GetRecordByIDForUpdate(input.RecordID)
		if err != nil {
			return err
		}
		if record == nil {
			return ErrNotFound
		}
		if record.Source == constants.RechargeSourceRefundRollback {
			return ErrAlreadyProcessed
		}
		if record.RefundedAt != nil {
			return ErrAlreadyProcessed
		}
		if input.AmountMinor > record.AmountMinor {
			return ErrInvalidInput
		}

		if _, err := s.userRepo.WithTx(tx).GetByIDForUpdate(record.UserID); err != nil {
			return err
		}

		rows, err := txRepo.SetRefundMetadata(record.ID, now, input.OperatorID, input.AmountMinor, input.Note)
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrAlreadyProcessed
		}

		*rollback = models.RechargeRecord{
			UserID:      record.UserID,
			ChangeDays:  -record.ChangeDays,
			Reason:      record.Reason,
			AmountMinor: -input.AmountMinor,
			Source:      constants.RechargeSourceRefundRollback,
			Note:        strings.TrimSpace(input.Note),
			OccurredAt:  now.Unix(),
			OperatorID:  input.OperatorID,
		}
		if err := txRepo.CreateRecord(rollback); err != nil {
			return err
		}

		original = record
		return s.rebuildChainTx(tx, record.UserID, now)
	})
	if err != nil {
		return nil, err
	}

	logger.Infow("recharge_refunded",
		"user_id", original.UserID,
		"record_id", original.ID,
		"rollback_record_id", rollback.ID,
		"refund_amount", input.AmountMinor,
	)
	s.notifyRefunded(original)
	return rollback, nil
}

// RebuildUserChain 对指定会员全量重放账本，修复快照与到期时间。
// 日常流程不需要手工触发，留给数据修复场景。
func (s *LedgerService) RebuildUserChain(userID uint) error {
	if userID == 0 {
		return ErrNotFound
	}
	now := s.now()
	return s.repo.Transaction(func(tx *gorm.DB) error {
		user, err := s.userRepo.WithTx(tx).GetByIDForUpdate(userID)
		if err != nil {
			return err
		}
		if user == nil {
			return ErrNotFound
		}
		return s.rebuildChainTx(tx, userID, now)
	})
}

// ApplyAdjustmentTx 在既有事务内插入一条系统调整记录并全量重放。
// 供联动流程（邀新赠送、赠送撤销）复用，调用方负责事务边界。
func (s *LedgerService) ApplyAdjustmentTx(tx *gorm.DB, userID uint, changeDays int, reason, source, note string, operatorID uint) (*models.RechargeRecord, error) {
	if tx == nil || userID == 0 || changeDays == 0 {
		return nil, ErrInvalidInput
	}
	now := s.now()
	record := &models.RechargeRecord{
		UserID:     userID,
		ChangeDays: changeDays,
		Reason:     reason,
		Source:     source,
		Note:       strings.TrimSpace(note),
		OccurredAt: now.Unix(),
		OperatorID: operatorID,
	}
	if err := s.repo.WithTx(tx).CreateRecord(record); err != nil {
		return nil, err
	}
	if err := s.rebuildChainTx(tx, userID, now); err != nil {
		return nil, err
	}
	return record, nil
}

// GetRecord 按ID查询充值记录
func (s *LedgerService) GetRecord(id uint) (*models.RechargeRecord, error) {
	record, err := s.repo.GetRecordByID(id)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, ErrNotFound
	}
	return record, nil
}

// ListRecords 查询充值流水
func (s *LedgerService) ListRecords(filter repository.RechargeListFilter) ([]models.RechargeRecord, int64, error) {
	return s.repo.ListRecords(filter)
}

// ListUserRecords 查询会员的完整账本链
func (s *LedgerService) ListUserRecords(userID uint) ([]models.RechargeRecord, error) {
	if userID == 0 {
		return nil, ErrNotFound
	}
	return s.repo.ListRecordsByUser(userID)
}

// rebuildChainTx 按业务时间与ID升序重放会员的全部记录，
// 重算每条记录的前后快照并回写最终到期时间。
func (s *LedgerService) rebuildChainTx(tx *gorm.DB, userID uint, now time.Time) error {
	txRepo := s.repo.WithTx(tx)

	records, err := txRepo.ListRecordsByUser(userID)
	if err != nil {
		return err
	}

	var running int64
	for i := range records {
		record := &records[i]
		expireBefore := running
		expireAfter := chainAdvance(running, record.OccurredAt, record.ChangeDays)
		if record.ExpireBefore != expireBefore || record.ExpireAfter != expireAfter {
			if err := txRepo.UpdateSnapshots(record.ID, expireBefore, expireAfter); err != nil {
				return err
			}
		}
		running = expireAfter
	}

	return s.userRepo.WithTx(tx).UpdateExpireAt(userID, running, now)
}

// chainAdvance 单条记录的链推进公式：
// 已过期的链从业务时间重新起算，未过期的链在原到期时间上顺延。
func chainAdvance(running, occurredAt int64, changeDays int) int64 {
	base := running
	if occurredAt > base {
		base = occurredAt
	}
	return base + int64(changeDays)*constants.SecondsPerDay
}

func validateRechargeCommon(reason string, amount models.Amount, note string) error {
	if !constants.IsValidRechargeReason(reason) {
		return ErrInvalidInput
	}
	if amount < 0 {
		return ErrInvalidInput
	}
	if len(note) > constants.MaxNoteLength {
		return ErrInvalidInput
	}
	return nil
}

func (s *LedgerService) notifyApplied(record *models.RechargeRecord) {
	if s.observer == nil || record == nil {
		return
	}
	s.observer.HandleRechargeApplied(record)
}

func (s *LedgerService) notifyRefunded(record *models.RechargeRecord) {
	if s.observer == nil || record == nil {
		return
	}
	s.observer.HandleRechargeRefunded(record)
}
