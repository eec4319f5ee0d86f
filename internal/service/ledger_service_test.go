package service

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/member-next/internal/constants"
	"github.com/member-next/internal/models"
	"github.com/member-next/internal/repository"
)

func setupLedgerServiceTest(t *testing.T) (*LedgerService, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:ledger_service_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(&models.User{}, &models.RechargeRecord{}); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}

	svc := NewLedgerService(repository.NewLedgerRepository(db), repository.NewUserRepository(db))
	return svc, db
}

func createLedgerTestUser(t *testing.T, db *gorm.DB, username string) models.User {
	t.Helper()

	row := models.User{
		PublicID: uuid.NewString(),
		Username: username,
	}
	if err := db.Create(&row).Error; err != nil {
		t.Fatalf("create user failed: %v", err)
	}
	return row
}

func loadUserExpire(t *testing.T, db *gorm.DB, userID uint) int64 {
	t.Helper()

	var user models.User
	if err := db.First(&user, userID).Error; err != nil {
		t.Fatalf("load user failed: %v", err)
	}
	return user.ExpireAt
}

func TestRechargeExtendsChain(t *testing.T) {
	svc, db := setupLedgerServiceTest(t)
	user := createLedgerTestUser(t, db, "recharge-chain")

	base := time.Unix(2000000, 0)
	svc.now = func() time.Time { return base }

	first, err := svc.Recharge(RechargeInput{
		UserID:      user.ID,
		ChangeDays:  30,
		Reason:      constants.RechargeReasonPaymentChannel,
		AmountMinor: 9900,
		OperatorID:  1,
	})
	if err != nil {
		t.Fatalf("first recharge failed: %v", err)
	}
	if first.ExpireBefore != 0 {
		t.Fatalf("expected expire_before 0, got %d", first.ExpireBefore)
	}
	wantFirst := base.Unix() + 30*int64(constants.SecondsPerDay)
	if first.ExpireAfter != wantFirst {
		t.Fatalf("expected expire_after %d, got %d", wantFirst, first.ExpireAfter)
	}

	// 会员未到期，第二笔在原到期时间上顺延
	svc.now = func() time.Time { return base.Add(time.Hour) }
	second, err := svc.Recharge(RechargeInput{
		UserID:      user.ID,
		ChangeDays:  10,
		Reason:      constants.RechargeReasonPlatformOrder,
		AmountMinor: 4900,
		OperatorID:  1,
	})
	if err != nil {
		t.Fatalf("second recharge failed: %v", err)
	}
	if second.ExpireBefore != wantFirst {
		t.Fatalf("expected expire_before %d, got %d", wantFirst, second.ExpireBefore)
	}
	wantSecond := wantFirst + 10*int64(constants.SecondsPerDay)
	if second.ExpireAfter != wantSecond {
		t.Fatalf("expected expire_after %d, got %d", wantSecond, second.ExpireAfter)
	}
	if got := loadUserExpire(t, db, user.ID); got != wantSecond {
		t.Fatalf("expected user expire_at %d, got %d", wantSecond, got)
	}
}

func TestRechargeRestartsExpiredChain(t *testing.T) {
	svc, db := setupLedgerServiceTest(t)
	user := createLedgerTestUser(t, db, "recharge-expired")

	// 到期时间在过去，新充值从当前时刻重新起算
	past := int64(1000)
	if err := db.Model(&models.User{}).Where("id = ?", user.ID).Update("expire_at", past).Error; err != nil {
		t.Fatalf("seed expire_at failed: %v", err)
	}

	base := time.Unix(5000000, 0)
	svc.now = func() time.Time { return base }

	record, err := svc.Recharge(RechargeInput{
		UserID:      user.ID,
		ChangeDays:  7,
		Reason:      constants.RechargeReasonPaymentChannel,
		AmountMinor: 1900,
	})
	if err != nil {
		t.Fatalf("recharge failed: %v", err)
	}
	want := base.Unix() + 7*int64(constants.SecondsPerDay)
	if record.ExpireAfter != want {
		t.Fatalf("expected expire_after %d, got %d", want, record.ExpireAfter)
	}
}

func TestRechargeValidation(t *testing.T) {
	svc, db := setupLedgerServiceTest(t)
	user := createLedgerTestUser(t, db, "recharge-validate")

	cases := []struct {
		name  string
		input RechargeInput
	}{
		{"zero days", RechargeInput{UserID: user.ID, ChangeDays: 0, Reason: constants.RechargeReasonPaymentChannel}},
		{"negative days", RechargeInput{UserID: user.ID, ChangeDays: -5, Reason: constants.RechargeReasonPaymentChannel}},
		{"days over cap", RechargeInput{UserID: user.ID, ChangeDays: constants.MaxRechargeDays + 1, Reason: constants.RechargeReasonPaymentChannel}},
		{"unknown reason", RechargeInput{UserID: user.ID, ChangeDays: 1, Reason: "bribe"}},
		{"negative amount", RechargeInput{UserID: user.ID, ChangeDays: 1, Reason: constants.RechargeReasonPaymentChannel, AmountMinor: -1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Recharge(tc.input); !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
		})
	}

	if _, err := svc.Recharge(RechargeInput{UserID: 9999, ChangeDays: 1, Reason: constants.RechargeReasonPaymentChannel}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing user, got %v", err)
	}
}

func TestBackfillReflowsChain(t *testing.T) {
	svc, db := setupLedgerServiceTest(t)
	user := createLedgerTestUser(t, db, "backfill-reflow")

	now := time.Unix(6000000, 0)
	svc.now = func() time.Time { return now }

	// 先补录较晚发生的 A，再补录较早发生的 B，链按发生时间重放
	a, err := svc.Backfill(BackfillInput{
		UserID:      user.ID,
		ChangeDays:  30,
		Reason:      constants.RechargeReasonPlatformOrder,
		AmountMinor: 29900,
		OccurredAt:  1000000,
	})
	if err != nil {
		t.Fatalf("backfill A failed: %v", err)
	}
	if a.ExpireAfter != 1000000+30*int64(constants.SecondsPerDay) {
		t.Fatalf("unexpected A expire_after before reflow: %d", a.ExpireAfter)
	}

	b, err := svc.Backfill(BackfillInput{
		UserID:      user.ID,
		ChangeDays:  10,
		Reason:      constants.RechargeReasonPaymentChannel,
		AmountMinor: 9900,
		OccurredAt:  500000,
	})
	if err != nil {
		t.Fatalf("backfill B failed: %v", err)
	}

	var records []models.RechargeRecord
	if err := db.Where("user_id = ?", user.ID).Order("occurred_at asc, id asc").Find(&records).Error; err != nil {
		t.Fatalf("load records failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}

	// B: max(0, 500000) + 10*86400 = 1364000
	if records[0].ID != b.ID || records[0].ExpireBefore != 0 || records[0].ExpireAfter != 1364000 {
		t.Fatalf("unexpected B snapshots: %+v", records[0])
	}
	// A: max(1364000, 1000000) + 30*86400 = 3956000
	if records[1].ID != a.ID || records[1].ExpireBefore != 1364000 || records[1].ExpireAfter != 3956000 {
		t.Fatalf("unexpected A snapshots after reflow: %+v", records[1])
	}
	if got := loadUserExpire(t, db, user.ID); got != 3956000 {
		t.Fatalf("expected user expire_at 3956000, got %d", got)
	}
}

func TestBackfillRejectsFutureOccurredAt(t *testing.T) {
	svc, db := setupLedgerServiceTest(t)
	user := createLedgerTestUser(t, db, "backfill-future")

	now := time.Unix(6000000, 0)
	svc.now = func() time.Time { return now }

	_, err := svc.Backfill(BackfillInput{
		UserID:     user.ID,
		ChangeDays: 1,
		Reason:     constants.RechargeReasonManualFix,
		OccurredAt: now.Unix() + 60,
	})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestRefundReversesRecharge(t *testing.T) {
	svc, db := setupLedgerServiceTest(t)
	user := createLedgerTestUser(t, db, "refund-reverse")

	base := time.Unix(7000000, 0)
	svc.now = func() time.Time { return base }

	record, err := svc.Recharge(RechargeInput{
		UserID:      user.ID,
		ChangeDays:  30,
		Reason:      constants.RechargeReasonPaymentChannel,
		AmountMinor: 9900,
	})
	if err != nil {
		t.Fatalf("recharge failed: %v", err)
	}

	svc.now = func() time.Time { return base.Add(time.Hour) }
	rollback, err := svc.Refund(RefundInput{
		RecordID:    record.ID,
		AmountMinor: 9900,
		Note:        "customer dispute",
		OperatorID:  2,
	})
	if err != nil {
		t.Fatalf("refund failed: %v", err)
	}
	if rollback.ChangeDays != -30 || rollback.Source != constants.RechargeSourceRefundRollback {
		t.Fatalf("unexpected rollback record: %+v", rollback)
	}

	// 充值时刻起算 30 天，冲销减回 30 天，到期时间落回充值时刻
	if got := loadUserExpire(t, db, user.ID); got != base.Unix() {
		t.Fatalf("expected expire_at restored to %d, got %d", base.Unix(), got)
	}

	var refreshed models.RechargeRecord
	if err := db.First(&refreshed, record.ID).Error; err != nil {
		t.Fatalf("load original record failed: %v", err)
	}
	if refreshed.RefundedAt == nil || refreshed.RefundAmountMinor == nil || *refreshed.RefundAmountMinor != 9900 {
		t.Fatalf("expected refund metadata stamped, got %+v", refreshed)
	}

	// 重复退款与退款冲销记录本身都拒绝
	if _, err := svc.Refund(RefundInput{RecordID: record.ID, AmountMinor: 9900}); !errors.Is(err, ErrAlreadyProcessed) {
		t.Fatalf("expected ErrAlreadyProcessed on second refund, got %v", err)
	}
	if _, err := svc.Refund(RefundInput{RecordID: rollback.ID, AmountMinor: 9900}); !errors.Is(err, ErrAlreadyProcessed) {
		t.Fatalf("expected ErrAlreadyProcessed on rollback refund, got %v", err)
	}
}

func TestRefundRejectsExcessAmount(t *testing.T) {
	svc, db := setupLedgerServiceTest(t)
	user := createLedgerTestUser(t, db, "refund-excess")

	record, err := svc.Recharge(RechargeInput{
		UserID:      user.ID,
		ChangeDays:  30,
		Reason:      constants.RechargeReasonPaymentChannel,
		AmountMinor: 9900,
	})
	if err != nil {
		t.Fatalf("recharge failed: %v", err)
	}

	if _, err := svc.Refund(RefundInput{RecordID: record.ID, AmountMinor: 9901}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for refund over original amount, got %v", err)
	}

	// 原记录未被打退款标记，等额退款仍然可行
	if _, err := svc.Refund(RefundInput{RecordID: record.ID, AmountMinor: 9900}); err != nil {
		t.Fatalf("full refund after rejected excess failed: %v", err)
	}
}

// conflictingUserRepo 在读取会员后、CAS 写入前插入一次并发到期时间变更。
// conflicts 为负表示每次读取都制造冲突。
type conflictingUserRepo struct {
	repository.UserRepository
	db        *gorm.DB
	conflicts int
}

func (r *conflictingUserRepo) GetByID(id uint) (*models.User, error) {
	user, err := r.UserRepository.GetByID(id)
	if err != nil || user == nil {
		return user, err
	}
	if r.conflicts != 0 {
		if r.conflicts > 0 {
			r.conflicts--
		}
		if err := r.db.Model(&models.User{}).Where("id = ?", id).
			Update("expire_at", user.ExpireAt+1).Error; err != nil {
			return nil, err
		}
	}
	return user, err
}

func TestRechargeRetriesOnExpireConflict(t *testing.T) {
	dsn := fmt.Sprintf("file:ledger_cas_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(&models.User{}, &models.RechargeRecord{}); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	user := createLedgerTestUser(t, db, "cas-retry")

	userRepo := &conflictingUserRepo{UserRepository: repository.NewUserRepository(db), db: db, conflicts: 1}
	svc := NewLedgerService(repository.NewLedgerRepository(db), userRepo)

	base := time.Unix(8500000, 0)
	svc.now = func() time.Time { return base }

	record, err := svc.Recharge(RechargeInput{
		UserID:      user.ID,
		ChangeDays:  30,
		Reason:      constants.RechargeReasonPaymentChannel,
		AmountMinor: 9900,
	})
	if err != nil {
		t.Fatalf("recharge should succeed after retry: %v", err)
	}

	// 重试轮次以并发修改后的值为基线
	if record.ExpireBefore != 1 {
		t.Fatalf("expected retry to re-read expire_at, got expire_before %d", record.ExpireBefore)
	}
	var count int64
	if err := db.Model(&models.RechargeRecord{}).Where("user_id = ?", user.ID).Count(&count).Error; err != nil {
		t.Fatalf("count records failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly 1 record after retry, got %d", count)
	}
	if got := loadUserExpire(t, db, user.ID); got != record.ExpireAfter {
		t.Fatalf("expected user expire_at %d, got %d", record.ExpireAfter, got)
	}
}

func TestRechargeConflictExhaustionFails(t *testing.T) {
	dsn := fmt.Sprintf("file:ledger_cas_fail_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(&models.User{}, &models.RechargeRecord{}); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	user := createLedgerTestUser(t, db, "cas-exhaust")

	userRepo := &conflictingUserRepo{UserRepository: repository.NewUserRepository(db), db: db, conflicts: -1}
	svc := NewLedgerService(repository.NewLedgerRepository(db), userRepo)

	if _, err := svc.Recharge(RechargeInput{
		UserID:      user.ID,
		ChangeDays:  30,
		Reason:      constants.RechargeReasonPaymentChannel,
		AmountMinor: 9900,
	}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict after retry exhaustion, got %v", err)
	}

	// 冲突轮次不留下账本记录
	var count int64
	if err := db.Model(&models.RechargeRecord{}).Where("user_id = ?", user.ID).Count(&count).Error; err != nil {
		t.Fatalf("count records failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no records after exhaustion, got %d", count)
	}
}

func TestRebuildUserChainRepairsSnapshots(t *testing.T) {
	svc, db := setupLedgerServiceTest(t)
	user := createLedgerTestUser(t, db, "rebuild-repair")

	base := time.Unix(8000000, 0)
	svc.now = func() time.Time { return base }

	record, err := svc.Recharge(RechargeInput{
		UserID:      user.ID,
		ChangeDays:  10,
		Reason:      constants.RechargeReasonPaymentChannel,
		AmountMinor: 1000,
	})
	if err != nil {
		t.Fatalf("recharge failed: %v", err)
	}

	// 人为破坏快照与到期时间
	if err := db.Model(&models.RechargeRecord{}).Where("id = ?", record.ID).
		Updates(map[string]interface{}{"expire_before": 42, "expire_after": 43}).Error; err != nil {
		t.Fatalf("corrupt snapshots failed: %v", err)
	}
	if err := db.Model(&models.User{}).Where("id = ?", user.ID).Update("expire_at", 44).Error; err != nil {
		t.Fatalf("corrupt expire_at failed: %v", err)
	}

	if err := svc.RebuildUserChain(user.ID); err != nil {
		t.Fatalf("rebuild failed: %v", err)
	}

	var repaired models.RechargeRecord
	if err := db.First(&repaired, record.ID).Error; err != nil {
		t.Fatalf("load record failed: %v", err)
	}
	want := base.Unix() + 10*int64(constants.SecondsPerDay)
	if repaired.ExpireBefore != 0 || repaired.ExpireAfter != want {
		t.Fatalf("expected repaired snapshots 0/%d, got %d/%d", want, repaired.ExpireBefore, repaired.ExpireAfter)
	}
	if got := loadUserExpire(t, db, user.ID); got != want {
		t.Fatalf("expected repaired expire_at %d, got %d", want, got)
	}
}

type recordingObserver struct {
	applied  []uint
	refunded []uint
}

func (o *recordingObserver) HandleRechargeApplied(record *models.RechargeRecord) {
	o.applied = append(o.applied, record.ID)
}

func (o *recordingObserver) HandleRechargeRefunded(record *models.RechargeRecord) {
	o.refunded = append(o.refunded, record.ID)
}

func TestLedgerObserverNotified(t *testing.T) {
	svc, db := setupLedgerServiceTest(t)
	user := createLedgerTestUser(t, db, "observer-notify")

	observer := &recordingObserver{}
	svc.SetObserver(observer)

	record, err := svc.Recharge(RechargeInput{
		UserID:      user.ID,
		ChangeDays:  5,
		Reason:      constants.RechargeReasonPaymentChannel,
		AmountMinor: 500,
	})
	if err != nil {
		t.Fatalf("recharge failed: %v", err)
	}
	if len(observer.applied) != 1 || observer.applied[0] != record.ID {
		t.Fatalf("expected applied callback for record %d, got %v", record.ID, observer.applied)
	}

	if _, err := svc.Refund(RefundInput{RecordID: record.ID}); err != nil {
		t.Fatalf("refund failed: %v", err)
	}
	if len(observer.refunded) != 1 || observer.refunded[0] != record.ID {
		t.Fatalf("expected refunded callback for record %d, got %v", record.ID, observer.refunded)
	}
}
