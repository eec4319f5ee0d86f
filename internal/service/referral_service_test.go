package service

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/member-next/internal/config"
	"github.com/member-next/internal/constants"
	"github.com/member-next/internal/models"
	"github.com/member-next/internal/repository"
)

func defaultReferralTestConfig() config.ReferralConfig {
	return config.ReferralConfig{
		Enabled:          true,
		RewardRateBps:    1000,
		UnlockDelayHours: 168,
		InviteeBonusDays: 3,
		AbuseCheck:       true,
	}
}

func setupReferralServiceTest(t *testing.T, cfg config.ReferralConfig) (*ReferralService, *LedgerService, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:referral_service_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(
		&models.User{},
		&models.RechargeRecord{},
		&models.ReferralBinding{},
		&models.ReferralReward{},
		&models.ReferralBonusGrant{},
		&models.ReferralWithdrawal{},
	); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}

	userRepo := repository.NewUserRepository(db)
	ledgerSvc := NewLedgerService(repository.NewLedgerRepository(db), userRepo)
	referralSvc := NewReferralService(repository.NewReferralRepository(db), userRepo, ledgerSvc, nil, cfg)
	ledgerSvc.SetObserver(referralSvc)
	return referralSvc, ledgerSvc, db
}

func createReferralTestUser(t *testing.T, db *gorm.DB, username, email string) models.User {
	t.Helper()

	row := models.User{
		PublicID: uuid.NewString(),
		Username: username,
		Email:    email,
	}
	if err := db.Create(&row).Error; err != nil {
		t.Fatalf("create user failed: %v", err)
	}
	return row
}

func TestBindLifecycle(t *testing.T) {
	svc, _, db := setupReferralServiceTest(t, defaultReferralTestConfig())

	inviter := createReferralTestUser(t, db, "inviter", "inviter@example.com")
	invitee := createReferralTestUser(t, db, "invitee", "invitee@example.com")
	other := createReferralTestUser(t, db, "other", "other@example.com")

	result, err := svc.Bind(BindInput{InviteeID: invitee.ID, InviterID: inviter.ID, OperatorID: 1})
	if err != nil {
		t.Fatalf("bind failed: %v", err)
	}
	if result.AlreadyBound {
		t.Fatal("first bind should not report already bound")
	}

	// 同一邀请人重复绑定幂等
	repeat, err := svc.Bind(BindInput{InviteeID: invitee.ID, InviterID: inviter.ID, OperatorID: 1})
	if err != nil {
		t.Fatalf("repeat bind failed: %v", err)
	}
	if !repeat.AlreadyBound || repeat.Binding.ID != result.Binding.ID {
		t.Fatalf("expected idempotent rebind, got %+v", repeat)
	}

	if _, err := svc.Bind(BindInput{InviteeID: invitee.ID, InviterID: other.ID}); !errors.Is(err, ErrInviteeAlreadyBound) {
		t.Fatalf("expected ErrInviteeAlreadyBound, got %v", err)
	}
	if _, err := svc.Bind(BindInput{InviteeID: inviter.ID, InviterID: inviter.ID}); !errors.Is(err, ErrSelfInvite) {
		t.Fatalf("expected ErrSelfInvite, got %v", err)
	}
	if _, err := svc.Bind(BindInput{InviteeID: 9999, InviterID: inviter.ID}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestBindAbuseCheck(t *testing.T) {
	svc, _, db := setupReferralServiceTest(t, defaultReferralTestConfig())

	inviter := createReferralTestUser(t, db, "abuse-inviter", "same@example.com")
	invitee := createReferralTestUser(t, db, "abuse-invitee", "same@example.com")

	if _, err := svc.Bind(BindInput{InviteeID: invitee.ID, InviterID: inviter.ID}); !errors.Is(err, ErrRiskRejected) {
		t.Fatalf("expected ErrRiskRejected on identical email, got %v", err)
	}

	// 关闭风控后允许绑定
	cfg := defaultReferralTestConfig()
	cfg.AbuseCheck = false
	relaxed, _, db2 := setupReferralServiceTest(t, cfg)
	inviter2 := createReferralTestUser(t, db2, "relaxed-inviter", "dup@example.com")
	invitee2 := createReferralTestUser(t, db2, "relaxed-invitee", "dup@example.com")
	if _, err := relaxed.Bind(BindInput{InviteeID: invitee2.ID, InviterID: inviter2.ID}); err != nil {
		t.Fatalf("bind with abuse check disabled failed: %v", err)
	}
}

func TestRechargeCreatesRewardAndBonus(t *testing.T) {
	svc, ledgerSvc, db := setupReferralServiceTest(t, defaultReferralTestConfig())

	inviter := createReferralTestUser(t, db, "reward-inviter", "ri@example.com")
	invitee := createReferralTestUser(t, db, "reward-invitee", "re@example.com")
	if _, err := svc.Bind(BindInput{InviteeID: invitee.ID, InviterID: inviter.ID}); err != nil {
		t.Fatalf("bind failed: %v", err)
	}

	base := time.Unix(9000000, 0)
	ledgerSvc.now = func() time.Time { return base }
	svc.now = func() time.Time { return base }

	record, err := ledgerSvc.Recharge(RechargeInput{
		UserID:      invitee.ID,
		ChangeDays:  30,
		Reason:      constants.RechargeReasonPaymentChannel,
		AmountMinor: 999,
		OperatorID:  1,
	})
	if err != nil {
		t.Fatalf("recharge failed: %v", err)
	}

	var reward models.ReferralReward
	if err := db.Where("recharge_record_id = ?", record.ID).First(&reward).Error; err != nil {
		t.Fatalf("load reward failed: %v", err)
	}
	// 999 * 1000 / 10000 向下取整
	if reward.RewardMinor != 99 || reward.Status != constants.RewardStatusPending {
		t.Fatalf("unexpected reward: %+v", reward)
	}
	if reward.InviterID != inviter.ID || reward.RateBps != 1000 {
		t.Fatalf("unexpected reward attribution: %+v", reward)
	}
	wantUnlock := base.Add(168 * time.Hour)
	if !reward.UnlockAt.Equal(wantUnlock) {
		t.Fatalf("expected unlock_at %v, got %v", wantUnlock, reward.UnlockAt)
	}

	var grant models.ReferralBonusGrant
	if err := db.Where("invitee_id = ?", invitee.ID).First(&grant).Error; err != nil {
		t.Fatalf("load grant failed: %v", err)
	}
	if grant.Status != constants.BonusGrantStatusGranted || grant.BonusDays != 3 || grant.BonusRecordID == nil {
		t.Fatalf("unexpected grant: %+v", grant)
	}

	var bonusRecord models.RechargeRecord
	if err := db.First(&bonusRecord, *grant.BonusRecordID).Error; err != nil {
		t.Fatalf("load bonus record failed: %v", err)
	}
	if bonusRecord.Source != constants.RechargeSourceSystemBonus || bonusRecord.ChangeDays != 3 {
		t.Fatalf("unexpected bonus record: %+v", bonusRecord)
	}
	if bonusRecord.Reason != constants.RechargeReasonReferralReward {
		t.Fatalf("expected bonus reason %s, got %s", constants.RechargeReasonReferralReward, bonusRecord.Reason)
	}

	// 赠送充值不再触发返利，链到此为止
	var rewardCount int64
	if err := db.Model(&models.ReferralReward{}).Count(&rewardCount).Error; err != nil {
		t.Fatalf("count rewards failed: %v", err)
	}
	if rewardCount != 1 {
		t.Fatalf("expected exactly 1 reward, got %d", rewardCount)
	}

	// 充值 30 天加赠送 3 天
	want := base.Unix() + 33*int64(constants.SecondsPerDay)
	if got := loadUserExpire(t, db, invitee.ID); got != want {
		t.Fatalf("expected invitee expire_at %d, got %d", want, got)
	}

	// 第二笔合格充值产生新奖励但不再赠送
	second, err := ledgerSvc.Recharge(RechargeInput{
		UserID:      invitee.ID,
		ChangeDays:  10,
		Reason:      constants.RechargeReasonPlatformOrder,
		AmountMinor: 5000,
		OperatorID:  1,
	})
	if err != nil {
		t.Fatalf("second recharge failed: %v", err)
	}
	if err := db.Model(&models.ReferralReward{}).Count(&rewardCount).Error; err != nil {
		t.Fatalf("count rewards failed: %v", err)
	}
	if rewardCount != 2 {
		t.Fatalf("expected 2 rewards after second recharge, got %d", rewardCount)
	}
	var grantCount int64
	if err := db.Model(&models.ReferralBonusGrant{}).Count(&grantCount).Error; err != nil {
		t.Fatalf("count grants failed: %v", err)
	}
	if grantCount != 1 {
		t.Fatalf("expected single lifetime grant, got %d", grantCount)
	}

	// 同一笔充值重复回调不产生重复奖励
	svc.HandleRechargeApplied(second)
	if err := db.Model(&models.ReferralReward{}).Count(&rewardCount).Error; err != nil {
		t.Fatalf("count rewards failed: %v", err)
	}
	if rewardCount != 2 {
		t.Fatalf("expected duplicate callback to be ignored, got %d rewards", rewardCount)
	}
}

func TestPendingGrantReissuedByNextRecharge(t *testing.T) {
	svc, ledgerSvc, db := setupReferralServiceTest(t, defaultReferralTestConfig())

	inviter := createReferralTestUser(t, db, "stuck-inviter", "si@example.com")
	invitee := createReferralTestUser(t, db, "stuck-invitee", "se@example.com")
	if _, err := svc.Bind(BindInput{InviteeID: invitee.ID, InviterID: inviter.ID}); err != nil {
		t.Fatalf("bind failed: %v", err)
	}

	// 上次发放中断留下的 pending 占位
	stuck := models.ReferralBonusGrant{
		InviteeID:        invitee.ID,
		RechargeRecordID: 424242,
		BonusDays:        3,
		Status:           constants.BonusGrantStatusPending,
	}
	if err := db.Create(&stuck).Error; err != nil {
		t.Fatalf("seed pending grant failed: %v", err)
	}

	if _, err := ledgerSvc.Recharge(RechargeInput{
		UserID:      invitee.ID,
		ChangeDays:  30,
		Reason:      constants.RechargeReasonPaymentChannel,
		AmountMinor: 9900,
	}); err != nil {
		t.Fatalf("recharge failed: %v", err)
	}

	var grants []models.ReferralBonusGrant
	if err := db.Where("invitee_id = ?", invitee.ID).Find(&grants).Error; err != nil {
		t.Fatalf("load grants failed: %v", err)
	}
	if len(grants) != 1 {
		t.Fatalf("expected single lifetime grant, got %d", len(grants))
	}
	if grants[0].ID != stuck.ID || grants[0].Status != constants.BonusGrantStatusGranted || grants[0].BonusRecordID == nil {
		t.Fatalf("expected pending grant reissued, got %+v", grants[0])
	}
	// 占位改挂到实际完成发放的充值上
	if grants[0].RechargeRecordID == 424242 {
		t.Fatalf("expected grant relinked to the funding recharge, got %+v", grants[0])
	}

	var bonusRecord models.RechargeRecord
	if err := db.First(&bonusRecord, *grants[0].BonusRecordID).Error; err != nil {
		t.Fatalf("load bonus record failed: %v", err)
	}
	if bonusRecord.ChangeDays != 3 || bonusRecord.Source != constants.RechargeSourceSystemBonus {
		t.Fatalf("unexpected reissued bonus record: %+v", bonusRecord)
	}
}

func TestIneligibleRechargeProducesNothing(t *testing.T) {
	svc, ledgerSvc, db := setupReferralServiceTest(t, defaultReferralTestConfig())

	inviter := createReferralTestUser(t, db, "noop-inviter", "ni@example.com")
	invitee := createReferralTestUser(t, db, "noop-invitee", "ne@example.com")
	if _, err := svc.Bind(BindInput{InviteeID: invitee.ID, InviterID: inviter.ID}); err != nil {
		t.Fatalf("bind failed: %v", err)
	}

	// 非付费原因、零金额都不触发
	if _, err := ledgerSvc.Recharge(RechargeInput{
		UserID:     invitee.ID,
		ChangeDays: 5,
		Reason:     constants.RechargeReasonCampaignGift,
	}); err != nil {
		t.Fatalf("gift recharge failed: %v", err)
	}
	if _, err := ledgerSvc.Recharge(RechargeInput{
		UserID:     invitee.ID,
		ChangeDays: 5,
		Reason:     constants.RechargeReasonPaymentChannel,
	}); err != nil {
		t.Fatalf("zero amount recharge failed: %v", err)
	}

	var rewardCount, grantCount int64
	db.Model(&models.ReferralReward{}).Count(&rewardCount)
	db.Model(&models.ReferralBonusGrant{}).Count(&grantCount)
	if rewardCount != 0 || grantCount != 0 {
		t.Fatalf("expected no side effects, got %d rewards %d grants", rewardCount, grantCount)
	}
}

func TestRefundCancelsRewardAndRevokesBonus(t *testing.T) {
	svc, ledgerSvc, db := setupReferralServiceTest(t, defaultReferralTestConfig())

	inviter := createReferralTestUser(t, db, "refund-inviter", "fi@example.com")
	invitee := createReferralTestUser(t, db, "refund-invitee", "fe@example.com")
	if _, err := svc.Bind(BindInput{InviteeID: invitee.ID, InviterID: inviter.ID}); err != nil {
		t.Fatalf("bind failed: %v", err)
	}

	base := time.Unix(9500000, 0)
	ledgerSvc.now = func() time.Time { return base }
	svc.now = func() time.Time { return base }

	record, err := ledgerSvc.Recharge(RechargeInput{
		UserID:      invitee.ID,
		ChangeDays:  30,
		Reason:      constants.RechargeReasonPaymentChannel,
		AmountMinor: 10000,
	})
	if err != nil {
		t.Fatalf("recharge failed: %v", err)
	}

	ledgerSvc.now = func() time.Time { return base.Add(time.Hour) }
	svc.now = func() time.Time { return base.Add(time.Hour) }
	if _, err := ledgerSvc.Refund(RefundInput{RecordID: record.ID, AmountMinor: 10000, Note: "chargeback"}); err != nil {
		t.Fatalf("refund failed: %v", err)
	}

	var reward models.ReferralReward
	if err := db.Where("recharge_record_id = ?", record.ID).First(&reward).Error; err != nil {
		t.Fatalf("load reward failed: %v", err)
	}
	if reward.Status != constants.RewardStatusCanceled || reward.CanceledAt == nil {
		t.Fatalf("expected canceled reward, got %+v", reward)
	}

	var grant models.ReferralBonusGrant
	if err := db.Where("invitee_id = ?", invitee.ID).First(&grant).Error; err != nil {
		t.Fatalf("load grant failed: %v", err)
	}
	if grant.Status != constants.BonusGrantStatusRevoked || grant.RevokeRecordID == nil {
		t.Fatalf("expected revoked grant, got %+v", grant)
	}

	var revokeRecord models.RechargeRecord
	if err := db.First(&revokeRecord, *grant.RevokeRecordID).Error; err != nil {
		t.Fatalf("load revoke record failed: %v", err)
	}
	if revokeRecord.ChangeDays != -3 || revokeRecord.Source != constants.RechargeSourceRefundRollback {
		t.Fatalf("unexpected revoke record: %+v", revokeRecord)
	}

	// 退款回调幂等：重复触发不报错也不产生新记录
	var before int64
	db.Model(&models.RechargeRecord{}).Count(&before)
	svc.HandleRechargeRefunded(record)
	var after int64
	db.Model(&models.RechargeRecord{}).Count(&after)
	if before != after {
		t.Fatalf("expected idempotent refund callback, records %d -> %d", before, after)
	}
}

func TestUnlockAndWithdraw(t *testing.T) {
	svc, ledgerSvc, db := setupReferralServiceTest(t, defaultReferralTestConfig())

	inviter := createReferralTestUser(t, db, "wd-inviter", "wi@example.com")
	invitee := createReferralTestUser(t, db, "wd-invitee", "we@example.com")
	if _, err := svc.Bind(BindInput{InviteeID: invitee.ID, InviterID: inviter.ID}); err != nil {
		t.Fatalf("bind failed: %v", err)
	}

	base := time.Unix(9800000, 0)
	ledgerSvc.now = func() time.Time { return base }
	svc.now = func() time.Time { return base }

	for _, amount := range []models.Amount{10000, 5000} {
		if _, err := ledgerSvc.Recharge(RechargeInput{
			UserID:      invitee.ID,
			ChangeDays:  30,
			Reason:      constants.RechargeReasonPaymentChannel,
			AmountMinor: amount,
		}); err != nil {
			t.Fatalf("recharge failed: %v", err)
		}
	}

	// 解锁时间未到，提现无可用奖励
	if _, err := svc.Withdraw(WithdrawInput{InviterID: inviter.ID, OperatorID: 1}); !errors.Is(err, ErrNothingToWithdraw) {
		t.Fatalf("expected ErrNothingToWithdraw before unlock, got %v", err)
	}

	svc.now = func() time.Time { return base.Add(169 * time.Hour) }
	unlocked, err := svc.UnlockPendingRewards()
	if err != nil {
		t.Fatalf("unlock failed: %v", err)
	}
	if unlocked != 2 {
		t.Fatalf("expected 2 rewards unlocked, got %d", unlocked)
	}

	withdrawal, err := svc.Withdraw(WithdrawInput{InviterID: inviter.ID, Note: "monthly payout", OperatorID: 1})
	if err != nil {
		t.Fatalf("withdraw failed: %v", err)
	}
	// 1000 + 500
	if withdrawal.AmountMinor != 1500 {
		t.Fatalf("expected withdrawal amount 1500, got %d", withdrawal.AmountMinor)
	}

	var rewards []models.ReferralReward
	if err := db.Where("inviter_id = ?", inviter.ID).Find(&rewards).Error; err != nil {
		t.Fatalf("load rewards failed: %v", err)
	}
	for _, reward := range rewards {
		if reward.Status != constants.RewardStatusWithdrawn || reward.WithdrawalID == nil || *reward.WithdrawalID != withdrawal.ID {
			t.Fatalf("expected withdrawn reward bound to batch %d, got %+v", withdrawal.ID, reward)
		}
	}

	// 全部提完后再次提现报无可用
	if _, err := svc.Withdraw(WithdrawInput{InviterID: inviter.ID}); !errors.Is(err, ErrNothingToWithdraw) {
		t.Fatalf("expected ErrNothingToWithdraw after payout, got %v", err)
	}

	fetched, err := svc.GetWithdrawal(withdrawal.ID)
	if err != nil {
		t.Fatalf("get withdrawal failed: %v", err)
	}
	if fetched.ID != withdrawal.ID || fetched.AmountMinor != 1500 {
		t.Fatalf("unexpected withdrawal detail: %+v", fetched)
	}
	if _, err := svc.GetWithdrawal(9999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing withdrawal, got %v", err)
	}

	summary, err := svc.Summary(inviter.ID)
	if err != nil {
		t.Fatalf("summary failed: %v", err)
	}
	if summary.BindingCount != 1 || summary.WithdrawnMinor != 1500 || summary.AvailableMinor != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}
