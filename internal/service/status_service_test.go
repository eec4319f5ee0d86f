package service

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/member-next/internal/constants"
	"github.com/member-next/internal/models"
	"github.com/member-next/internal/repository"
	"github.com/member-next/internal/statustoken"
)

func setupStatusServiceTest(t *testing.T) (*StatusService, *UserService, *LedgerService, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:status_service_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(&models.User{}, &models.RechargeRecord{}, &models.ProfileChangeLog{}); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}

	codec := statustoken.New("status-service-test-secret")
	userRepo := repository.NewUserRepository(db)
	ledgerRepo := repository.NewLedgerRepository(db)
	userSvc := NewUserService(userRepo, repository.NewChangeLogRepository(db), codec)
	ledgerSvc := NewLedgerService(ledgerRepo, userRepo)
	statusSvc := NewStatusService(userRepo, ledgerRepo, codec)
	return statusSvc, userSvc, ledgerSvc, db
}

func TestResolveStatusActiveMember(t *testing.T) {
	statusSvc, userSvc, ledgerSvc, _ := setupStatusServiceTest(t)

	user, token, err := userSvc.Create(CreateUserInput{Username: "dora", DisplayName: "Dora"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	base := time.Unix(9900000, 0)
	ledgerSvc.now = func() time.Time { return base }
	statusSvc.now = func() time.Time { return base.Add(time.Hour) }

	if _, err := ledgerSvc.Recharge(RechargeInput{
		UserID:      user.ID,
		ChangeDays:  30,
		Reason:      constants.RechargeReasonPaymentChannel,
		AmountMinor: 9900,
	}); err != nil {
		t.Fatalf("recharge failed: %v", err)
	}

	status, err := statusSvc.Resolve(token)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if !status.Active || status.PublicID != user.PublicID {
		t.Fatalf("unexpected status: %+v", status)
	}
	// 剩余 30 天减 1 小时，不足一天按一天计仍是 30
	if status.RemainingDays != 30 {
		t.Fatalf("expected 30 remaining days, got %d", status.RemainingDays)
	}
	if status.UsedDays != 0 {
		t.Fatalf("expected 0 used days right after recharge, got %d", status.UsedDays)
	}
	if len(status.RecentRecords) != 1 {
		t.Fatalf("expected 1 recent record, got %d", len(status.RecentRecords))
	}
}

func TestResolveStatusReportsUsedDays(t *testing.T) {
	statusSvc, userSvc, ledgerSvc, _ := setupStatusServiceTest(t)

	user, token, err := userSvc.Create(CreateUserInput{Username: "gina"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	base := time.Unix(9900000, 0)
	ledgerSvc.now = func() time.Time { return base }
	if _, err := ledgerSvc.Recharge(RechargeInput{
		UserID:      user.ID,
		ChangeDays:  30,
		Reason:      constants.RechargeReasonPaymentChannel,
		AmountMinor: 9900,
	}); err != nil {
		t.Fatalf("recharge failed: %v", err)
	}

	// 过去 10 天整：剩余 20，已消耗 10
	statusSvc.now = func() time.Time { return base.Add(10 * 24 * time.Hour) }
	status, err := statusSvc.Resolve(token)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if status.RemainingDays != 20 {
		t.Fatalf("expected 20 remaining days, got %d", status.RemainingDays)
	}
	if status.UsedDays != 10 {
		t.Fatalf("expected 10 used days, got %d", status.UsedDays)
	}

	// 到期后全部天数计为已消耗
	statusSvc.now = func() time.Time { return base.Add(40 * 24 * time.Hour) }
	status, err = statusSvc.Resolve(token)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if status.Active || status.RemainingDays != 0 {
		t.Fatalf("expected expired status, got %+v", status)
	}
	if status.UsedDays != 30 {
		t.Fatalf("expected 30 used days after expiry, got %d", status.UsedDays)
	}
}

func TestResolveStatusExpiredMember(t *testing.T) {
	statusSvc, userSvc, _, _ := setupStatusServiceTest(t)

	_, token, err := userSvc.Create(CreateUserInput{Username: "eve"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	status, err := statusSvc.Resolve(token)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if status.Active || status.RemainingDays != 0 {
		t.Fatalf("expected inactive status, got %+v", status)
	}
}

func TestResolveStatusRejectsInvalidTokens(t *testing.T) {
	statusSvc, userSvc, _, _ := setupStatusServiceTest(t)

	user, token, err := userSvc.Create(CreateUserInput{Username: "frank"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if _, err := statusSvc.Resolve("garbage.token"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for malformed token, got %v", err)
	}

	if _, err := statusSvc.Resolve(token + "x"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for tampered token, got %v", err)
	}

	// 重置后旧令牌失效，新令牌生效
	if _, newToken, err := userSvc.ResetToken(user.ID, 1); err != nil {
		t.Fatalf("reset token failed: %v", err)
	} else {
		if _, err := statusSvc.Resolve(token); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected old token rejected, got %v", err)
		}
		if _, err := statusSvc.Resolve(newToken); err != nil {
			t.Fatalf("new token should resolve: %v", err)
		}
	}
}
