package service

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/member-next/internal/models"
	"github.com/member-next/internal/repository"
	"github.com/member-next/internal/statustoken"
)

func setupUserServiceTest(t *testing.T) (*UserService, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:user_service_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(&models.User{}, &models.ProfileChangeLog{}); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}

	codec := statustoken.New("user-service-test-secret")
	svc := NewUserService(repository.NewUserRepository(db), repository.NewChangeLogRepository(db), codec)
	return svc, db
}

func TestCreateUserIssuesToken(t *testing.T) {
	svc, db := setupUserServiceTest(t)

	user, token, err := svc.Create(CreateUserInput{Username: "alice", Email: "alice@example.com", OperatorID: 1})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if user.PublicID == "" || token == "" {
		t.Fatalf("expected public id and token, got %+v %q", user, token)
	}
	if user.AccessTokenHash != statustoken.Hash(token) {
		t.Fatal("stored hash does not match issued token")
	}

	// 用户名唯一
	if _, _, err := svc.Create(CreateUserInput{Username: "alice"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput on duplicate username, got %v", err)
	}
	if _, _, err := svc.Create(CreateUserInput{Username: "  "}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput on blank username, got %v", err)
	}

	var count int64
	if err := db.Model(&models.User{}).Count(&count).Error; err != nil {
		t.Fatalf("count users failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 user, got %d", count)
	}
}

func TestUpdateProfileWritesAuditLog(t *testing.T) {
	svc, db := setupUserServiceTest(t)

	user, _, err := svc.Create(CreateUserInput{Username: "bob", Email: "bob@old.example.com"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	newEmail := "bob@new.example.com"
	newGroup := "vip"
	updated, err := svc.UpdateProfile(UpdateProfileInput{
		UserID:     user.ID,
		Email:      &newEmail,
		GroupName:  &newGroup,
		Note:       "support ticket #482",
		OperatorID: 7,
	})
	if err != nil {
		t.Fatalf("update profile failed: %v", err)
	}
	if updated.Email != newEmail || updated.GroupName != newGroup {
		t.Fatalf("unexpected updated user: %+v", updated)
	}

	var logs []models.ProfileChangeLog
	if err := db.Where("user_id = ?", user.ID).Order("id asc").Find(&logs).Error; err != nil {
		t.Fatalf("load logs failed: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("expected 2 change logs, got %d", len(logs))
	}
	for _, log := range logs {
		if log.Note != "support ticket #482" || log.AdminID != 7 {
			t.Fatalf("unexpected log entry: %+v", log)
		}
	}

	// 备注缺失拒绝修改
	if _, err := svc.UpdateProfile(UpdateProfileInput{UserID: user.ID, Email: &newEmail, Note: "  "}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput without note, got %v", err)
	}

	// 无实际变化不产生日志
	if _, err := svc.UpdateProfile(UpdateProfileInput{UserID: user.ID, Email: &newEmail, Note: "no-op check"}); err != nil {
		t.Fatalf("no-op update failed: %v", err)
	}
	var count int64
	if err := db.Model(&models.ProfileChangeLog{}).Count(&count).Error; err != nil {
		t.Fatalf("count logs failed: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected no new logs on no-op, got %d", count)
	}
}

func TestResetTokenInvalidatesOldToken(t *testing.T) {
	svc, db := setupUserServiceTest(t)

	user, oldToken, err := svc.Create(CreateUserInput{Username: "carol"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	updated, newToken, err := svc.ResetToken(user.ID, 3)
	if err != nil {
		t.Fatalf("reset token failed: %v", err)
	}
	if newToken == oldToken {
		t.Fatal("expected a fresh token")
	}
	if updated.TokenVersion != 1 {
		t.Fatalf("expected token version 1, got %d", updated.TokenVersion)
	}
	if updated.AccessTokenHash != statustoken.Hash(newToken) {
		t.Fatal("stored hash does not match new token")
	}

	var stored models.User
	if err := db.First(&stored, user.ID).Error; err != nil {
		t.Fatalf("load user failed: %v", err)
	}
	if stored.AccessTokenHash == statustoken.Hash(oldToken) {
		t.Fatal("old token hash should no longer match")
	}
}
