package service

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/member-next/internal/constants"
	"github.com/member-next/internal/logger"
	"github.com/member-next/internal/models"
	"github.com/member-next/internal/repository"
	"github.com/member-next/internal/statustoken"
)

// UserService 会员档案服务。
// 会员没有密码，唯一凭证是创建或重置时下发一次的状态令牌明文，
// 服务端只保存令牌哈希。
type UserService struct {
	repo          repository.UserRepository
	changeLogRepo repository.ChangeLogRepository
	codec         *statustoken.Codec
}

// NewUserService 创建会员服务
func NewUserService(repo repository.UserRepository, changeLogRepo repository.ChangeLogRepository, codec *statustoken.Codec) *UserService {
	return &UserService{
		repo:          repo,
		changeLogRepo: changeLogRepo,
		codec:         codec,
	}
}

// CreateUserInput 创建会员输入
type CreateUserInput struct {
	Username    string
	DisplayName string
	Email       string
	EmailAlias  string
	GroupName   string
	Remark      string
	OperatorID  uint
}

// UpdateProfileInput 会员资料修改输入。
// 指针字段为 nil 表示不修改，每次修改必须附带审计备注。
type UpdateProfileInput struct {
	UserID      uint
	DisplayName *string
	Email       *string
	EmailAlias  *string
	GroupName   *string
	Remark      *string
	Note        string
	OperatorID  uint
}

// Create 创建会员并签发初始状态令牌，明文令牌仅此一次返回
func (s *UserService) Create(input CreateUserInput) (*models.User, string, error) {
	username := strings.TrimSpace(input.Username)
	if username == "" || len(username) > 64 {
		return nil, "", ErrInvalidInput
	}

	existing, err := s.repo.GetByUsername(username)
	if err != nil {
		return nil, "", err
	}
	if existing != nil {
		return nil, "", ErrInvalidInput
	}

	publicID := uuid.New()
	token := s.codec.Issue(publicID, 0)

	user := &models.User{
		PublicID:        publicID.String(),
		Username:        username,
		DisplayName:     strings.TrimSpace(input.DisplayName),
		Email:           strings.TrimSpace(input.Email),
		EmailAlias:      strings.TrimSpace(input.EmailAlias),
		GroupName:       strings.TrimSpace(input.GroupName),
		Remark:          strings.TrimSpace(input.Remark),
		TokenVersion:    0,
		AccessTokenHash: statustoken.Hash(token),
		CreatedBy:       input.OperatorID,
	}
	if err := s.repo.Create(user); err != nil {
		if isUniqueViolation(err) {
			return nil, "", ErrInvalidInput
		}
		return nil, "", err
	}

	logger.Infow("user_created", "user_id", user.ID, "username", user.Username, "operator_id", input.OperatorID)
	return user, token, nil
}

// Get 按ID查询会员
func (s *UserService) Get(id uint) (*models.User, error) {
	user, err := s.repo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrNotFound
	}
	return user, nil
}

// List 查询会员列表
func (s *UserService) List(filter repository.UserListFilter) ([]models.User, int64, error) {
	return s.repo.List(filter)
}

// UpdateProfile 修改会员资料。改动字段与审计日志在同一事务落库，
// 无任何实际变化时不产生日志。
func (s *UserService) UpdateProfile(input UpdateProfileInput) (*models.User, error) {
	if input.UserID == 0 {
		return nil, ErrNotFound
	}
	note := strings.TrimSpace(input.Note)
	if note == "" || len(note) > constants.MaxNoteLength {
		return nil, ErrInvalidInput
	}

	user, err := s.repo.GetByID(input.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrNotFound
	}

	updates := map[string]interface{}{}
	logs := []models.ProfileChangeLog{}
	appendChange := func(field, oldValue string, newValue *string) {
		if newValue == nil {
			return
		}
		next := strings.TrimSpace(*newValue)
		if next == oldValue {
			return
		}
		updates[field] = next
		logs = append(logs, models.ProfileChangeLog{
			UserID:   user.ID,
			AdminID:  input.OperatorID,
			Field:    field,
			OldValue: oldValue,
			NewValue: next,
			Note:     note,
		})
	}

	appendChange("display_name", user.DisplayName, input.DisplayName)
	appendChange("email", user.Email, input.Email)
	appendChange("email_alias", user.EmailAlias, input.EmailAlias)
	appendChange("group_name", user.GroupName, input.GroupName)
	appendChange("remark", user.Remark, input.Remark)

	if len(updates) == 0 {
		return user, nil
	}
	updates["updated_at"] = time.Now()

	err = s.repo.Transaction(func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Update(user.ID, updates); err != nil {
			return err
		}
		return s.changeLogRepo.WithTx(tx).CreateBatch(logs)
	})
	if err != nil {
		return nil, err
	}

	logger.Infow("user_profile_updated", "user_id", user.ID, "fields", len(logs), "operator_id", input.OperatorID)
	return s.Get(user.ID)
}

// ResetToken 作废旧令牌并签发新令牌，明文仅此一次返回。
// 版本号递增使旧令牌即便泄露也无法通过版本校验。
func (s *UserService) ResetToken(userID, operatorID uint) (*models.User, string, error) {
	user, err := s.repo.GetByID(userID)
	if err != nil {
		return nil, "", err
	}
	if user == nil {
		return nil, "", ErrNotFound
	}

	publicID, err := uuid.Parse(user.PublicID)
	if err != nil {
		return nil, "", err
	}

	nextVersion := user.TokenVersion + 1
	token := s.codec.Issue(publicID, nextVersion)

	if err := s.repo.Update(user.ID, map[string]interface{}{
		"token_version":     nextVersion,
		"access_token_hash": statustoken.Hash(token),
		"updated_at":        time.Now(),
	}); err != nil {
		return nil, "", err
	}

	logger.Infow("user_token_reset", "user_id", user.ID, "token_version", nextVersion, "operator_id", operatorID)
	updated, err := s.repo.GetByID(user.ID)
	if err != nil {
		return nil, "", err
	}
	return updated, token, nil
}

// ListChangeLogs 查询资料变更日志
func (s *UserService) ListChangeLogs(filter repository.ChangeLogListFilter) ([]models.ProfileChangeLog, int64, error) {
	return s.changeLogRepo.List(filter)
}
