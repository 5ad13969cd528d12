package service

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/wfunc/bms-stand/internal/credentials"
	"github.com/wfunc/bms-stand/internal/errors"
	"github.com/wfunc/bms-stand/internal/eventlog"
	"github.com/wfunc/bms-stand/internal/utils"
	"go.uber.org/zap"
)

// MinUserIDLength 标识最短长度
const MinUserIDLength = 3

// userService 用户服务实现
type userService struct {
	store      *credentials.Store
	events     eventlog.Sink
	hashScheme string
	log        *zap.Logger
}

// NewUserService 创建用户服务
func NewUserService(
	store *credentials.Store,
	events eventlog.Sink,
	hashScheme string,
	log *zap.Logger,
) UserService {
	return &userService{
		store:      store,
		events:     events,
		hashScheme: hashScheme,
		log:        log,
	}
}

// validateAddUserRequest 校验新增用户请求
func validateAddUserRequest(req *AddUserRequest) error {
	req.UserID = strings.TrimSpace(req.UserID)
	req.LastName = strings.TrimSpace(req.LastName)
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.MiddleName = strings.TrimSpace(req.MiddleName)

	if utf8.RuneCountInString(req.UserID) < MinUserIDLength {
		return errors.New(errors.ErrInvalidParam, "Идентификатор должен содержать минимум 3 символа.")
	}
	if req.LastName == "" || req.FirstName == "" {
		return errors.New(errors.ErrInvalidParam, "Фамилия и Имя обязательны.")
	}
	if req.Password == "" {
		return errors.New(errors.ErrInvalidParam, "Пароль обязателен.")
	}
	if req.Password != req.ConfirmPassword {
		return errors.New(errors.ErrPasswordMismatch, "Пароли не совпадают.")
	}
	return nil
}

// AddUser 新增操作员
func (s *userService) AddUser(ctx context.Context, actor string, req *AddUserRequest) (*credentials.User, error) {
	if err := s.requireAdmin(actor); err != nil {
		return nil, err
	}
	if err := validateAddUserRequest(req); err != nil {
		return nil, err
	}
	if _, exists := s.store.Get(req.UserID); exists {
		return nil, errors.New(errors.ErrAlreadyExists, "Пользователь уже существует.")
	}

	hash, err := utils.HashWithScheme(req.Password, s.hashScheme)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrConfigValidate)
	}

	user := credentials.User{
		ID:           req.UserID,
		LastName:     req.LastName,
		FirstName:    req.FirstName,
		MiddleName:   req.MiddleName,
		PasswordHash: hash,
		Role:         credentials.RoleOperator,
	}
	if err := s.store.Add(user); err != nil {
		s.log.Error("保存用户失败", zap.String("user_id", user.ID), zap.Error(err))
		return nil, err
	}

	s.logAction(actor, "добавил пользователя "+user.ID)
	s.log.Info("新增用户", zap.String("actor", actor), zap.String("user_id", user.ID))
	return &user, nil
}

// DeleteUser 删除用户
func (s *userService) DeleteUser(ctx context.Context, actor, userID string) error {
	if err := s.requireAdmin(actor); err != nil {
		return err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return errors.New(errors.ErrInvalidParam, "Выберите пользователя для удаления.")
	}
	if userID == credentials.DefaultUserID {
		return errors.New(errors.ErrProtectedUser, "Нельзя удалить пользователя по умолчанию.")
	}
	if err := s.store.Delete(userID); err != nil {
		return err
	}

	s.logAction(actor, "удалил пользователя "+userID)
	s.log.Info("删除用户", zap.String("actor", actor), zap.String("user_id", userID))
	return nil
}

// GetUser 获取用户
func (s *userService) GetUser(ctx context.Context, userID string) (*credentials.User, error) {
	user, ok := s.store.Get(userID)
	if !ok {
		return nil, errors.Newf(errors.ErrNotFound, "пользователь %s не найден", userID)
	}
	return &user, nil
}

// ListUsers 用户列表
func (s *userService) ListUsers(ctx context.Context) []credentials.User {
	return s.store.Users()
}

// RenameTestArea 修改测试区域名称
func (s *userService) RenameTestArea(ctx context.Context, actor, name string) error {
	if err := s.requireAdmin(actor); err != nil {
		return err
	}
	if err := s.store.SetTestArea(name); err != nil {
		return err
	}
	s.logAction(actor, "изменил название участка на "+s.store.TestArea())
	return nil
}

// TestArea 当前测试区域名称
func (s *userService) TestArea() string {
	return s.store.TestArea()
}

// requireAdmin 只有管理员可以管理用户
func (s *userService) requireAdmin(actor string) error {
	user, ok := s.store.Get(actor)
	if !ok || !user.IsAdmin() {
		return errors.New(errors.ErrPermissionDenied)
	}
	return nil
}

func (s *userService) logAction(actor, action string) {
	if s.events == nil {
		return
	}
	if err := s.events.Logf("Пользователь %s %s", actor, action); err != nil {
		s.log.Error("写入事件日志失败", zap.Error(err))
	}
}
