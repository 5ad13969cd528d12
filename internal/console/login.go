package console

import (
	"context"
	"strconv"

	"github.com/wfunc/bms-stand/internal/credentials"
	"github.com/wfunc/bms-stand/internal/errors"
	"go.uber.org/zap"
)

// Login 登录流程。连续失败达到上限返回 ErrLoginLockout，调用方应以状态码1退出
func (c *Console) Login(ctx context.Context) (*credentials.User, error) {
	ids, err := c.auth.LoginCandidates(ctx)
	if err != nil {
		return nil, err
	}

	gate := c.auth.NewGate()
	c.println()
	c.println("=== Авторизация ===")
	for {
		c.println("Пользователи:")
		for i, id := range ids {
			c.printf("  %d. %s\n", i+1, id)
		}

		choice, err := c.prompt("Выберите пользователя:")
		if err != nil {
			return nil, err
		}
		userID, ok := resolveUser(ids, choice)
		if !ok {
			c.println("Пользователь не найден.")
			continue
		}

		pw, err := c.password("Пароль:")
		if err != nil {
			return nil, err
		}

		user, err := gate.Attempt(ctx, userID, pw)
		switch {
		case err == nil:
			if err := c.stand.SetOperator(ctx, user); err != nil {
				return nil, err
			}
			c.user = user
			c.logger.Info("操作员登录", zap.String("user", user.ID), zap.String("role", string(user.Role)))
			c.printf("Пользователь: %s\n", user.FullName())
			return user, nil
		case errors.Is(err, errors.ErrLoginLockout):
			c.println(message(err))
			c.logger.Warn("登录次数超限", zap.String("user", userID))
			return nil, err
		case errors.Is(err, errors.ErrAuthentication):
			c.println(message(err))
		default:
			return nil, err
		}
	}
}

// resolveUser 按序号或标识选择用户
func resolveUser(ids []string, choice string) (string, bool) {
	if n, err := strconv.Atoi(choice); err == nil && n >= 1 && n <= len(ids) {
		return ids[n-1], true
	}
	for _, id := range ids {
		if id == choice {
			return id, true
		}
	}
	return "", false
}
