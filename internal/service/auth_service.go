package service

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wfunc/bms-stand/internal/credentials"
	"github.com/wfunc/bms-stand/internal/errors"
	"github.com/wfunc/bms-stand/internal/eventlog"
	"github.com/wfunc/bms-stand/internal/utils"
	"go.uber.org/zap"
)

// authService 认证服务实现
type authService struct {
	store       *credentials.Store
	events      eventlog.Sink
	jwtManager  *utils.JWTManager
	maxAttempts int
	lockoutFor  time.Duration
	lockout     *apiLockout
	now         func() time.Time
	log         *zap.Logger
}

// apiLockout 监控接口按用户统计连续失败次数
type apiLockout struct {
	mu       sync.Mutex
	failures map[string]int
	until    map[string]time.Time
}

func newAPILockout() *apiLockout {
	return &apiLockout{failures: make(map[string]int), until: make(map[string]time.Time)}
}

// locked 用户是否处于锁定期
func (l *apiLockout) locked(userID string, now time.Time) (time.Time, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	until, ok := l.until[userID]
	if !ok {
		return time.Time{}, false
	}
	if !now.Before(until) {
		delete(l.until, userID)
		return time.Time{}, false
	}
	return until, true
}

// fail 记录一次失败，达到上限时锁定到 until 并返回 true
func (l *apiLockout) fail(userID string, max int, until time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failures[userID]++
	if l.failures[userID] < max {
		return false
	}
	delete(l.failures, userID)
	l.until[userID] = until
	return true
}

func (l *apiLockout) reset(userID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.failures, userID)
}

// NewAuthService 创建认证服务
func NewAuthService(
	store *credentials.Store,
	events eventlog.Sink,
	jwtManager *utils.JWTManager,
	maxAttempts int,
	lockoutFor time.Duration,
	log *zap.Logger,
) AuthService {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if lockoutFor <= 0 {
		lockoutFor = 15 * time.Minute
	}
	return &authService{
		store:       store,
		events:      events,
		jwtManager:  jwtManager,
		maxAttempts: maxAttempts,
		lockoutFor:  lockoutFor,
		lockout:     newAPILockout(),
		now:         time.Now,
		log:         log,
	}
}

// LoginCandidates 重新读取凭据文件并返回可选用户
func (s *authService) LoginCandidates(ctx context.Context) ([]string, error) {
	if err := s.store.Load(); err != nil {
		return nil, err
	}
	return s.store.IDs(), nil
}

// Authenticate 校验用户与密码
func (s *authService) Authenticate(ctx context.Context, userID, password string) (*credentials.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCanceled)
	}

	user, ok := s.store.Get(userID)
	if !ok || !utils.CheckPassword(password, user.PasswordHash) {
		s.log.Warn("登录失败", zap.String("user_id", userID))
		return nil, errors.New(errors.ErrAuthentication, "Неверный пароль")
	}
	return &user, nil
}

// NewGate 创建登录闸门，每个登录流程一个
func (s *authService) NewGate() *LoginGate {
	return &LoginGate{auth: s, max: s.maxAttempts}
}

// Login 监控接口登录，签发令牌。连续失败达到上限后该用户锁定 lockoutFor
func (s *authService) Login(ctx context.Context, req *LoginRequest) (*AuthResponse, error) {
	if until, locked := s.lockout.locked(req.UserID, s.now()); locked {
		return nil, errors.Newf(errors.ErrLoginLockout, "Вход заблокирован до %s", until.Format("15:04:05"))
	}

	user, err := s.Authenticate(ctx, req.UserID, req.Password)
	if err != nil {
		if errors.Is(err, errors.ErrCanceled) {
			return nil, err
		}
		if s.lockout.fail(req.UserID, s.maxAttempts, s.now().Add(s.lockoutFor)) {
			s.log.Warn("监控接口登录锁定", zap.String("user_id", req.UserID), zap.Duration("duration", s.lockoutFor))
			s.logEvent("Превышено количество попыток входа через API для пользователя %s", req.UserID)
			return nil, errors.New(errors.ErrLoginLockout, "Превышено количество попыток входа.")
		}
		return nil, err
	}
	s.lockout.reset(user.ID)

	sessionID := uuid.New().String()
	resp, err := s.issue(user, sessionID)
	if err != nil {
		return nil, err
	}

	s.log.Info("监控接口登录成功", zap.String("user_id", user.ID), zap.String("session_id", sessionID))
	return resp, nil
}

// errUserRemoved 刷新时用户已被删除
var errUserRemoved = stderrors.New("user removed")

// RefreshToken 刷新访问令牌，刷新令牌本身不轮换
func (s *authService) RefreshToken(ctx context.Context, refreshToken string) (*AuthResponse, error) {
	var user credentials.User
	accessToken, err := s.jwtManager.RefreshAccessToken(refreshToken, func(userID string) (string, string, error) {
		u, ok := s.store.Get(userID)
		if !ok {
			return "", "", errUserRemoved
		}
		user = u
		return u.FullName(), string(u.Role), nil
	})
	switch {
	case err == nil:
	case stderrors.Is(err, utils.ErrExpiredToken):
		return nil, errors.New(errors.ErrTokenExpired)
	case stderrors.Is(err, utils.ErrNotRefreshToken):
		return nil, errors.New(errors.ErrTokenInvalid, "not a refresh token")
	case stderrors.Is(err, errUserRemoved):
		return nil, errors.New(errors.ErrAuthentication, "пользователь удален")
	default:
		return nil, errors.Wrap(err, errors.ErrTokenInvalid)
	}

	return &AuthResponse{
		User:         userInfo(&user),
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.jwtManager.GetTokenExpiry(utils.TokenTypeAccess).Seconds()),
		TokenType:    "Bearer",
	}, nil
}

// ValidateToken 验证访问令牌
func (s *authService) ValidateToken(ctx context.Context, token string) (*TokenClaims, error) {
	claims, err := s.jwtManager.ValidateToken(token)
	if err != nil {
		if err == utils.ErrExpiredToken {
			return nil, errors.New(errors.ErrTokenExpired)
		}
		return nil, errors.Wrap(err, errors.ErrTokenInvalid)
	}
	if claims.TokenType != utils.TokenTypeAccess {
		return nil, errors.New(errors.ErrTokenInvalid, "not an access token")
	}

	out := &TokenClaims{
		UserID:    claims.UserID,
		FullName:  claims.FullName,
		Role:      claims.Role,
		SessionID: claims.SessionID,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Unix()
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Unix()
	}
	return out, nil
}

func (s *authService) issue(user *credentials.User, sessionID string) (*AuthResponse, error) {
	accessToken, err := s.jwtManager.GenerateAccessToken(user.ID, user.FullName(), string(user.Role), sessionID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrUnknown, "生成访问令牌失败")
	}
	refreshToken, err := s.jwtManager.GenerateRefreshToken(user.ID, sessionID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrUnknown, "生成刷新令牌失败")
	}

	return &AuthResponse{
		User:         userInfo(user),
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.jwtManager.GetTokenExpiry(utils.TokenTypeAccess).Seconds()),
		TokenType:    "Bearer",
	}, nil
}

// LoginGate 有限次数的登录流程，非并发安全
type LoginGate struct {
	auth     *authService
	max      int
	failures int
}

// Remaining 剩余尝试次数
func (g *LoginGate) Remaining() int {
	if r := g.max - g.failures; r > 0 {
		return r
	}
	return 0
}

// Locked 是否已锁定
func (g *LoginGate) Locked() bool {
	return g.failures >= g.max
}

// Attempt 一次登录尝试。达到上限后返回 ErrLoginLockout，调用方应以状态码1退出
func (g *LoginGate) Attempt(ctx context.Context, userID, password string) (*credentials.User, error) {
	if g.Locked() {
		return nil, errors.New(errors.ErrLoginLockout)
	}

	user, err := g.auth.Authenticate(ctx, userID, password)
	if err != nil {
		if errors.Is(err, errors.ErrCanceled) {
			return nil, err
		}
		g.failures++
		if g.Locked() {
			g.auth.logEvent("Превышено количество попыток входа для пользователя %s", userID)
			return nil, errors.New(errors.ErrLoginLockout, "Превышено количество попыток входа. Программа будет закрыта.")
		}
		return nil, errors.Newf(errors.ErrAuthentication, "Неверный пароль. Осталось попыток: %d", g.Remaining())
	}

	g.auth.logEvent("Пользователь %s вошел в систему", user.ID)
	return user, nil
}

func (s *authService) logEvent(format string, args ...interface{}) {
	if s.events == nil {
		return
	}
	if err := s.events.Logf(format, args...); err != nil {
		s.log.Error("写入事件日志失败", zap.Error(err))
	}
}
