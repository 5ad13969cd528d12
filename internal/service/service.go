package service

import (
	"time"

	"github.com/wfunc/bms-stand/internal/credentials"
	"github.com/wfunc/bms-stand/internal/eventlog"
	"github.com/wfunc/bms-stand/internal/repository"
	"github.com/wfunc/bms-stand/internal/utils"
	"go.uber.org/zap"
)

// Config 服务配置
type Config struct {
	JWTSecret          string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
	HashScheme         string
	MaxAttempts        int
	LockoutDuration    time.Duration
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		JWTSecret:          "change-me",
		AccessTokenExpiry:  8 * time.Hour,
		RefreshTokenExpiry: 7 * 24 * time.Hour,
		HashScheme:         utils.SchemeSHA256,
		MaxAttempts:        3,
		LockoutDuration:    15 * time.Minute,
	}
}

// Services 服务集合
type Services struct {
	Auth    AuthService
	User    UserService
	History HistoryService
}

// NewServices 创建服务集合，repos 为空时历史服务返回空结果
func NewServices(store *credentials.Store, events eventlog.Sink, repos *repository.Manager, config *Config, log *zap.Logger) *Services {
	if log == nil {
		log = zap.NewNop()
	}

	// 初始化JWT管理器
	jwtManager := utils.NewJWTManager(
		config.JWTSecret,
		config.AccessTokenExpiry,
		config.RefreshTokenExpiry,
	)

	return &Services{
		Auth:    NewAuthService(store, events, jwtManager, config.MaxAttempts, config.LockoutDuration, log),
		User:    NewUserService(store, events, config.HashScheme, log),
		History: NewHistoryService(repos, log),
	}
}
