package service

import (
	"context"

	"github.com/wfunc/bms-stand/internal/credentials"
)

// AuthService 认证服务接口
type AuthService interface {
	// 单次校验，不计入尝试次数
	Authenticate(ctx context.Context, userID, password string) (*credentials.User, error)
	// 受限次数的登录闸门
	NewGate() *LoginGate
	// 用户列表（登录提示前重新读取凭据文件）
	LoginCandidates(ctx context.Context) ([]string, error)

	// 监控接口令牌
	Login(ctx context.Context, req *LoginRequest) (*AuthResponse, error)
	RefreshToken(ctx context.Context, refreshToken string) (*AuthResponse, error)
	ValidateToken(ctx context.Context, token string) (*TokenClaims, error)
}

// UserService 用户管理接口
type UserService interface {
	AddUser(ctx context.Context, actor string, req *AddUserRequest) (*credentials.User, error)
	DeleteUser(ctx context.Context, actor, userID string) error
	GetUser(ctx context.Context, userID string) (*credentials.User, error)
	ListUsers(ctx context.Context) []credentials.User
	RenameTestArea(ctx context.Context, actor, name string) error
	TestArea() string
}

// AddUserRequest 新增用户请求
type AddUserRequest struct {
	UserID          string `json:"user_id"`
	LastName        string `json:"lastname"`
	FirstName       string `json:"firstname"`
	MiddleName      string `json:"middlename"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

// LoginRequest 登录请求
type LoginRequest struct {
	UserID   string `json:"user_id" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// RefreshRequest 刷新令牌请求
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// UserInfo 对外暴露的用户信息（不含密码哈希）
type UserInfo struct {
	UserID   string `json:"user_id"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
}

// AuthResponse 认证响应
type AuthResponse struct {
	User         *UserInfo `json:"user"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresIn    int64     `json:"expires_in"`
	TokenType    string    `json:"token_type"`
}

// TokenClaims JWT Claims
type TokenClaims struct {
	UserID    string `json:"user_id"`
	FullName  string `json:"full_name"`
	Role      string `json:"role"`
	SessionID string `json:"session_id"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}

func userInfo(u *credentials.User) *UserInfo {
	return &UserInfo{UserID: u.ID, FullName: u.FullName(), Role: string(u.Role)}
}
