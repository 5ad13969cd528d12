package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/bms-stand/internal/errors"
	"github.com/wfunc/bms-stand/internal/service"
)

// 上下文键
const (
	ContextUserID    = "userID"
	ContextFullName  = "fullName"
	ContextRole      = "role"
	ContextSessionID = "sessionID"
	ContextToken     = "token"
)

// AuthMiddleware JWT认证中间件
type AuthMiddleware struct {
	authService service.AuthService
}

// NewAuthMiddleware 创建认证中间件
func NewAuthMiddleware(authService service.AuthService) *AuthMiddleware {
	return &AuthMiddleware{
		authService: authService,
	}
}

// RequireAuth 需要认证的中间件
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := m.authenticate(c); !ok {
			return
		}
		c.Next()
	}
}

// RequireRole 需要特定角色的中间件，前面已有 RequireAuth 时复用其结果
func (m *AuthMiddleware) RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !IsAuthenticated(c) {
			if _, ok := m.authenticate(c); !ok {
				return
			}
		}

		for _, role := range roles {
			if HasRole(c, role) {
				c.Next()
				return
			}
		}

		abort(c, errors.New(errors.ErrAuthorization))
	}
}

// authenticate 校验令牌并写入上下文，失败时中止请求
func (m *AuthMiddleware) authenticate(c *gin.Context) (*service.TokenClaims, bool) {
	token := extractToken(c)
	if token == "" {
		abort(c, errors.New(errors.ErrAuthentication, "缺少认证令牌"))
		return nil, false
	}

	claims, err := m.authService.ValidateToken(c.Request.Context(), token)
	if err != nil {
		appErr, ok := err.(*errors.AppError)
		if !ok {
			appErr = errors.Wrap(err, errors.ErrTokenInvalid)
		}
		abort(c, appErr)
		return nil, false
	}

	c.Set(ContextUserID, claims.UserID)
	c.Set(ContextFullName, claims.FullName)
	c.Set(ContextRole, claims.Role)
	c.Set(ContextSessionID, claims.SessionID)
	c.Set(ContextToken, token)
	return claims, true
}

func abort(c *gin.Context, err *errors.AppError) {
	c.AbortWithStatusJSON(err.HTTPStatus(), errors.NewErrorResponse(err, c.GetHeader("X-Request-ID")))
}

// extractToken 从请求中提取令牌
func extractToken(c *gin.Context) string {
	// 1. Authorization Header (Bearer Token)
	if bearer := c.GetHeader("Authorization"); bearer != "" {
		parts := strings.SplitN(bearer, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return strings.TrimSpace(parts[1])
		}
	}

	// 2. X-Access-Token Header
	if token := c.GetHeader("X-Access-Token"); token != "" {
		return token
	}

	// 3. Query参数，浏览器的websocket无法设置Header
	return c.Query("token")
}

func getString(c *gin.Context, key string) (string, bool) {
	if v, exists := c.Get(key); exists {
		if s, ok := v.(string); ok {
			return s, true
		}
	}
	return "", false
}

// GetUserID 从上下文获取用户标识
func GetUserID(c *gin.Context) (string, bool) {
	return getString(c, ContextUserID)
}

// GetFullName 从上下文获取用户全名
func GetFullName(c *gin.Context) (string, bool) {
	return getString(c, ContextFullName)
}

// GetUserRole 从上下文获取用户角色
func GetUserRole(c *gin.Context) (string, bool) {
	return getString(c, ContextRole)
}

// GetSessionID 从上下文获取会话ID
func GetSessionID(c *gin.Context) (string, bool) {
	return getString(c, ContextSessionID)
}

// IsAuthenticated 检查是否已认证
func IsAuthenticated(c *gin.Context) bool {
	_, exists := c.Get(ContextUserID)
	return exists
}

// HasRole 检查是否有特定角色
func HasRole(c *gin.Context, role string) bool {
	if userRole, exists := GetUserRole(c); exists {
		return userRole == role
	}
	return false
}
