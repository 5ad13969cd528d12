package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/suite"
	"github.com/wfunc/bms-stand/internal/credentials"
	"github.com/wfunc/bms-stand/internal/errors"
	"github.com/wfunc/bms-stand/internal/service"
	"github.com/wfunc/bms-stand/internal/utils"
	"go.uber.org/zap"
)

// AuthMiddlewareTestSuite 认证中间件测试套件
type AuthMiddlewareTestSuite struct {
	suite.Suite
	services *service.Services
	router   *gin.Engine
}

func (suite *AuthMiddlewareTestSuite) SetupTest() {
	gin.SetMode(gin.TestMode)

	store, err := credentials.Open(filepath.Join(suite.T().TempDir(), "users.json"), nil)
	suite.Require().NoError(err)
	suite.Require().NoError(store.Add(credentials.User{
		ID:           "petrov",
		LastName:     "Петров",
		FirstName:    "Пётр",
		PasswordHash: utils.HashSHA256("secret"),
		Role:         credentials.RoleOperator,
	}))
	suite.services = service.NewServices(store, nil, nil, service.DefaultConfig(), zap.NewNop())

	m := NewAuthMiddleware(suite.services.Auth)
	suite.router = gin.New()
	suite.router.GET("/me", m.RequireAuth(), func(c *gin.Context) {
		id, _ := GetUserID(c)
		name, _ := GetFullName(c)
		role, _ := GetUserRole(c)
		c.JSON(http.StatusOK, gin.H{"user_id": id, "full_name": name, "role": role, "auth": IsAuthenticated(c)})
	})
	suite.router.GET("/admin", m.RequireRole(string(credentials.RoleAdmin)), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	suite.router.GET("/chain", m.RequireAuth(), m.RequireRole(string(credentials.RoleAdmin)), func(c *gin.Context) {
		sid, _ := GetSessionID(c)
		c.JSON(http.StatusOK, gin.H{"session_id": sid})
	})
}

func (suite *AuthMiddlewareTestSuite) login(userID, password string) string {
	resp, err := suite.services.Auth.Login(context.Background(), &service.LoginRequest{UserID: userID, Password: password})
	suite.Require().NoError(err)
	return resp.AccessToken
}

func (suite *AuthMiddlewareTestSuite) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	suite.router.ServeHTTP(w, req)
	return w
}

func (suite *AuthMiddlewareTestSuite) errorCode(w *httptest.ResponseRecorder) errors.ErrorCode {
	var body struct {
		Error struct {
			Code errors.ErrorCode `json:"code"`
		} `json:"error"`
	}
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &body))
	return body.Error.Code
}

// 缺少令牌
func (suite *AuthMiddlewareTestSuite) TestMissingToken() {
	w := suite.do(httptest.NewRequest(http.MethodGet, "/me", nil))
	suite.Equal(http.StatusUnauthorized, w.Code)
	suite.Equal(errors.ErrAuthentication, suite.errorCode(w))
}

// 无效令牌
func (suite *AuthMiddlewareTestSuite) TestInvalidToken() {
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	w := suite.do(req)
	suite.Equal(http.StatusUnauthorized, w.Code)
	suite.Equal(errors.ErrTokenInvalid, suite.errorCode(w))
}

// 刷新令牌不能当访问令牌使用
func (suite *AuthMiddlewareTestSuite) TestRefreshTokenRejected() {
	resp, err := suite.services.Auth.Login(context.Background(), &service.LoginRequest{UserID: "petrov", Password: "secret"})
	suite.Require().NoError(err)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+resp.RefreshToken)
	suite.Equal(http.StatusUnauthorized, suite.do(req).Code)
}

// 三种令牌来源
func (suite *AuthMiddlewareTestSuite) TestTokenSources() {
	token := suite.login("petrov", "secret")

	bearer := httptest.NewRequest(http.MethodGet, "/me", nil)
	bearer.Header.Set("Authorization", "bearer "+token)

	header := httptest.NewRequest(http.MethodGet, "/me", nil)
	header.Header.Set("X-Access-Token", token)

	query := httptest.NewRequest(http.MethodGet, "/me?token="+token, nil)

	for _, req := range []*http.Request{bearer, header, query} {
		w := suite.do(req)
		suite.Require().Equal(http.StatusOK, w.Code)

		var body map[string]interface{}
		suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &body))
		suite.Equal("petrov", body["user_id"])
		suite.Equal("Петров Пётр", body["full_name"])
		suite.Equal("operator", body["role"])
		suite.Equal(true, body["auth"])
	}
}

// 角色校验
func (suite *AuthMiddlewareTestSuite) TestRequireRole() {
	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+suite.login("petrov", "secret"))
	w := suite.do(req)
	suite.Equal(http.StatusForbidden, w.Code)
	suite.Equal(errors.ErrAuthorization, suite.errorCode(w))

	req = httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+suite.login(credentials.DefaultUserID, credentials.DefaultPassword))
	suite.Equal(http.StatusNoContent, suite.do(req).Code)
}

// RequireAuth 之后的角色校验复用上下文
func (suite *AuthMiddlewareTestSuite) TestRoleAfterAuth() {
	req := httptest.NewRequest(http.MethodGet, "/chain", nil)
	req.Header.Set("Authorization", "Bearer "+suite.login("petrov", "secret"))
	suite.Equal(http.StatusForbidden, suite.do(req).Code)

	req = httptest.NewRequest(http.MethodGet, "/chain", nil)
	req.Header.Set("Authorization", "Bearer "+suite.login(credentials.DefaultUserID, credentials.DefaultPassword))
	w := suite.do(req)
	suite.Require().Equal(http.StatusOK, w.Code)
	var body map[string]string
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &body))
	suite.NotEmpty(body["session_id"])

	req = httptest.NewRequest(http.MethodGet, "/chain", nil)
	suite.Equal(http.StatusUnauthorized, suite.do(req).Code)
}

func TestAuthMiddlewareSuite(t *testing.T) {
	suite.Run(t, new(AuthMiddlewareTestSuite))
}
