package utils

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/suite"
)

// JWTTestSuite JWT工具测试套件
type JWTTestSuite struct {
	suite.Suite
	manager *JWTManager
}

func (suite *JWTTestSuite) SetupTest() {
	suite.manager = NewJWTManager(
		"test-secret-key",
		1*time.Hour,    // access token expiry
		7*24*time.Hour, // refresh token expiry
	)
}

// 测试创建JWT管理器
func (suite *JWTTestSuite) TestNewJWTManager() {
	manager := NewJWTManager("secret", 1*time.Hour, 24*time.Hour)
	suite.NotNil(manager)
	suite.Equal(1*time.Hour, manager.GetTokenExpiry(TokenTypeAccess))
	suite.Equal(24*time.Hour, manager.GetTokenExpiry(TokenTypeRefresh))
}

// 测试验证访问令牌
func (suite *JWTTestSuite) TestValidateAccessToken() {
	token, err := suite.manager.GenerateAccessToken("ivanov", "Иванов Иван", "admin", "session-1")
	suite.NoError(err)
	suite.NotEmpty(token)

	claims, err := suite.manager.ValidateToken(token)
	suite.NoError(err)
	suite.Equal("ivanov", claims.UserID)
	suite.Equal("Иванов Иван", claims.FullName)
	suite.Equal("admin", claims.Role)
	suite.Equal("session-1", claims.SessionID)
	suite.Equal(TokenTypeAccess, claims.TokenType)
	suite.Equal("bms-stand", claims.Issuer)
}

// 测试无效令牌
func (suite *JWTTestSuite) TestValidateInvalidToken() {
	for _, token := range []string{"", "invalid.token", "a.b.c"} {
		claims, err := suite.manager.ValidateToken(token)
		suite.Error(err)
		suite.Nil(claims)
	}
}

// 测试错误的密钥
func (suite *JWTTestSuite) TestValidateWrongSecret() {
	other := NewJWTManager("other-secret", time.Hour, time.Hour)
	token, err := other.GenerateAccessToken("ivanov", "", "user", "s")
	suite.NoError(err)

	_, err = suite.manager.ValidateToken(token)
	suite.Error(err)
}

// 测试过期令牌
func (suite *JWTTestSuite) TestExpiredToken() {
	manager := NewJWTManager("test-secret-key", -1*time.Minute, time.Hour)
	token, err := manager.GenerateAccessToken("ivanov", "", "user", "s")
	suite.NoError(err)

	_, err = manager.ValidateToken(token)
	suite.ErrorIs(err, ErrExpiredToken)
}

// 测试签名算法校验
func (suite *JWTTestSuite) TestRejectsNoneAlgorithm() {
	claims := &JWTClaims{UserID: "ivanov", TokenType: TokenTypeAccess}
	token := jwt.NewWithClaims(jwt.SigningMethodNone, claims)
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	suite.NoError(err)

	_, err = suite.manager.ValidateToken(signed)
	suite.Error(err)
}

// 测试刷新访问令牌
func (suite *JWTTestSuite) TestRefreshAccessToken() {
	refresh, err := suite.manager.GenerateRefreshToken("petrov", "session-2")
	suite.NoError(err)

	profile := func(userID string) (string, string, error) {
		if userID != "petrov" {
			return "", "", errors.New("unknown user")
		}
		return "Петров Пётр", "admin", nil
	}

	access, err := suite.manager.RefreshAccessToken(refresh, profile)
	suite.NoError(err)

	claims, err := suite.manager.ValidateToken(access)
	suite.NoError(err)
	suite.Equal("petrov", claims.UserID)
	suite.Equal("Петров Пётр", claims.FullName)
	suite.Equal("admin", claims.Role)
	suite.Equal("session-2", claims.SessionID)
	suite.Equal(TokenTypeAccess, claims.TokenType)

	// 访问令牌不能用于刷新
	_, err = suite.manager.RefreshAccessToken(access, profile)
	suite.ErrorIs(err, ErrNotRefreshToken)

	// 用户已不存在
	orphan, err := suite.manager.GenerateRefreshToken("sidorov", "session-3")
	suite.NoError(err)
	_, err = suite.manager.RefreshAccessToken(orphan, profile)
	suite.EqualError(err, "unknown user")
}

func TestJWTSuite(t *testing.T) {
	suite.Run(t, new(JWTTestSuite))
}
