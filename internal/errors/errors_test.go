package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/suite"
)

// ErrorsTestSuite 错误包测试套件
type ErrorsTestSuite struct {
	suite.Suite
}

// 测试创建新错误
func (suite *ErrorsTestSuite) TestNew() {
	err := New(ErrInvalidParam)
	suite.NotNil(err)
	suite.Equal(ErrInvalidParam, err.Code)
	suite.Equal("无效的参数", err.Message)
	suite.Empty(err.Details)

	err = New(ErrNotFound, "报告不存在")
	suite.Equal("资源未找到", err.Message)
	suite.Equal("报告不存在", err.Details)

	err = New(ErrFileWrite, "写入失败", "路径: reports/x.pdf")
	suite.Equal("写入失败; 路径: reports/x.pdf", err.Details)
}

// 测试格式化错误创建
func (suite *ErrorsTestSuite) TestNewf() {
	err := Newf(ErrInvalidParam, "标识 %q 长度 %d 不足", "ab", 2)
	suite.Equal(ErrInvalidParam, err.Code)
	suite.Equal(`标识 "ab" 长度 2 不足`, err.Details)
}

// 测试错误包装
func (suite *ErrorsTestSuite) TestWrap() {
	originalErr := errors.New("磁盘已满")
	wrappedErr := Wrap(originalErr, ErrFileWrite)
	suite.Equal(ErrFileWrite, wrappedErr.Code)
	suite.Equal("磁盘已满", wrappedErr.Details)
	suite.Equal(originalErr, wrappedErr.Cause)
	suite.ErrorIs(wrappedErr, originalErr)

	suite.Nil(Wrap(nil, ErrUnknown))

	// 包装已有的AppError，保留原始错误码
	appErr := New(ErrNotFound, "资源不存在")
	wrappedAppErr := Wrap(appErr, ErrInvalidParam, "额外信息")
	suite.Equal(ErrNotFound, wrappedAppErr.Code)
	suite.Contains(wrappedAppErr.Details, "额外信息")
}

// 测试格式化错误包装
func (suite *ErrorsTestSuite) TestWrapf() {
	originalErr := errors.New("连接超时")
	wrappedErr := Wrapf(originalErr, ErrDatabaseConnect, "数据库 %s 连接失败", "sqlite")
	suite.Equal("数据库 sqlite 连接失败", wrappedErr.Details)
	suite.Equal(originalErr, wrappedErr.Cause)
}

// 测试错误码判断
func (suite *ErrorsTestSuite) TestIsAndGetCode() {
	err := New(ErrMatrixSealed)
	suite.True(Is(err, ErrMatrixSealed))
	suite.False(Is(err, ErrNotFound))
	suite.False(Is(nil, ErrMatrixSealed))
	suite.False(Is(errors.New("标准错误"), ErrUnknown))

	suite.Equal(ErrTokenExpired, GetCode(New(ErrTokenExpired)))
	suite.Equal(ErrUnknown, GetCode(errors.New("标准错误")))
	suite.Equal(ErrorCode(0), GetCode(nil))
}

// 测试错误消息
func (suite *ErrorsTestSuite) TestError() {
	err := &AppError{Code: ErrNotFound, Message: "资源未找到"}
	suite.Equal("[1002] 资源未找到", err.Error())

	err.Details = "report_x.pdf"
	suite.Equal("[1002] 资源未找到: report_x.pdf", err.Error())
}

// 测试WithCause
func (suite *ErrorsTestSuite) TestWithCause() {
	cause := errors.New("权限不足")
	err := New(ErrFileWrite).WithCause(cause)
	suite.Equal(cause, err.Cause)
	suite.Equal("权限不足", err.Details)

	err2 := New(ErrFileWrite, "写入报告失败").WithCause(cause)
	suite.Equal("写入报告失败", err2.Details)
}

// 测试错误分类
func (suite *ErrorsTestSuite) TestCategories() {
	for _, code := range []ErrorCode{ErrInvalidParam, ErrAlreadyExists, ErrPasswordMismatch, ErrProtectedUser} {
		suite.True(IsValidation(New(code)), "错误码 %d 应该是校验错误", code)
		suite.False(IsState(New(code)))
	}
	for _, code := range []ErrorCode{ErrMatrixSealed, ErrDeviceNotConnected, ErrNoResults} {
		suite.True(IsState(New(code)), "错误码 %d 应该是状态错误", code)
		suite.False(IsValidation(New(code)))
	}
	suite.False(IsState(New(ErrFileWrite)))
	suite.False(IsValidation(nil))
}

// 测试HTTP状态码映射
func (suite *ErrorsTestSuite) TestHTTPStatus() {
	testCases := []struct {
		code     ErrorCode
		expected int
	}{
		{ErrInvalidParam, 400},
		{ErrNotFound, 404},
		{ErrPermissionDenied, 403},
		{ErrTimeout, 408},
		{ErrMatrixSealed, 409},
		{ErrAuthentication, 401},
		{ErrLoginLockout, 429},
		{ErrDatabaseConnect, 503},
		{ErrDataIntegrity, 500},
		{ErrUnknown, 500},
	}

	for _, tc := range testCases {
		err := New(tc.code)
		suite.Equal(tc.expected, err.HTTPStatus(), "错误码 %d 应该返回HTTP状态码 %d", tc.code, tc.expected)
	}
}

// 测试可重试与严重错误判断
func (suite *ErrorsTestSuite) TestRetryableAndCritical() {
	for _, code := range []ErrorCode{ErrTimeout, ErrHandshakeTimeout, ErrDeviceOffline, ErrAuthentication} {
		suite.True(IsRetryable(New(code)), "错误码 %d 应该是可重试的", code)
	}
	suite.False(IsRetryable(New(ErrLoginLockout)))
	suite.False(IsRetryable(nil))

	for _, code := range []ErrorCode{ErrConfigLoad, ErrLoginLockout, ErrDataIntegrity, ErrSerialPortOpen} {
		suite.True(IsCritical(New(code)), "错误码 %d 应该是严重错误", code)
	}
	suite.False(IsCritical(New(ErrInvalidParam)))
	suite.False(IsCritical(nil))
}

// 测试调用栈捕获
func (suite *ErrorsTestSuite) TestStackCapture() {
	err := New(ErrUnknown)
	suite.Greater(len(err.Stack), 0)
	suite.NotEmpty(err.GetStack())
}

// 测试未知错误码
func (suite *ErrorsTestSuite) TestUnknownErrorCode() {
	err := New(ErrorCode(99999))
	suite.Equal(ErrorCode(99999), err.Code)
	suite.Equal("未知错误", err.Message)
}

// 测试错误响应
func (suite *ErrorsTestSuite) TestErrorResponse() {
	err := New(ErrNotFound, "报告不存在")
	response := NewErrorResponse(err, "req-123")

	suite.False(response.Success)
	suite.Equal(err, response.Error)
	suite.Equal("req-123", response.RequestID)
	suite.Greater(response.Timestamp, int64(0))
}

func TestErrorsSuite(t *testing.T) {
	suite.Run(t, new(ErrorsTestSuite))
}
