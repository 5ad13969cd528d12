package api

import (
	"github.com/gin-gonic/gin"
	"github.com/wfunc/bms-stand/internal/errors"
)

// respondError 按错误码返回统一错误响应
func respondError(c *gin.Context, err error) {
	appErr, ok := err.(*errors.AppError)
	if !ok {
		appErr = errors.Wrap(err, errors.ErrUnknown)
	}
	_ = c.Error(appErr)

	// 调用栈只写日志，不返回给客户端
	out := *appErr
	out.Stack = nil
	c.JSON(appErr.HTTPStatus(), errors.NewErrorResponse(&out, c.GetHeader("X-Request-ID")))
}

// badRequest 请求参数错误
func badRequest(c *gin.Context, err error) {
	respondError(c, errors.Wrap(err, errors.ErrInvalidParam))
}
