package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/bms-stand/internal/errors"
	"go.uber.org/zap"
)

// RequestLogger 使用zap记录请求日志
func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()),
		}
		if id, ok := GetUserID(c); ok {
			fields = append(fields, zap.String("user_id", id))
		}
		if sid, ok := GetSessionID(c); ok {
			fields = append(fields, zap.String("session_id", sid))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch {
		case c.Writer.Status() >= 500:
			// 调用栈只进日志
			for _, ginErr := range c.Errors {
				if appErr, ok := ginErr.Err.(*errors.AppError); ok {
					if stack := appErr.GetStack(); stack != "" {
						fields = append(fields, zap.String("stack", stack))
						break
					}
				}
			}
			log.Error("请求失败", fields...)
		case c.Writer.Status() >= 400:
			log.Warn("请求被拒绝", fields...)
		default:
			log.Debug("请求完成", fields...)
		}
	}
}
