package middleware

import (
	"time"

	"course_checkout/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// 探活与抓取接口不记访问日志
var skipLogPaths = map[string]bool{
	"/health":  true,
	"/metrics": true,
}

// LoggerMiddleware 访问日志，需放在 TraceMiddleware 之后
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		if skipLogPaths[path] {
			return
		}

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.Int("status", status),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("route", c.FullPath()),
			zap.String("ip", c.ClientIP()),
			zap.String("user-agent", c.Request.UserAgent()),
			zap.String("request_id", c.GetString(ContextRequestID)),
			zap.Duration("cost", time.Since(start)),
		}
		if uid, ok := CurrentUserID(c); ok {
			fields = append(fields, zap.String("user_id", uid))
		}
		// 不记录 query 与 body，回调参数里带签名

		switch {
		case status >= 500:
			logger.Log.Error(path, fields...)
		case status >= 400:
			logger.Log.Warn(path, fields...)
		default:
			logger.Log.Info(path, fields...)
		}
	}
}
