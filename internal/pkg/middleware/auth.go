package middleware

import (
	"net/http"
	"strings"

	"course_checkout/pkg/response"
	"course_checkout/pkg/utils"

	"github.com/gin-gonic/gin"
)

const (
	ContextUserID = "userID"
	ContextRole   = "role"
)

// AuthMiddleware JWT认证中间件，user_id 只来自 token
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.Error(c, http.StatusUnauthorized, response.ErrTokenInvalid, "Authorization header is required")
			c.Abort()
			return
		}

		if !authenticate(c, authHeader) {
			return
		}
		c.Next()
	}
}

// OptionalAuthMiddleware 允许匿名调用 (网关直接回调)，但携带的 token 必须有效
func OptionalAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader != "" && !authenticate(c, authHeader) {
			return
		}
		c.Next()
	}
}

func authenticate(c *gin.Context, authHeader string) bool {
	// 检查格式 "Bearer <token>"
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		response.Error(c, http.StatusUnauthorized, response.ErrTokenInvalid, "Invalid authorization header format")
		c.Abort()
		return false
	}

	claims, err := utils.ParseToken(parts[1])
	if err != nil {
		response.Error(c, http.StatusUnauthorized, response.ErrTokenInvalid, "Invalid or expired token")
		c.Abort()
		return false
	}

	c.Set(ContextUserID, claims.UserID)
	c.Set(ContextRole, claims.Role)
	return true
}

// CurrentUserID 获取当前登录用户
func CurrentUserID(c *gin.Context) (string, bool) {
	v, exists := c.Get(ContextUserID)
	if !exists {
		return "", false
	}
	uid, ok := v.(string)
	return uid, ok && uid != ""
}
