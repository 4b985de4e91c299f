package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/geofeed/internal/service"
	"github.com/d60-Lab/geofeed/pkg/response"
)

const userIDKey = "auth.user_id"

// Auth Bearer 令牌校验，通过后把用户 id 放进请求上下文
func Auth(accounts *service.AccountService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			response.Unauthorized(c, "missing bearer token")
			c.Abort()
			return
		}
		userID, err := accounts.ParseToken(token)
		if err != nil {
			response.Unauthorized(c, "invalid token")
			c.Abort()
			return
		}
		c.Set(userIDKey, userID)
		c.Next()
	}
}

// UserID 取当前登录用户 id；仅在 Auth 之后的 handler 里可用
func UserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}
