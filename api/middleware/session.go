package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// SessionHeader 客户端显式传入会话键的请求头
	SessionHeader = "X-Session-Key"
	// SessionCookie 会话键 Cookie 名
	SessionCookie = "SESSION"
	// ContextSessionKey gin.Context 中保存会话键的键名
	ContextSessionKey = "session_key"

	maxSessionKeyLength = 128
)

// Session 解析调用方的会话键，缺失时生成新的并通过 Cookie 下发
// 会话键只是分区用的不透明标识，不做校验也不过期
func Session() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader(SessionHeader))
		if key == "" {
			if cookie, err := c.Cookie(SessionCookie); err == nil {
				key = strings.TrimSpace(cookie)
			}
		}
		if len(key) > maxSessionKeyLength {
			key = ""
		}

		if key == "" {
			key = uuid.NewString()
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(SessionCookie, key, 0, "/", "", false, true)
		}

		c.Set(ContextSessionKey, key)
		c.Header(SessionHeader, key)
		c.Next()
	}
}

// GetSessionKey 读取当前请求的会话键
func GetSessionKey(c *gin.Context) string {
	return c.GetString(ContextSessionKey)
}
