package middleware

import (
	"github.com/wyfcoding/fixrelay/contextx"

	"github.com/gin-gonic/gin"
)

// RequestContextEnricher 注入客户端 IP 与 UA，供日志与限流使用。
func RequestContextEnricher() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		ctx = contextx.WithIP(ctx, c.ClientIP())
		ctx = contextx.WithUserAgent(ctx, c.Request.UserAgent())
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}
