// Package middleware 提供了 Gin 的通用中间件实现.
package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/fixrelay/contextx"
	"github.com/wyfcoding/fixrelay/idgen"
)

const (
	HeaderXRequestID = "X-Request-ID"
)

// RequestID 返回一个用于生成或传递请求 ID 的 Gin 中间件。
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(HeaderXRequestID)
		if requestID == "" {
			requestID = idgen.GenIDString()
		}

		c.Request = c.Request.WithContext(contextx.WithRequestID(c.Request.Context(), requestID))
		c.Header(HeaderXRequestID, requestID)

		c.Next()
	}
}
