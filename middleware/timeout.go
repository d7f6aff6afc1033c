package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/fixrelay/response"
)

// TimeoutMiddleware 设置请求的上下文超时。处理器超时且未写响应时返回 504。
func TimeoutMiddleware(duration time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if duration <= 0 {
			c.Next()
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), duration)
		defer cancel()

		c.Request = c.Request.WithContext(ctx)

		c.Next()

		if errors.Is(ctx.Err(), context.DeadlineExceeded) && !c.Writer.Written() {
			response.ErrorWithStatus(c, http.StatusGatewayTimeout, "Request Timeout", "")
			c.Abort()
		}
	}
}
