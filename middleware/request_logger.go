package middleware

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/fixrelay/contextx"
)

// Logger 访问日志中间件。状态码 >= 500 记为 error，>= 400 记为 warn，
// 超过 slow 阈值的请求额外标记 slow=true。
func Logger(logger *slog.Logger, slow time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		cost := time.Since(start)
		status := c.Writer.Status()
		ctx := c.Request.Context()

		args := append(contextx.LogAttrs(ctx),
			"status", status,
			"method", c.Request.Method,
			"path", path,
			"query", query,
			"ip", c.ClientIP(),
			"cost", cost,
			"bytes_in", c.Request.ContentLength,
			"bytes_out", c.Writer.Size(),
			"user_agent", c.Request.UserAgent(),
		)
		if slow > 0 && cost > slow {
			args = append(args, "slow", true)
		}
		if len(c.Errors) > 0 {
			args = append(args, "errors", c.Errors.String())
		}

		switch {
		case status >= 500:
			logger.ErrorContext(ctx, "HTTP Request", args...)
		case status >= 400:
			logger.WarnContext(ctx, "HTTP Request", args...)
		default:
			logger.InfoContext(ctx, "HTTP Request", args...)
		}
	}
}
