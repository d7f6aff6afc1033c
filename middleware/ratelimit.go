package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/fixrelay/limiter"
	"github.com/wyfcoding/fixrelay/response"
	"golang.org/x/time/rate"
)

// RateLimitMiddleware 构造一个通用的 Gin 限流中间件，以客户端 IP 作为限流标识。
func RateLimitMiddleware(l limiter.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()

		allowed, err := l.Allow(c.Request.Context(), key)
		if err != nil {
			// 限流组件故障时放行。
			slog.ErrorContext(c.Request.Context(), "rate limiter internal error, fail-open applied", "key", key, "error", err)
			c.Next()
			return
		}

		if !allowed {
			slog.WarnContext(c.Request.Context(), "request rejected by rate limiter", "key", key, "path", c.Request.URL.Path)
			response.ErrorWithStatus(c, http.StatusTooManyRequests, "too many requests", "access rate limit exceeded")
			c.Abort()
			return
		}

		c.Next()
	}
}

// NewLocalRateLimitMiddleware 创建按客户端 IP 独立计数的本地令牌桶限流中间件。
// limit: 每秒允许的请求数；burst: 允许的突发请求数。
func NewLocalRateLimitMiddleware(limit int, burst int) gin.HandlerFunc {
	return RateLimitMiddleware(limiter.NewKeyedLimiter(rate.Limit(limit), burst, 10*time.Minute))
}
