package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/fixrelay/breaker"
	"github.com/wyfcoding/fixrelay/config"
	"github.com/wyfcoding/fixrelay/metrics"
	"github.com/wyfcoding/fixrelay/response"
)

var errServerFailure = errors.New("handler returned 5xx")

// HTTPCircuitBreaker 入站熔断中间件，5xx 响应计为失败。
func HTTPCircuitBreaker(cfg config.CircuitBreakerConfig, m *metrics.Metrics) gin.HandlerFunc {
	b := breaker.NewBreaker(breaker.Settings{
		Name:   "http-inbound",
		Config: cfg,
	}, m)

	return func(c *gin.Context) {
		_, err := b.Execute(func() (any, error) {
			c.Next()
			if c.Writer.Status() >= http.StatusInternalServerError {
				return nil, errServerFailure
			}
			return nil, nil
		})

		if errors.Is(err, breaker.ErrServiceUnavailable) {
			response.ErrorWithStatus(c, http.StatusServiceUnavailable, "circuit breaker open", "")
			c.Abort()
		}
	}
}
