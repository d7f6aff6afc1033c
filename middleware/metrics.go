package middleware

import (
	"strconv"
	"time"

	"github.com/wyfcoding/fixrelay/metrics"

	"github.com/gin-gonic/gin"
)

// MetricsOptions 定义指标中间件的可选参数。
type MetricsOptions struct {
	SlowThreshold time.Duration
	SkipPaths     []string
}

// HTTPMetricsMiddlewareWithOptions 返回一个可配置的 HTTP 指标采集中间件。
// 路径标签取路由模板，未匹配路由统一记为 "unmatched" 以限制基数。
func HTTPMetricsMiddlewareWithOptions(m *metrics.Metrics, opts MetricsOptions) gin.HandlerFunc {
	skip := make(map[string]struct{}, len(opts.SkipPaths))
	for _, path := range opts.SkipPaths {
		skip[path] = struct{}{}
	}

	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		if _, ok := skip[c.Request.URL.Path]; ok {
			c.Next()
			return
		}

		method := c.Request.Method
		m.HTTPInFlight.WithLabelValues(method).Inc()
		defer m.HTTPInFlight.WithLabelValues(method).Dec()

		start := time.Now()

		c.Next()

		latency := time.Since(start)
		status := strconv.Itoa(c.Writer.Status())

		m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
		m.HTTPRequestDuration.WithLabelValues(method, path).Observe(latency.Seconds())
		if opts.SlowThreshold > 0 && latency > opts.SlowThreshold {
			m.HTTPSlowRequestsTotal.WithLabelValues(method, path).Inc()
		}
		if m.HTTPRequestSizeBytes != nil && c.Request.ContentLength > 0 {
			m.HTTPRequestSizeBytes.WithLabelValues(method, path).Observe(float64(c.Request.ContentLength))
		}
		if m.HTTPResponseSizeBytes != nil && c.Writer.Size() > 0 {
			m.HTTPResponseSizeBytes.WithLabelValues(method, path).Observe(float64(c.Writer.Size()))
		}
	}
}
