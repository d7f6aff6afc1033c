package middleware

import (
	"github.com/wyfcoding/fixrelay/tracing"

	"github.com/gin-gonic/gin"
)

// HeaderXTraceID 定义 Trace ID 响应头名称。
const HeaderXTraceID = "X-Trace-ID"

// TraceIDHeader 将当前链路的 Trace ID 写入响应头，便于客户端关联日志。
func TraceIDHeader() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := tracing.GetTraceID(c.Request.Context())
		if traceID != "" {
			c.Header(HeaderXTraceID, traceID)
		}

		c.Next()

		if traceID == "" {
			traceID = tracing.GetTraceID(c.Request.Context())
			if traceID != "" && !c.Writer.Written() {
				c.Header(HeaderXTraceID, traceID)
			}
		}
	}
}
