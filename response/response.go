// Package response 提供统一的 HTTP 响应封装，按 xerrors 错误类型映射状态码。
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wyfcoding/fixrelay/xerrors"
)

// HTTPStatusProvider 定义了能够提供 HTTP 状态码的错误接口。
type HTTPStatusProvider interface {
	HTTPStatus() int
}

// Success 发送一个标准的成功响应：HTTP 200，业务码 0。
func Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{
		"code": 0,
		"msg":  "success",
		"data": data,
	})
}

// Raw 以指定内容类型原样写出响应体，转码结果走这里。
func Raw(c *gin.Context, contentType string, body []byte) {
	c.Data(http.StatusOK, contentType, body)
}

// Error 发送错误响应。
// *xerrors.Error 的 Context 会平铺进响应体（例如 stage、kind），其余错误兜底为 500。
func Error(c *gin.Context, err error) {
	if err == nil {
		Success(c, nil)
		return
	}

	statusCode := http.StatusInternalServerError
	body := gin.H{"msg": err.Error(), "detail": ""}

	if e, ok := xerrors.FromError(err); ok {
		statusCode = e.HTTPStatus()
		for k, v := range e.Context {
			body[k] = v
		}
		body["msg"] = e.Message
		body["detail"] = e.Detail
		if e.Detail == "" && e.Cause != nil {
			body["detail"] = e.Cause.Error()
		}
	} else if p, ok := err.(HTTPStatusProvider); ok {
		statusCode = p.HTTPStatus()
	}
	body["code"] = statusCode

	c.JSON(statusCode, body)
}

// ErrorWithStatus 发送一个带有指定 HTTP 状态码、消息和详情的错误响应。
func ErrorWithStatus(c *gin.Context, status int, msg string, detail string) {
	c.JSON(status, gin.H{
		"code":   status,
		"msg":    msg,
		"detail": detail,
	})
}
