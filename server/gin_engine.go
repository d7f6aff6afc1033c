package server

import (
	"github.com/gin-gonic/gin"
)

// NewDefaultGinEngine 创建不带默认中间件的 Gin 引擎，中间件顺序由调用方决定。
// trustedProxies 为空时不信任任何代理头。
func NewDefaultGinEngine(trustedProxies []string, middlewares ...gin.HandlerFunc) *gin.Engine {
	engine := gin.New()
	_ = engine.SetTrustedProxies(trustedProxies)
	engine.Use(middlewares...)
	return engine
}
