package app

import (
	"time"

	"github.com/wyfcoding/fixrelay/server"
)

// Option 是函数式选项，用于配置应用程序。
type Option func(*options)

type options struct {
	servers         []server.Server
	cleanups        []func() // 关闭时按注册的逆序执行
	shutdownTimeout time.Duration
}

// WithServer 添加一个或多个随应用启停的服务器。
func WithServer(servers ...server.Server) Option {
	return func(o *options) {
		o.servers = append(o.servers, servers...)
	}
}

// WithCleanup 添加关闭时执行的清理函数，例如关闭 Kafka 生产者。
func WithCleanup(cleanup func()) Option {
	return func(o *options) {
		if cleanup != nil {
			o.cleanups = append(o.cleanups, cleanup)
		}
	}
}

// WithShutdownTimeout 设置停止服务器的最长等待时间。
func WithShutdownTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.shutdownTimeout = d
		}
	}
}
