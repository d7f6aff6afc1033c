// Package server 提供 HTTP 服务器的生命周期封装。
package server

import "context"

// Server 是可由 app 统一启停的服务器。
type Server interface {
	// Start 阻塞运行，直到 ctx 取消或监听失败。
	Start(ctx context.Context) error
	// Stop 等待进行中的请求完成后关闭。
	Stop(ctx context.Context) error
}
