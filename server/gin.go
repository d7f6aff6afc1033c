package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

const defaultShutdownTimeout = 5 * time.Second

// HTTPOptions 对应 http.Server 的超时与头部限制，零值使用 net/http 默认行为。
type HTTPOptions struct {
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
}

// GinServer 封装了标准的 `http.Server`，用于运行 Gin 引擎。
type GinServer struct {
	server *http.Server
	addr   string
	logger *slog.Logger

	mu       sync.Mutex
	listener net.Listener
	ready    chan struct{}
}

// NewGinServer 创建一个新的Gin服务器实例。
func NewGinServer(engine *gin.Engine, addr string, logger *slog.Logger, opts ...HTTPOptions) *GinServer {
	srv := &http.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
	if len(opts) > 0 {
		o := opts[0]
		srv.ReadTimeout = o.ReadTimeout
		srv.WriteTimeout = o.WriteTimeout
		srv.IdleTimeout = o.IdleTimeout
		srv.MaxHeaderBytes = o.MaxHeaderBytes
		if o.ReadHeaderTimeout > 0 {
			srv.ReadHeaderTimeout = o.ReadHeaderTimeout
		}
	}
	return &GinServer{
		server: srv,
		addr:   addr,
		logger: logger,
		ready:  make(chan struct{}),
	}
}

// Addr 返回实际监听地址，Start 之前返回配置地址。
func (s *GinServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Ready 在开始监听后关闭。
func (s *GinServer) Ready() <-chan struct{} {
	return s.ready
}

// Start 启动 HTTP 服务器，阻塞直到 ctx 取消（随后优雅关闭）或监听出错。
func (s *GinServer) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	close(s.ready)

	s.logger.Info("Starting Gin server", "addr", ln.Addr().String())

	errChan := make(chan error, 1)
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("Gin server stopping due to context cancellation")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errChan:
		return err
	}
}

// Stop 优雅地停止Gin服务器。
func (s *GinServer) Stop(ctx context.Context) error {
	s.logger.Info("Stopping Gin server gracefully")
	ctx, cancel := context.WithTimeout(ctx, defaultShutdownTimeout)
	defer cancel()
	return s.server.Shutdown(ctx)
}
