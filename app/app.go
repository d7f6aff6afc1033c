// Package app 提供了应用程序的构建和管理功能，包括服务的启动、停止和资源清理。
package app

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wyfcoding/fixrelay/server"
)

const defaultShutdownTimeout = 10 * time.Second

// App 管理服务器与清理函数的生命周期。
type App struct {
	name   string
	logger *slog.Logger
	opts   options
	ctx    context.Context
	cancel context.CancelFunc
}

// New 创建一个新的应用程序实例。
func New(name string, logger *slog.Logger, opts ...Option) *App {
	o := options{shutdownTimeout: defaultShutdownTimeout}
	for _, opt := range opts {
		opt(&o)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &App{
		name:   name,
		logger: logger,
		opts:   o,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Run 启动所有服务器并阻塞，直到收到 SIGINT/SIGTERM、调用 Stop 或任一服务器启动失败；
// 随后在超时内停止服务器并按注册的逆序执行清理函数。
func (a *App) Run() error {
	a.logger.Info("application starting", "name", a.name, "pid", os.Getpid())

	for _, srv := range a.opts.servers {
		go func(s server.Server) {
			if err := s.Start(a.ctx); err != nil {
				a.logger.Error("server failed to start", "error", err)
				a.cancel()
			}
		}(srv)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		a.logger.Info("shutting down application", "name", a.name, "signal", sig.String())
	case <-a.ctx.Done():
		a.logger.Info("shutting down application", "name", a.name)
	}
	a.cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), a.opts.shutdownTimeout)
	defer shutdownCancel()

	var stopErr error
	for _, srv := range a.opts.servers {
		if err := srv.Stop(shutdownCtx); err != nil {
			a.logger.Error("server failed to stop", "error", err)
			stopErr = err
		}
	}

	for i := len(a.opts.cleanups) - 1; i >= 0; i-- {
		a.opts.cleanups[i]()
	}

	if stopErr != nil {
		return stopErr
	}
	a.logger.Info("application shut down gracefully")
	return nil
}

// Stop 触发与收到退出信号相同的关闭流程。
func (a *App) Stop() {
	a.cancel()
}
