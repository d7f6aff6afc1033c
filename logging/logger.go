// Package logging 提供了统一的结构化日志（slog）封装，支持 OpenTelemetry 追踪上下文注入与运行时调整级别。
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"go.opentelemetry.io/otel/trace" // OpenTelemetry追踪
)

var (
	// defaultLogger 是全局默认的Logger实例，采用单例模式。
	defaultLogger *Logger
	// once 用于确保InitLogger函数只被执行一次，保证defaultLogger的单例性。
	once sync.Once
	// level 由所有经本包创建的 Handler 共享，SetLevel 修改后立即生效。
	level = new(slog.LevelVar)
)

// Config 定义日志配置
type Config struct {
	Service    string
	Module     string
	Level      string
	Output     string // stdout、file 或 both，为空时根据 File 推断
	File       string // 日志文件路径
	MaxSize    int    // 每个日志文件最大尺寸 (MB)
	MaxBackups int    // 保留旧日志文件的最大个数
	MaxAge     int    // 保留旧日志文件的最大天数
	Compress   bool   // 是否压缩旧日志

	// Writer 非空时替代 stdout，便于测试捕获输出。
	Writer io.Writer
}

// Logger 结构体封装了原生的 `*slog.Logger`，并添加了服务名和模块名，方便在日志中区分来源。
type Logger struct {
	*slog.Logger
	Service string // 服务名称
	Module  string // 模块名称
}

// TraceHandler 是一个自定义的 `slog.Handler` 装饰器，用于从 `context.Context` 中提取并注入 `trace_id` 和 `span_id` 到日志记录中。
type TraceHandler struct {
	slog.Handler
}

// Handle 在处理日志记录之前，尝试从上下文获取 SpanContext，有效时将 trace_id 和 span_id 添加到日志属性中。
func (h *TraceHandler) Handle(ctx context.Context, r slog.Record) error {
	spanCtx := trace.SpanContextFromContext(ctx)
	if spanCtx.IsValid() {
		r.AddAttrs(
			slog.String("trace_id", spanCtx.TraceID().String()),
			slog.String("span_id", spanCtx.SpanID().String()),
		)
	}
	return h.Handler.Handle(ctx, r)
}

func (h *TraceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &TraceHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *TraceHandler) WithGroup(name string) slog.Handler {
	return &TraceHandler{Handler: h.Handler.WithGroup(name)}
}

// ParseLevel 将配置字符串转换为 slog.Level，未知取值按 info 处理。
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetLevel 在运行时调整所有 Logger 的日志级别，配置热更新时调用。
func SetLevel(s string) {
	l := ParseLevel(s)
	if level.Level() == l {
		return
	}
	level.Set(l)
	slog.Info("log level changed", "level", l.String())
}

// Level 返回当前生效的日志级别。
func Level() slog.Level {
	return level.Level()
}

// NewFromConfig 创建一个新的Logger实例。
// 支持通过 Config 结构体配置日志切割。
func NewFromConfig(cfg Config) *Logger {
	level.Set(ParseLevel(cfg.Level))

	replaceAttr := func(groups []string, a slog.Attr) slog.Attr {
		if a.Key == slog.TimeKey {
			a.Key = "timestamp"
		}
		return a
	}
	opts := &slog.HandlerOptions{Level: level, ReplaceAttr: replaceAttr}

	var stdout io.Writer = os.Stdout
	if cfg.Writer != nil {
		stdout = cfg.Writer
	}

	output := cfg.Output
	if output == "" {
		output = "stdout"
		if cfg.File != "" {
			output = "file"
		}
	}
	if cfg.File == "" {
		output = "stdout"
	}

	var handler slog.Handler
	switch output {
	case "file", "both":
		// 使用 lumberjack 进行日志切割
		fileWriter := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSize, // MB
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge, // days
			Compress:   cfg.Compress,
		}
		handler = slog.NewJSONHandler(fileWriter, opts)
		if output == "both" {
			handler = newMultiHandler(handler, slog.NewJSONHandler(stdout, opts))
		}
	default:
		handler = slog.NewJSONHandler(stdout, opts)
	}

	logger := slog.New(&TraceHandler{Handler: handler}).With(
		slog.String("service", cfg.Service),
		slog.String("module", cfg.Module),
	)

	return &Logger{
		Logger:  logger,
		Service: cfg.Service,
		Module:  cfg.Module,
	}
}

// WithModule 返回共享 Handler、仅替换模块名的子 Logger。
func (l *Logger) WithModule(module string) *Logger {
	return &Logger{
		Logger:  l.Logger.With(slog.String("module", module)),
		Service: l.Service,
		Module:  module,
	}
}

// InitLogger 初始化全局默认日志记录器
func InitLogger(service, module string, level ...string) {
	lvl := "info"
	if len(level) > 0 {
		lvl = level[0]
	}
	SetDefault(NewFromConfig(Config{
		Service: service,
		Module:  module,
		Level:   lvl,
	}))
}

// SetDefault 将 logger 设为全局默认，并同步替换 slog 默认实例。只有第一次调用生效。
func SetDefault(logger *Logger) {
	once.Do(func() {
		defaultLogger = logger
		slog.SetDefault(logger.Logger)
	})
}

// Default 返回默认日志记录器实例
func Default() *Logger {
	if defaultLogger == nil {
		InitLogger("default", "default", "info")
	}
	return defaultLogger
}
