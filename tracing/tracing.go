// Package tracing 初始化 OpenTelemetry 并提供转码与转发链路使用的 Span 工具.
package tracing

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/wyfcoding/fixrelay/config"
)

const tracerName = "github.com/wyfcoding/fixrelay"

type options struct {
	version     string
	environment string
	exporter    sdktrace.SpanExporter
}

// Option 补充资源属性或替换导出器.
type Option func(*options)

// WithVersion 写入 service.version.
func WithVersion(v string) Option {
	return func(o *options) { o.version = v }
}

// WithEnvironment 写入 deployment.environment.
func WithEnvironment(env string) Option {
	return func(o *options) { o.environment = env }
}

// WithExporter 使用给定导出器代替 OTLP gRPC.
func WithExporter(e sdktrace.SpanExporter) Option {
	return func(o *options) { o.exporter = e }
}

// InitTracer 安装全局 TracerProvider 与 W3C 传播器，返回的 shutdown 会刷出剩余 Span.
// 采样率未配置时全量采样.
func InitTracer(cfg config.TracingConfig, opts ...Option) (shutdown func(context.Context) error, err error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	ctx := context.Background()

	exporter := o.exporter
	if exporter == nil {
		exporter, err = otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlptracegrpc.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create otlp exporter: %w", err)
		}
	}

	attrs := []attribute.KeyValue{semconv.ServiceNameKey.String(cfg.ServiceName)}
	if o.version != "" {
		attrs = append(attrs, semconv.ServiceVersionKey.String(o.version))
	}
	if o.environment != "" {
		attrs = append(attrs, semconv.DeploymentEnvironmentKey.String(o.environment))
	}
	res, err := resource.New(ctx, resource.WithAttributes(attrs...))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	ratio := cfg.SamplerRatio
	if ratio <= 0 {
		ratio = 1.0
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	slog.Info("tracer provider initialized",
		"service", cfg.ServiceName,
		"endpoint", cfg.OTLPEndpoint,
		"sampler_ratio", ratio,
	)
	return tp.Shutdown, nil
}

// StartSpan 开始一个 Span，调用者负责 End.
//
//nolint:spancheck // 由调用方负责生命周期管理.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name, opts...)
}

// AddTag 给当前 Span 添加属性，未采样时不做任何事.
func AddTag(ctx context.Context, key string, value any) {
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.SetAttributes(keyValue(key, value))
	}
}

func keyValue(key string, value any) attribute.KeyValue {
	switch v := value.(type) {
	case string:
		return attribute.String(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case bool:
		return attribute.Bool(key, v)
	case float64:
		return attribute.Float64(key, v)
	case fmt.Stringer:
		return attribute.String(key, v.String())
	}
	return attribute.String(key, fmt.Sprint(value))
}

// SetError 记录错误并把 Span 状态置为 Error，err 为 nil 时忽略.
func SetError(ctx context.Context, err error) {
	if err == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// GetTraceID 返回当前 trace id，没有时为空串.
func GetTraceID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// InjectContext 将追踪上下文序列化为键值对，用作 Kafka 消息头.
func InjectContext(ctx context.Context) map[string]string {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	return carrier
}
