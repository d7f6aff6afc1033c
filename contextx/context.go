// Package contextx 提供在 context.Context 中注入与提取请求级信息（请求 ID、客户端 IP、UA、FIX 会话标识）的工具函数。
// 使用私有类型作为 Key，防止跨包冲突。
package contextx

import (
	"context"
	"log/slog"
)

type contextKey int

const (
	RequestIDKey contextKey = iota // 请求唯一标识 Key。
	IPKey                          // 客户端 IP Key。
	UAKey                          // 用户代理 Key。
	SessionKey                     // FIX 会话（SenderCompID/TargetCompID）Key。
)

// KeyNames 映射 Key 到日志字段名。
var KeyNames = map[contextKey]string{
	RequestIDKey: "request_id",
	IPKey:        "client_ip",
	UAKey:        "user_agent",
	SessionKey:   "session",
}

// Session 标识一对 FIX 通信方.
type Session struct {
	SenderCompID string
	TargetCompID string
}

// Key 返回 "SenderCompID|TargetCompID"，用作消息分区键.
func (s Session) Key() string {
	return s.SenderCompID + "|" + s.TargetCompID
}

// WithRequestID 将请求 ID 注入到 Context 中。
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID 从 Context 中提取请求 ID。
func GetRequestID(ctx context.Context) string {
	if val, ok := ctx.Value(RequestIDKey).(string); ok {
		return val
	}
	return ""
}

// WithIP 将客户端 IP 地址注入到 Context 中。
func WithIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, IPKey, ip)
}

// GetIP 从 Context 中尝试提取客户端 IP，若不存在则返回 "0.0.0.0"。
func GetIP(ctx context.Context) string {
	if val, ok := ctx.Value(IPKey).(string); ok {
		return val
	}
	return "0.0.0.0"
}

// WithUserAgent 将 User-Agent 信息注入到 Context 中。
func WithUserAgent(ctx context.Context, ua string) context.Context {
	return context.WithValue(ctx, UAKey, ua)
}

// GetUserAgent 从 Context 中尝试提取 User-Agent，若不存在则返回 "Unknown"。
func GetUserAgent(ctx context.Context) string {
	if val, ok := ctx.Value(UAKey).(string); ok {
		return val
	}
	return "Unknown"
}

// WithSession 记录当前报文所属的 FIX 会话。
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, SessionKey, s)
}

// GetSession 提取 FIX 会话。
func GetSession(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(SessionKey).(Session)
	return s, ok
}

// LogAttrs 把 Context 中已有的请求级字段转换为日志属性。
func LogAttrs(ctx context.Context) []any {
	var attrs []any
	if id := GetRequestID(ctx); id != "" {
		attrs = append(attrs, slog.String(KeyNames[RequestIDKey], id))
	}
	if ip, ok := ctx.Value(IPKey).(string); ok {
		attrs = append(attrs, slog.String(KeyNames[IPKey], ip))
	}
	if s, ok := GetSession(ctx); ok {
		attrs = append(attrs, slog.String(KeyNames[SessionKey], s.Key()))
	}
	return attrs
}
