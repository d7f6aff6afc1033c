package gateway

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wyfcoding/fixrelay/breaker"
	"github.com/wyfcoding/fixrelay/config"
	"github.com/wyfcoding/fixrelay/connectivity/fix"
	"github.com/wyfcoding/fixrelay/contextx"
	"github.com/wyfcoding/fixrelay/logging"
	"github.com/wyfcoding/fixrelay/metrics"
)

// Publisher 把编码后的报文投递到下游，实现为 messagequeue/kafka.Producer.
type Publisher interface {
	Publish(ctx context.Context, key, value []byte) error
	Close() error
}

// SessionOf 取报文头中的 SenderCompID 与 TargetCompID，缺失时为空串.
func SessionOf(msg *fix.Message) contextx.Session {
	sender, _ := msg.GetIn(fix.SectionHeader, fix.TagSenderCompID)
	target, _ := msg.GetIn(fix.SectionHeader, fix.TagTargetCompID)
	return contextx.Session{SenderCompID: sender, TargetCompID: target}
}

// Relay 在熔断保护下转发转码结果。
// 同一会话的报文使用相同的分区键，从而在 Kafka 中保持顺序.
type Relay struct {
	pub       Publisher
	breaker   *breaker.Breaker
	logger    *logging.Logger
	forwarded *prometheus.CounterVec
}

// NewRelay 创建转发器。m 可以为 nil.
func NewRelay(pub Publisher, cb config.CircuitBreakerConfig, m *metrics.Metrics, logger *logging.Logger) *Relay {
	r := &Relay{
		pub: pub,
		breaker: breaker.NewBreaker(breaker.Settings{
			Name:   "relay-kafka",
			Config: cb,
		}, m),
		logger: logger.WithModule("relay"),
	}
	if m != nil {
		r.forwarded = m.NewCounterVec(prometheus.CounterOpts{
			Name: "fix_relay_total",
			Help: "Relay attempts by result (ok, failed, rejected)",
		}, []string{"result"})
	}
	return r
}

// Forward 发布 payload，返回的错误仅供记录，不影响 HTTP 响应.
func (r *Relay) Forward(ctx context.Context, msg *fix.Message, payload []byte) error {
	key := SessionOf(msg).Key()
	_, err := r.breaker.Execute(func() (any, error) {
		return nil, r.pub.Publish(ctx, []byte(key), payload)
	})

	switch {
	case err == nil:
		r.count("ok")
		r.logger.DebugContext(ctx, "message relayed", "key", key, "bytes", len(payload))
	case errors.Is(err, breaker.ErrServiceUnavailable):
		r.count("rejected")
		r.logger.WarnContext(ctx, "relay skipped, circuit open", "key", key)
	default:
		r.count("failed")
		r.logger.ErrorContext(ctx, "relay failed", "key", key, "error", err)
	}
	return err
}

func (r *Relay) count(result string) {
	if r.forwarded != nil {
		r.forwarded.WithLabelValues(result).Inc()
	}
}

// Close 关闭底层 Publisher.
func (r *Relay) Close() error {
	return r.pub.Close()
}
