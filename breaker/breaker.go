// Package breaker 提供了基于 gobreaker 的熔断器封装，状态变化写入日志与指标.
package breaker

import (
	"errors"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker"
	"github.com/wyfcoding/fixrelay/config"
	"github.com/wyfcoding/fixrelay/metrics"
)

// ErrServiceUnavailable 表示服务当前处于熔断状态。
var ErrServiceUnavailable = errors.New("service unavailable: circuit breaker is open")

// Breaker 封装了 gobreaker 实例。未启用时所有调用直接透传.
type Breaker struct {
	circuitBreaker *gobreaker.CircuitBreaker
}

// Settings 定义了熔断器的初始化参数。
type Settings struct {
	Name         string
	Config       config.CircuitBreakerConfig
	FailureRatio float64
	MinRequests  uint32
	// IsSuccessful 为空时所有非 nil 错误都计为失败.
	IsSuccessful func(err error) bool
}

// NewBreaker 初始化并返回一个新的熔断器封装对象。m 可以为 nil.
func NewBreaker(st Settings, m *metrics.Metrics) *Breaker {
	if !st.Config.Enabled {
		return &Breaker{}
	}

	failureRatio := st.FailureRatio
	if failureRatio <= 0 {
		failureRatio = 0.5
	}

	minRequests := st.MinRequests
	if minRequests == 0 {
		minRequests = 5
	}

	var gauge *prometheus.GaugeVec
	if m != nil {
		gauge = m.CircuitBreakerState
		gauge.WithLabelValues(st.Name).Set(float64(gobreaker.StateClosed))
	}

	gs := gobreaker.Settings{
		Name:         st.Name,
		MaxRequests:  st.Config.MaxRequests,
		Interval:     st.Config.Interval,
		Timeout:      st.Config.Timeout,
		IsSuccessful: st.IsSuccessful,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)

			return counts.Requests >= minRequests && ratio >= failureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit breaker state changed",
				"name", name,
				"from", from.String(),
				"to", to.String(),
			)
			if gauge != nil {
				gauge.WithLabelValues(name).Set(float64(to))
			}
		},
	}

	return &Breaker{circuitBreaker: gobreaker.NewCircuitBreaker(gs)}
}

// Enabled 报告熔断保护是否生效.
func (b *Breaker) Enabled() bool {
	return b != nil && b.circuitBreaker != nil
}

// State 返回当前状态，未启用时恒为 closed.
func (b *Breaker) State() gobreaker.State {
	if !b.Enabled() {
		return gobreaker.StateClosed
	}
	return b.circuitBreaker.State()
}

// Execute 执行受熔断保护的函数。
func (b *Breaker) Execute(fn func() (any, error)) (any, error) {
	return ExecuteTyped(b, fn)
}

// ExecuteTyped 是 Execute 的泛型版本。
func ExecuteTyped[T any](b *Breaker, fn func() (T, error)) (T, error) {
	if !b.Enabled() {
		return fn()
	}

	res, err := b.circuitBreaker.Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		var zero T
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, ErrServiceUnavailable
		}
		return zero, err
	}

	return res.(T), nil
}
