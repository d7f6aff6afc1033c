// Package kafka 提供基于 segmentio/kafka-go 的消息生产者，带链路透传、指标与死信队列.
package kafka

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/wyfcoding/fixrelay/config"
	"github.com/wyfcoding/fixrelay/contextx"
	"github.com/wyfcoding/fixrelay/logging"
	"github.com/wyfcoding/fixrelay/metrics"
	"github.com/wyfcoding/fixrelay/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// HeaderRequestID 是写入消息头的请求 ID 键.
const HeaderRequestID = "x-request-id"

// ErrClosed 表示生产者已关闭.
var ErrClosed = errors.New("kafka producer closed")

// messageWriter 抽象 *kafkago.Writer，便于替换.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

type producerMetrics struct {
	produced *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func newProducerMetrics(m *metrics.Metrics) *producerMetrics {
	if m == nil {
		return nil
	}
	return &producerMetrics{
		produced: m.NewCounterVec(prometheus.CounterOpts{
			Name: "mq_produced_total",
			Help: "消息生产总数",
		}, []string{"topic", "status"}),
		duration: m.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mq_operation_duration_seconds",
			Help:    "MQ操作耗时",
			Buckets: prometheus.DefBuckets,
		}, []string{"topic", "operation"}),
	}
}

// Producer 向单个 topic 写入消息，写入失败时转投死信 topic（若启用）.
type Producer struct {
	topic     string
	writer    messageWriter
	dlqWriter messageWriter
	logger    *logging.Logger
	metrics   *producerMetrics
	closed    chan struct{}
}

func requiredAcks(n int) kafkago.RequiredAcks {
	switch n {
	case 0:
		return kafkago.RequireNone
	case 1:
		return kafkago.RequireOne
	default:
		return kafkago.RequireAll
	}
}

// NewProducer 按配置创建生产者。m 为 nil 时不采集指标.
func NewProducer(cfg config.KafkaConfig, logger *logging.Logger, m *metrics.Metrics) *Producer {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	transport := &kafkago.Transport{DialTimeout: cfg.DialTimeout}

	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafkago.Hash{},
		WriteTimeout: cfg.WriteTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		MaxAttempts:  maxAttempts,
		RequiredAcks: requiredAcks(cfg.RequiredAcks),
		Async:        cfg.Async,
		Transport:    transport,
	}
	if cfg.Async {
		w.Completion = func(msgs []kafkago.Message, err error) {
			if err != nil {
				logger.Error("async publish failed", "topic", cfg.Topic, "count", len(msgs), "error", err)
			}
		}
	}

	var dlq messageWriter
	if cfg.DLQEnabled {
		dlqTopic := cfg.DLQTopic
		if dlqTopic == "" {
			dlqTopic = cfg.Topic + ".dlq"
		}
		dlq = &kafkago.Writer{
			Addr:         kafkago.TCP(cfg.Brokers...),
			Topic:        dlqTopic,
			Balancer:     &kafkago.LeastBytes{},
			RequiredAcks: kafkago.RequireOne,
			Transport:    transport,
		}
	}

	return newProducer(cfg.Topic, w, dlq, logger, m)
}

func newProducer(topic string, w, dlq messageWriter, logger *logging.Logger, m *metrics.Metrics) *Producer {
	return &Producer{
		topic:     topic,
		writer:    w,
		dlqWriter: dlq,
		logger:    logger.WithModule("kafka"),
		metrics:   newProducerMetrics(m),
		closed:    make(chan struct{}),
	}
}

// Topic 返回目标 topic.
func (p *Producer) Topic() string { return p.topic }

// Publish 写入一条消息，追踪上下文与请求 ID 写入消息头.
func (p *Producer) Publish(ctx context.Context, key, value []byte) error {
	select {
	case <-p.closed:
		return ErrClosed
	default:
	}

	start := time.Now()
	ctx, span := tracing.StartSpan(ctx, "kafka.publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination.name", p.topic),
		))
	defer span.End()

	carrier := tracing.InjectContext(ctx)
	headers := make([]kafkago.Header, 0, len(carrier)+1)
	for k, v := range carrier {
		headers = append(headers, kafkago.Header{Key: k, Value: []byte(v)})
	}
	if id := contextx.GetRequestID(ctx); id != "" {
		headers = append(headers, kafkago.Header{Key: HeaderRequestID, Value: []byte(id)})
	}

	msg := kafkago.Message{
		Key:     key,
		Value:   value,
		Headers: headers,
		Time:    time.Now(),
	}

	err := p.writer.WriteMessages(ctx, msg)
	if p.metrics != nil {
		p.metrics.duration.WithLabelValues(p.topic, "publish").Observe(time.Since(start).Seconds())
	}

	if err != nil {
		tracing.SetError(ctx, err)
		p.count("failed")
		p.logger.ErrorContext(ctx, "failed to publish message", "topic", p.topic, "error", err)
		if p.dlqWriter != nil {
			if dlqErr := p.dlqWriter.WriteMessages(ctx, msg); dlqErr != nil {
				p.logger.ErrorContext(ctx, "failed to write to DLQ", "error", dlqErr)
			} else {
				p.count("dlq")
			}
		}
		return err
	}

	p.count("success")
	return nil
}

func (p *Producer) count(status string) {
	if p.metrics != nil {
		p.metrics.produced.WithLabelValues(p.topic, status).Inc()
	}
}

// Close 关闭写入器，可重复调用.
func (p *Producer) Close() error {
	select {
	case <-p.closed:
		return nil
	default:
		close(p.closed)
	}

	var errs []error
	if p.dlqWriter != nil {
		if err := p.dlqWriter.Close(); err != nil {
			p.logger.Error("failed to close DLQ writer", "error", err)
			errs = append(errs, err)
		}
	}
	if err := p.writer.Close(); err != nil {
		p.logger.Error("failed to close writer", "error", err)
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
