package health

import (
	"context"
	"errors"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"
)

const defaultKafkaHealthTimeout = 2 * time.Second

// KafkaChecker 返回 Kafka 依赖健康检查函数。
func KafkaChecker(brokers []string, timeout time.Duration) Checker {
	return KafkaCheckerWithDialer(brokers, timeout, nil)
}

// KafkaCheckerWithDialer 依次拨号各个 broker，任意一个可获取集群元数据即视为健康。
func KafkaCheckerWithDialer(brokers []string, timeout time.Duration, dialer *kafkago.Dialer) Checker {
	if timeout <= 0 {
		timeout = defaultKafkaHealthTimeout
	}
	if dialer == nil {
		dialer = &kafkago.Dialer{Timeout: timeout}
	}

	return func() error {
		if len(brokers) == 0 {
			return errors.New("kafka brokers is empty")
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		var errs []error
		for _, addr := range brokers {
			conn, err := dialer.DialContext(ctx, "tcp", addr)
			if err != nil {
				errs = append(errs, fmt.Errorf("kafka dial %s failed: %w", addr, err))
				continue
			}
			_, err = conn.Brokers()
			_ = conn.Close()
			if err != nil {
				errs = append(errs, fmt.Errorf("kafka brokers fetch from %s failed: %w", addr, err))
				continue
			}
			return nil
		}
		return errors.Join(errs...)
	}
}
