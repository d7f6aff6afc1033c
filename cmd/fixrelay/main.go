// fixrelay 是 FIX JSON 与 tag-value 双向转码网关.
package main

import (
	"github.com/gin-gonic/gin"

	"github.com/wyfcoding/fixrelay/app"
	"github.com/wyfcoding/fixrelay/config"
	"github.com/wyfcoding/fixrelay/connectivity/fix/gateway"
	"github.com/wyfcoding/fixrelay/logging"
	"github.com/wyfcoding/fixrelay/messagequeue/kafka"
	"github.com/wyfcoding/fixrelay/metrics"
)

const serviceName = "fixrelay"

func main() {
	cfg := &config.Config{}

	a := app.NewBuilder(serviceName).
		WithConfig(cfg).
		WithService(initService).
		WithGin(func(e *gin.Engine, svc any) {
			svc.(*gateway.Service).RegisterRoutes(e)
		}).
		Build()

	if err := a.Run(); err != nil {
		logging.Default().Error("application exited with error", "error", err)
	}
}

func initService(conf any, m *metrics.Metrics) (any, func(), error) {
	cfg := conf.(*config.Config)
	logger := logging.Default()

	opts := gateway.Options{Metrics: m, Logger: logger}
	if cfg.Relay.Enabled {
		opts.Publisher = kafka.NewProducer(cfg.Relay.Kafka, logger, m)
	}

	svc, err := gateway.NewService(cfg, opts)
	if err != nil {
		if opts.Publisher != nil {
			_ = opts.Publisher.Close()
		}
		return nil, nil, err
	}

	return svc, func() {
		if closeErr := svc.Close(); closeErr != nil {
			logger.Error("failed to close gateway", "error", closeErr)
		}
	}, nil
}
