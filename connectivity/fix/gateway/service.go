// Package gateway 通过 HTTP 暴露 JSON 与 tag-value 之间的双向转码，并可把 tag-value 结果转发到 Kafka.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wyfcoding/fixrelay/config"
	"github.com/wyfcoding/fixrelay/connectivity/fix"
	"github.com/wyfcoding/fixrelay/connectivity/fix/fixjson"
	"github.com/wyfcoding/fixrelay/connectivity/fix/tagvalue"
	"github.com/wyfcoding/fixrelay/connectivity/fix/transcode"
	"github.com/wyfcoding/fixrelay/contextx"
	"github.com/wyfcoding/fixrelay/health"
	"github.com/wyfcoding/fixrelay/logging"
	"github.com/wyfcoding/fixrelay/metrics"
	"github.com/wyfcoding/fixrelay/response"
	"github.com/wyfcoding/fixrelay/xerrors"
)

const (
	RouteJSON     = "json_to_tagvalue"
	RouteTagValue = "tagvalue_to_json"

	greeting = "Hello, world!"
)

// Service 持有两个方向的 Transcoder 与可选的 Relay.
type Service struct {
	dict     *fix.Dictionary
	jsonToTV *transcode.Transcoder
	tvToJSON *transcode.Transcoder
	relay    *Relay
	health   map[string]health.Checker
	logger   *logging.Logger
}

// Options 是 NewService 的可选依赖，零值表示不启用.
type Options struct {
	Metrics *metrics.Metrics
	Logger  *logging.Logger
	// Publisher 非空且 relay.enabled 时启用转发.
	Publisher Publisher
}

// NewService 按配置构建编解码器。字典版本或格式选项非法时返回错误，调用方应终止启动.
func NewService(cfg *config.Config, opts Options) (*Service, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}
	logger = logger.WithModule("gateway")

	dict, err := fix.LoadDictionary(cfg.FIX.Version)
	if err != nil {
		return nil, err
	}
	sep, err := cfg.FIX.SeparatorByte()
	if err != nil {
		return nil, fmt.Errorf("fix.separator: %w", err)
	}
	unmatched, err := tagvalue.ParseUnmatched(cfg.FIX.Unmatched)
	if err != nil {
		return nil, fmt.Errorf("fix.unmatched: %w", err)
	}
	keyStyle, err := fixjson.ParseKeyStyle(cfg.FIX.KeyStyle)
	if err != nil {
		return nil, fmt.Errorf("fix.key_style: %w", err)
	}

	tv := tagvalue.NewCodec(dict, tagvalue.Config{
		Separator:                sep,
		Unmatched:                unmatched,
		AllowUnknownMessageTypes: cfg.FIX.AllowUnknownMsgTypes,
		Envelope:                 cfg.FIX.Envelope,
	})
	js := fixjson.NewCodec(dict, fixjson.Config{
		Pretty:                   cfg.FIX.Pretty,
		KeyStyle:                 keyStyle,
		Lenient:                  cfg.FIX.LenientJSON,
		AllowUnknownMessageTypes: cfg.FIX.AllowUnknownMsgTypes,
	})

	trOpts := []transcode.Option{
		transcode.WithLogger(logger.WithModule("transcode")),
		transcode.WithMetrics(transcode.NewMetrics(opts.Metrics)),
	}
	if cfg.FIX.ValidateTypes {
		trOpts = append(trOpts, transcode.WithValidator(fix.TypeValidator{}))
	}

	s := &Service{
		dict:     dict,
		jsonToTV: transcode.New(RouteJSON, js, tv, trOpts...),
		tvToJSON: transcode.New(RouteTagValue, tv, js, trOpts...),
		health:   make(map[string]health.Checker),
		logger:   logger,
	}

	if cfg.Relay.Enabled && opts.Publisher != nil {
		s.relay = NewRelay(opts.Publisher, cfg.CircuitBreaker, opts.Metrics, logger)
		s.health["kafka"] = health.KafkaChecker(cfg.Relay.Kafka.Brokers, cfg.Relay.Kafka.DialTimeout)
	}

	logger.Info("fix gateway ready",
		"version", dict.Version(),
		"separator", fmt.Sprintf("%q", sep),
		"relay", s.relay != nil,
		"validate_types", cfg.FIX.ValidateTypes,
	)
	return s, nil
}

// HealthCheckers 返回随服务启用的依赖检查.
func (s *Service) HealthCheckers() map[string]health.Checker {
	return s.health
}

// RegisterRoutes 注册转码路由.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, greeting)
	})
	r.POST("/fix-json", s.handle(s.jsonToTV, true))
	r.POST("/fix-tagvalue", s.handle(s.tvToJSON, false))
}

func (s *Service) handle(t *transcode.Transcoder, relay bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			response.Error(c, readError(err))
			return
		}

		res, err := t.Run(ctx, body)
		if err != nil {
			response.Error(c, httpError(err))
			return
		}

		ctx = contextx.WithSession(ctx, SessionOf(res.Message))
		c.Request = c.Request.WithContext(ctx)

		if relay && s.relay != nil {
			// 转发失败只记录，不影响本次响应。
			_ = s.relay.Forward(ctx, res.Message, res.Output)
		}

		response.Raw(c, t.Target().ContentType(), res.Output)
	}
}

// Transcode 供非 HTTP 调用方直接使用，route 取 RouteJSON 或 RouteTagValue.
func (s *Service) Transcode(ctx context.Context, route string, in []byte) ([]byte, error) {
	switch route {
	case RouteJSON:
		return s.jsonToTV.Transcode(ctx, in)
	case RouteTagValue:
		return s.tvToJSON.Transcode(ctx, in)
	}
	return nil, fmt.Errorf("unknown route %q", route)
}

// Close 释放 Relay 持有的连接.
func (s *Service) Close() error {
	if s.relay == nil {
		return nil
	}
	return s.relay.Close()
}

func readError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return xerrors.PayloadTooLarge("request body too large").
			WithDetail("limit is %d bytes", tooLarge.Limit)
	}
	return xerrors.InvalidArg("failed to read request body").WithDetail("%v", err)
}

// httpError 按阶段映射状态码：decode 400，validate 422，encode 500.
func httpError(err error) error {
	var te *transcode.Error
	if !errors.As(err, &te) {
		return xerrors.WrapInternal(err, "transcode failed")
	}

	var xe *xerrors.Error
	switch te.Stage {
	case transcode.StageDecode:
		xe = xerrors.InvalidArg("failed to decode message")
	case transcode.StageValidate:
		xe = xerrors.Unprocessable("message failed validation", nil)
	default:
		xe = xerrors.Internal("failed to encode message", nil)
	}
	xe = xe.WithDetail("%v", te.Err).
		WithContext("stage", te.Stage.String()).
		WithContext("kind", te.Kind().String())

	var fe *fix.Error
	if errors.As(te.Err, &fe) && fe.HasTag {
		xe = xe.WithContext("tag", uint32(fe.Tag))
	}
	return xe
}
