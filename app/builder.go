package app

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"reflect"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/fixrelay/config"
	"github.com/wyfcoding/fixrelay/health"
	"github.com/wyfcoding/fixrelay/idgen"
	"github.com/wyfcoding/fixrelay/logging"
	"github.com/wyfcoding/fixrelay/metrics"
	"github.com/wyfcoding/fixrelay/middleware"
	"github.com/wyfcoding/fixrelay/server"
	"github.com/wyfcoding/fixrelay/tracing"
)

const (
	defaultMetricsPath = "/metrics"
	healthPath         = "/sys/health"
	healthTimeout      = 3 * time.Second
)

// HealthReporter 由业务服务实现，用于向 /sys/health 注册依赖检查.
type HealthReporter interface {
	HealthCheckers() map[string]health.Checker
}

// Builder 提供了构建 App 的灵活方式.
type Builder struct {
	serviceName    string
	configPath     string
	configInstance any
	initService    func(any, *metrics.Metrics) (any, func(), error)
	registerGin    func(*gin.Engine, any)
	metricsPort    string
	appOpts        []Option
	health         *health.Registry
	ginMiddleware  []gin.HandlerFunc
}

// NewBuilder 创建一个新的应用构建器.
func NewBuilder(serviceName string) *Builder {
	return &Builder{
		serviceName: serviceName,
		health:      health.NewRegistry(),
	}
}

// WithConfig 设置配置实例，必须是 *config.Config 或内嵌 config.Config 的结构体指针.
func (b *Builder) WithConfig(conf any) *Builder {
	b.configInstance = conf

	return b
}

// WithConfigPath 指定配置文件路径，设置后不再解析 -conf 命令行参数.
func (b *Builder) WithConfigPath(path string) *Builder {
	b.configPath = path

	return b
}

// WithGin 注册 Gin 路由注册钩子.
func (b *Builder) WithGin(register func(*gin.Engine, any)) *Builder {
	b.registerGin = register

	return b
}

// WithService 注册核心业务初始化逻辑.
func (b *Builder) WithService(init func(any, *metrics.Metrics) (any, func(), error)) *Builder {
	b.initService = init

	return b
}

// WithMetrics 在独立端口暴露指标，不设置时挂在主 HTTP 服务的 metrics.path 上.
func (b *Builder) WithMetrics(port string) *Builder {
	b.metricsPort = port

	return b
}

// WithHealthChecker 添加自定义健康检查.
func (b *Builder) WithHealthChecker(name string, checker health.Checker) *Builder {
	b.health.Register(name, checker)

	return b
}

// WithGinMiddleware 添加 Gin 中间件，位于内置治理中间件之后.
func (b *Builder) WithGinMiddleware(mw ...gin.HandlerFunc) *Builder {
	b.ginMiddleware = append(b.ginMiddleware, mw...)

	return b
}

// Build 构建并组装完整的 App 实例，初始化失败时 panic.
func (b *Builder) Build() *App {
	cfg := b.loadConfig()
	loggerInstance := b.initLogger(&cfg)
	config.PrintWithMask(b.configInstance)

	if err := idgen.Init(cfg.Snowflake); err != nil {
		panic(fmt.Sprintf("failed to init id generator: %v", err))
	}

	if cfg.Tracing.Enabled {
		b.initTracing(&cfg, loggerInstance)
	}

	metricsInstance := b.initMetrics(&cfg)

	serviceInstance, cleanup := b.assembleService(metricsInstance, loggerInstance)
	b.appOpts = append(b.appOpts, WithCleanup(cleanup))

	if reporter, ok := serviceInstance.(HealthReporter); ok {
		for name, checker := range reporter.HealthCheckers() {
			b.health.Register(name, checker)
		}
	}

	config.RegisterReloadHook(func(c *config.Config) {
		loggerInstance.Info("config reloaded; fix codec options apply after restart", "log_level", c.Log.Level)
	})

	engine := b.buildEngine(&cfg, serviceInstance, metricsInstance, loggerInstance)
	addr := fmt.Sprintf("%s:%d", cfg.Server.HTTP.Addr, cfg.Server.HTTP.Port)
	srv := server.NewGinServer(engine, addr, loggerInstance.Logger, server.HTTPOptions{
		ReadTimeout:       cfg.Server.HTTP.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.HTTP.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.HTTP.WriteTimeout,
		IdleTimeout:       cfg.Server.HTTP.IdleTimeout,
		MaxHeaderBytes:    cfg.Server.HTTP.MaxHeaderBytes,
	})
	b.appOpts = append(b.appOpts, WithServer(srv))

	return New(b.serviceName, loggerInstance.Logger, b.appOpts...)
}

func (b *Builder) loadConfig() config.Config {
	path := b.configPath
	if path == "" {
		path = fmt.Sprintf("./configs/%s/config.toml", b.serviceName)
		flag.StringVar(&path, "conf", path, "path to config file")
		flag.Parse()
	}

	if b.configInstance == nil {
		b.configInstance = &config.Config{}
	}
	if err := config.Load(path, b.configInstance); err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	cfg, ok := extractConfig(b.configInstance)
	if !ok {
		panic("invalid config instance format")
	}
	return cfg
}

// extractConfig 从 *config.Config 或内嵌 config.Config 的结构体指针中取出基础配置.
func extractConfig(conf any) (config.Config, bool) {
	if c, ok := conf.(*config.Config); ok {
		return *c, true
	}

	val := reflect.ValueOf(conf)
	if val.Kind() != reflect.Ptr || val.Elem().Kind() != reflect.Struct {
		return config.Config{}, false
	}
	val = val.Elem()
	for i := range val.NumField() {
		field := val.Type().Field(i)
		if (field.Name == "Config" || field.Anonymous) && field.Type == reflect.TypeFor[config.Config]() {
			return val.Field(i).Interface().(config.Config), true
		}
	}
	return config.Config{}, false
}

func (b *Builder) initLogger(cfg *config.Config) *logging.Logger {
	loggerInstance := logging.NewFromConfig(logging.Config{
		Service:    b.serviceName,
		Module:     "app",
		Level:      cfg.Log.Level,
		Output:     cfg.Log.Output,
		File:       cfg.Log.File,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	})
	logging.SetDefault(loggerInstance)

	return loggerInstance
}

func (b *Builder) initTracing(cfg *config.Config, logger *logging.Logger) {
	tc := cfg.Tracing
	if tc.ServiceName == "" {
		tc.ServiceName = b.serviceName
	}
	shutdown, err := tracing.InitTracer(tc,
		tracing.WithVersion(cfg.Version),
		tracing.WithEnvironment(cfg.Server.Environment),
	)
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)

		return
	}

	b.appOpts = append(b.appOpts, WithCleanup(func() {
		if cleanupErr := shutdown(context.Background()); cleanupErr != nil {
			logger.Error("failed to shutdown tracer", "error", cleanupErr)
		}
	}))
}

func (b *Builder) initMetrics(cfg *config.Config) *metrics.Metrics {
	metricsInstance := metrics.NewMetrics(b.serviceName)
	metricsInstance.RegisterBuildInfo(b.serviceName, cfg.Version)
	metricsInstance.RegisterSizeMetrics()

	metricsPort := b.metricsPort
	if metricsPort == "" && cfg.Metrics.Enabled {
		metricsPort = cfg.Metrics.Port
	}
	if metricsPort != "" {
		b.appOpts = append(b.appOpts, WithCleanup(metricsInstance.ExposeHTTP(metricsPort)))
	}

	return metricsInstance
}

func (b *Builder) assembleService(m *metrics.Metrics, logger *logging.Logger) (instance any, cleanup func()) {
	if b.initService == nil {
		return nil, nil
	}

	instance, cleanup, err := b.initService(b.configInstance, m)
	if err != nil {
		logger.Error("failed to initialize service", "error", err)
		panic(err)
	}

	return instance, cleanup
}

// middlewareChain 返回内置中间件，顺序即执行顺序.
func (b *Builder) middlewareChain(cfg *config.Config, m *metrics.Metrics, logger *logging.Logger) []gin.HandlerFunc {
	metricsPath := cfg.Metrics.Path
	if metricsPath == "" {
		metricsPath = defaultMetricsPath
	}

	chain := []gin.HandlerFunc{middleware.Recovery(logger.Logger)}
	if cfg.Tracing.Enabled {
		chain = append(chain, middleware.TracingMiddleware(b.serviceName))
	}
	chain = append(chain,
		middleware.RequestID(),
		middleware.RequestContextEnricher(),
		middleware.TraceIDHeader(),
		middleware.Logger(logger.WithModule("access").Logger, cfg.Log.SlowThreshold),
		middleware.HTTPMetricsMiddlewareWithOptions(m, middleware.MetricsOptions{
			SlowThreshold: cfg.Log.SlowThreshold,
			SkipPaths:     []string{metricsPath, healthPath},
		}),
	)
	if cfg.RateLimit.Enabled {
		chain = append(chain, middleware.NewLocalRateLimitMiddleware(cfg.RateLimit.Rate, cfg.RateLimit.Burst))
	}
	if cfg.CircuitBreaker.Enabled {
		chain = append(chain, middleware.HTTPCircuitBreaker(cfg.CircuitBreaker, m))
	}
	chain = append(chain,
		middleware.TimeoutMiddleware(cfg.Server.HTTP.Timeout),
		middleware.MaxBodyBytes(cfg.Server.HTTP.MaxBodyBytes),
		middleware.HTTPErrorHandler(),
	)
	return append(chain, b.ginMiddleware...)
}

func (b *Builder) buildEngine(cfg *config.Config, svc any, m *metrics.Metrics, logger *logging.Logger) *gin.Engine {
	engine := server.NewDefaultGinEngine(cfg.Server.HTTP.TrustedProxies, b.middlewareChain(cfg, m, logger)...)

	b.registerAdminRoutes(engine, cfg, m)

	if b.registerGin != nil {
		b.registerGin(engine, svc)
	}

	return engine
}

func (b *Builder) registerAdminRoutes(engine *gin.Engine, cfg *config.Config, m *metrics.Metrics) {
	engine.GET(healthPath, func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
		defer cancel()

		report := b.health.Run(ctx)
		status := http.StatusOK
		if report.Status != health.StatusUp {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"status":    report.Status,
			"service":   b.serviceName,
			"version":   cfg.Version,
			"checks":    report.Checks,
			"timestamp": time.Now().Unix(),
		})
	})

	if cfg.Metrics.Enabled && b.metricsPort == "" && cfg.Metrics.Port == "" && m != nil {
		path := cfg.Metrics.Path
		if path == "" {
			path = defaultMetricsPath
		}

		engine.GET(path, gin.WrapH(m.Handler()))
	}
}
