// Package config 提供了统一的配置加载与管理能力.
package config

import (
	"fmt"
	"log/slog"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/wyfcoding/fixrelay/logging"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/viper"
)

// Config 全局顶级配置结构.
type Config struct {
	Version        string               `mapstructure:"version"        toml:"version"`
	Server         ServerConfig         `mapstructure:"server"         toml:"server"`
	Log            LogConfig            `mapstructure:"log"            toml:"log"`
	Tracing        TracingConfig        `mapstructure:"tracing"        toml:"tracing"`
	Metrics        MetricsConfig        `mapstructure:"metrics"        toml:"metrics"`
	Snowflake      SnowflakeConfig      `mapstructure:"snowflake"      toml:"snowflake"`
	RateLimit      RateLimitConfig      `mapstructure:"ratelimit"      toml:"ratelimit"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuitbreaker" toml:"circuitbreaker"`
	FIX            FIXConfig            `mapstructure:"fix"            toml:"fix"`
	Relay          RelayConfig          `mapstructure:"relay"          toml:"relay"`
}

// ServerConfig 定义服务器运行时的基础网络与环境参数.
type ServerConfig struct {
	Name        string `mapstructure:"name"        toml:"name"        validate:"required"`
	Environment string `mapstructure:"environment" toml:"environment" validate:"oneof=dev test prod"`
	HTTP        struct {
		Addr              string        `mapstructure:"addr"                toml:"addr"`
		Timeout           time.Duration `mapstructure:"timeout"             toml:"timeout"`
		ReadTimeout       time.Duration `mapstructure:"read_timeout"        toml:"read_timeout"`
		ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" toml:"read_header_timeout"`
		WriteTimeout      time.Duration `mapstructure:"write_timeout"       toml:"write_timeout"`
		IdleTimeout       time.Duration `mapstructure:"idle_timeout"        toml:"idle_timeout"`
		MaxHeaderBytes    int           `mapstructure:"max_header_bytes"    toml:"max_header_bytes"`
		MaxBodyBytes      int64         `mapstructure:"max_body_bytes"      toml:"max_body_bytes"`
		TrustedProxies    []string      `mapstructure:"trusted_proxies"     toml:"trusted_proxies"`
		Port              int           `mapstructure:"port"                toml:"port"                validate:"required,min=1,max=65535"`
	} `mapstructure:"http" toml:"http"`
}

// LogConfig 定义日志输出、级别与切割策略.
type LogConfig struct {
	Level         string        `mapstructure:"level"          toml:"level"          validate:"omitempty,oneof=debug info warn error"`
	Output        string        `mapstructure:"output"         toml:"output"         validate:"omitempty,oneof=stdout file both"` // 日志输出目标。
	File          string        `mapstructure:"file"           toml:"file"`                                                       // 日志文件路径。
	MaxSize       int           `mapstructure:"max_size"       toml:"max_size"`                                                   // 单个文件最大大小 (MB)。
	MaxBackups    int           `mapstructure:"max_backups"    toml:"max_backups"`
	MaxAge        int           `mapstructure:"max_age"        toml:"max_age"` // 最大保留天数。
	Compress      bool          `mapstructure:"compress"       toml:"compress"`
	SlowThreshold time.Duration `mapstructure:"slow_threshold" toml:"slow_threshold"` // HTTP 慢请求阈值。
}

// SnowflakeConfig 请求 ID 生成器参数.
type SnowflakeConfig struct {
	Type      string `mapstructure:"type"       toml:"type"       validate:"omitempty,oneof=snowflake sonyflake"`
	StartTime string `mapstructure:"start_time" toml:"start_time"`
	MachineID int64  `mapstructure:"machine_id" toml:"machine_id" validate:"min=0,max=65535"`
}

// TracingConfig 分布式链路追踪（OpenTelemetry）配置.
type TracingConfig struct {
	ServiceName  string  `mapstructure:"service_name"  toml:"service_name"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint" toml:"otlp_endpoint"`
	SamplerRatio float64 `mapstructure:"sampler_ratio" toml:"sampler_ratio" validate:"min=0,max=1"`
	Enabled      bool    `mapstructure:"enabled"       toml:"enabled"`
}

// MetricsConfig 普罗米修斯监控指标暴露配置.
type MetricsConfig struct {
	Port    string `mapstructure:"port"    toml:"port"`
	Path    string `mapstructure:"path"    toml:"path"`
	Enabled bool   `mapstructure:"enabled" toml:"enabled"`
}

// RateLimitConfig 定义令牌桶限流参数.
type RateLimitConfig struct {
	Rate    int  `mapstructure:"rate"    toml:"rate"`
	Burst   int  `mapstructure:"burst"   toml:"burst"`
	Enabled bool `mapstructure:"enabled" toml:"enabled"`
}

// CircuitBreakerConfig 定义熔断器（gobreaker）的保护策略.
type CircuitBreakerConfig struct {
	Interval    time.Duration `mapstructure:"interval"     toml:"interval"`
	Timeout     time.Duration `mapstructure:"timeout"      toml:"timeout"`
	MaxRequests uint32        `mapstructure:"max_requests" toml:"max_requests"`
	Enabled     bool          `mapstructure:"enabled"      toml:"enabled"`
}

// FIXConfig 定义编解码器的协议版本与格式选项.
type FIXConfig struct {
	Version string `mapstructure:"version" toml:"version" validate:"required"`
	// Separator 支持 "SOH"、单个可打印字符或 "0x01" 形式，空值表示 SOH.
	Separator            string `mapstructure:"separator"               toml:"separator"`
	Pretty               bool   `mapstructure:"pretty"                  toml:"pretty"`
	KeyStyle             string `mapstructure:"key_style"               toml:"key_style"               validate:"omitempty,oneof=tag name"`
	Unmatched            string `mapstructure:"unmatched"               toml:"unmatched"               validate:"omitempty,oneof=body header trailer reject"`
	AllowUnknownMsgTypes bool   `mapstructure:"allow_unknown_msg_types" toml:"allow_unknown_msg_types"`
	ValidateTypes        bool   `mapstructure:"validate_types"          toml:"validate_types"`
	LenientJSON          bool   `mapstructure:"lenient_json"            toml:"lenient_json"`
	Envelope             bool   `mapstructure:"envelope"                toml:"envelope"`
}

// SeparatorByte 解析分隔符配置.
func (c FIXConfig) SeparatorByte() (byte, error) {
	s := c.Separator
	switch {
	case s == "" || strings.EqualFold(s, "SOH"):
		return 0x01, nil
	case len(s) == 1:
		if s[0] == '=' {
			return 0, fmt.Errorf("separator must not be '='")
		}
		return s[0], nil
	case strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X"):
		n, err := strconv.ParseUint(s[2:], 16, 8)
		if err != nil || n == 0 || n == '=' {
			return 0, fmt.Errorf("invalid separator %q", s)
		}
		return byte(n), nil
	}
	return 0, fmt.Errorf("invalid separator %q", s)
}

// RelayConfig 定义转码结果向 Kafka 的转发.
type RelayConfig struct {
	Enabled bool        `mapstructure:"enabled" toml:"enabled"`
	Kafka   KafkaConfig `mapstructure:"kafka"   toml:"kafka"`
}

// KafkaConfig 定义 Kafka 生产者参数.
type KafkaConfig struct {
	Topic        string        `mapstructure:"topic"         toml:"topic"`
	Brokers      []string      `mapstructure:"brokers"       toml:"brokers"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"  toml:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"  toml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" toml:"write_timeout"`
	MaxAttempts  int           `mapstructure:"max_attempts"  toml:"max_attempts"`
	RequiredAcks int           `mapstructure:"required_acks" toml:"required_acks" validate:"oneof=-1 0 1"`
	Async        bool          `mapstructure:"async"         toml:"async"`
	DLQEnabled   bool          `mapstructure:"dlq_enabled"   toml:"dlq_enabled"`
	DLQTopic     string        `mapstructure:"dlq_topic"     toml:"dlq_topic"`
}

var (
	mu        sync.RWMutex
	vInstance = viper.New()
	onReload  []func(*Config)
)

// RegisterReloadHook 注册配置热更新回调。
func RegisterReloadHook(hook func(*Config)) {
	if hook == nil {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	onReload = append(onReload, hook)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.environment", "dev")
	v.SetDefault("server.http.port", 8080)
	v.SetDefault("server.http.timeout", 10*time.Second)
	v.SetDefault("server.http.max_body_bytes", 1<<20)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("fix.version", "FIX.4.2")
	v.SetDefault("fix.key_style", "tag")
	v.SetDefault("fix.unmatched", "body")
	v.SetDefault("relay.kafka.topic", "fix.tagvalue")
	v.SetDefault("relay.kafka.max_attempts", 3)
	v.SetDefault("relay.kafka.required_acks", -1)
	v.SetDefault("relay.kafka.dial_timeout", 3*time.Second)
	v.SetDefault("relay.kafka.write_timeout", 5*time.Second)
	v.SetDefault("circuitbreaker.timeout", 30*time.Second)
	v.SetDefault("circuitbreaker.interval", 60*time.Second)
	v.SetDefault("circuitbreaker.max_requests", 1)
}

// Load 读取 TOML 配置文件，应用 APP_ 前缀环境变量覆盖并校验，之后监听文件变化热更新.
func Load(path string, conf any) error {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	setDefaults(v)

	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config error: %w", err)
	}

	if err := v.Unmarshal(conf); err != nil {
		return fmt.Errorf("unmarshal config error: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(conf); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	if c, ok := conf.(*Config); ok {
		if _, err := c.FIX.SeparatorByte(); err != nil {
			return fmt.Errorf("config validation failed: fix.separator: %w", err)
		}
	}

	mu.Lock()
	vInstance = v
	mu.Unlock()

	v.OnConfigChange(func(event fsnotify.Event) {
		slog.Info("detecting config change", "file", event.Name)
		const debounceTimeout = 500 * time.Millisecond
		time.Sleep(debounceTimeout)

		if unmarshalErr := v.Unmarshal(conf); unmarshalErr != nil {
			slog.Error("reload config unmarshal failed", "error", unmarshalErr)

			return
		}

		applyLogLevel(conf)

		if validateErr := validate.Struct(conf); validateErr != nil {
			slog.Error("reload config validation failed", "error", validateErr)
		} else {
			slog.Info("config hot-reloaded and validated successfully")
		}

		if cfg, ok := conf.(*Config); ok {
			mu.RLock()
			hooks := onReload
			mu.RUnlock()
			for _, hook := range hooks {
				hook(cfg)
			}
		}
	})
	v.WatchConfig()

	return nil
}

// applyLogLevel 如果配置中有日志级别，自动更新全局日志级别.
func applyLogLevel(conf any) {
	if c, ok := conf.(*Config); ok {
		logging.SetLevel(c.Log.Level)
		return
	}
	val := reflect.ValueOf(conf)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}
	if val.Kind() != reflect.Struct {
		return
	}
	logField := val.FieldByName("Log")
	if logField.IsValid() && logField.Kind() == reflect.Struct {
		levelField := logField.FieldByName("Level")
		if levelField.IsValid() && levelField.Kind() == reflect.String {
			logging.SetLevel(levelField.String())
		}
	}
}

// PrintWithMask 脱敏打印当前配置.
func PrintWithMask(conf any) {
	masked, err := Masked(conf)
	if err != nil {
		slog.Error("failed to mask config for printing", "error", err)

		return
	}

	slog.Info("Current effective configuration", "config", masked)
}

// Masked 返回敏感字段被替换后的配置 JSON.
func Masked(conf any) (string, error) {
	json := jsoniter.ConfigCompatibleWithStandardLibrary
	data, err := json.Marshal(conf)
	if err != nil {
		return "", err
	}

	var configMap map[string]any
	if err := json.Unmarshal(data, &configMap); err != nil {
		return "", err
	}

	mask(configMap)

	out, err := json.MarshalIndent(configMap, "  ", "  ")
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func mask(configMap map[string]any) {
	sensitiveKeys := []string{"password", "secret", "dsn", "access_key", "api_key", "token"}

	for key, val := range configMap {
		if subMap, ok := val.(map[string]any); ok {
			mask(subMap)

			continue
		}

		if slice, ok := val.([]any); ok {
			for _, item := range slice {
				if itemMap, ok := item.(map[string]any); ok {
					mask(itemMap)
				}
			}

			continue
		}

		for _, sensitiveKey := range sensitiveKeys {
			if strings.Contains(strings.ToLower(key), sensitiveKey) {
				configMap[key] = "******"

				break
			}
		}
	}
}

// GetViper 返回最近一次 Load 使用的 Viper 实例.
func GetViper() *viper.Viper {
	mu.RLock()
	defer mu.RUnlock()
	return vInstance
}
