// Package idgen 提供分布式唯一 ID 生成器，用于请求 ID.
// 支持 Snowflake 和 Sonyflake 两种算法，可通过配置选择.
package idgen

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/sony/sonyflake"
	"github.com/wyfcoding/fixrelay/config"
)

var (
	// ErrUnsupportedType 不支持的 ID 生成器类型.
	ErrUnsupportedType = errors.New("unsupported id generator type")
	// ErrParseTime 解析时间失败.
	ErrParseTime = errors.New("failed to parse start time")
	// ErrCreateNode 创建 Snowflake 节点失败.
	ErrCreateNode = errors.New("failed to create snowflake node")
	// ErrCreateSonyflake 创建 Sonyflake 实例失败.
	ErrCreateSonyflake = errors.New("failed to create sonyflake instance")
	// ErrInvalidMachineID 错误的机器 ID.
	ErrInvalidMachineID = errors.New("machine_id must be between 0 and 65535")
)

const (
	nsPerMillisecond = 1000000
	maxRetries       = 3
)

// Generator 定义 ID 生成器接口.
type Generator interface {
	Generate() int64
}

// SnowflakeGenerator 使用雪花算法实现 Generator.
// 每毫秒可生成 4096 个 ID，支持 1024 台机器.
type SnowflakeGenerator struct {
	node *snowflake.Node
}

// NewSnowflakeGenerator 创建一个新的 SnowflakeGenerator.
func NewSnowflakeGenerator(cfg config.SnowflakeConfig) (*SnowflakeGenerator, error) {
	if cfg.StartTime != "" {
		st, err := time.Parse("2006-01-02", cfg.StartTime)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrParseTime, err)
		}
		snowflake.Epoch = st.UnixNano() / nsPerMillisecond
	}

	node, err := snowflake.NewNode(cfg.MachineID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCreateNode, err)
	}

	slog.Info("snowflake generator initialized", "machine_id", cfg.MachineID, "epoch", snowflake.Epoch)

	return &SnowflakeGenerator{node: node}, nil
}

// Generate 生成一个新的 ID.
func (g *SnowflakeGenerator) Generate() int64 {
	return g.node.Generate().Int64()
}

// SonyflakeGenerator 使用 Sonyflake 算法实现 Generator.
// 每 10 毫秒可生成 256 个 ID，支持 65536 台机器.
type SonyflakeGenerator struct {
	sf *sonyflake.Sonyflake
}

// NewSonyflakeGenerator 创建一个新的 SonyflakeGenerator.
func NewSonyflakeGenerator(cfg config.SnowflakeConfig) (*SonyflakeGenerator, error) {
	startTime := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	if cfg.StartTime != "" {
		st, err := time.Parse("2006-01-02", cfg.StartTime)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrParseTime, err)
		}
		startTime = st
	}

	if cfg.MachineID < 0 || cfg.MachineID > 65535 {
		return nil, ErrInvalidMachineID
	}
	machineID := uint16(cfg.MachineID)

	sf, err := sonyflake.New(sonyflake.Settings{
		StartTime: startTime,
		MachineID: func() (uint16, error) { return machineID, nil },
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCreateSonyflake, err)
	}

	slog.Info("sonyflake generator initialized", "machine_id", cfg.MachineID, "start_time", startTime)

	return &SonyflakeGenerator{sf: sf}, nil
}

// Generate 生成一个新的 ID，连续失败时返回 0.
func (g *SonyflakeGenerator) Generate() int64 {
	for i := range maxRetries {
		id, err := g.sf.NextID()
		if err == nil {
			return int64(id & 0x7FFFFFFFFFFFFFFF)
		}

		slog.Warn("sonyflake generator failed, retrying", "retry", i+1, "error", err)
		time.Sleep(10 * time.Millisecond)
	}

	slog.Error("sonyflake generator failed after multiple retries")

	return 0
}

// NewGenerator 根据配置创建对应类型的 ID 生成器.
func NewGenerator(cfg config.SnowflakeConfig) (Generator, error) {
	switch cfg.Type {
	case "sonyflake":
		return NewSonyflakeGenerator(cfg)
	case "snowflake", "":
		if cfg.MachineID > 1023 {
			return nil, fmt.Errorf("%w: snowflake machine_id %d out of range", ErrCreateNode, cfg.MachineID)
		}
		return NewSnowflakeGenerator(cfg)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, cfg.Type)
	}
}

var (
	defaultGenerator Generator
	mu               sync.Mutex
)

// Init 初始化全局默认生成器，只有第一次成功调用生效.
func Init(cfg config.SnowflakeConfig) error {
	mu.Lock()
	defer mu.Unlock()
	if defaultGenerator != nil {
		return nil
	}
	g, err := NewGenerator(cfg)
	if err != nil {
		return err
	}
	defaultGenerator = g
	return nil
}

// Default 返回全局默认生成器实例，未初始化时使用 machine_id=1 的 Snowflake.
func Default() Generator {
	if err := Init(config.SnowflakeConfig{MachineID: 1}); err != nil {
		panic(fmt.Errorf("failed to auto-initialize default id generator: %w", err))
	}
	mu.Lock()
	defer mu.Unlock()
	return defaultGenerator
}

// GenID 使用默认生成器生成非负唯一 ID.
func GenID() uint64 {
	return uint64(Default().Generate() & 0x7FFFFFFFFFFFFFFF)
}

// GenIDString 以十进制字符串返回 GenID.
func GenIDString() string {
	return strconv.FormatUint(GenID(), 10)
}
