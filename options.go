package commstack

import (
	"fmt"

	"github.com/dep2p/go-commstack/config"
	"github.com/dep2p/go-commstack/internal/core/comm"
	"github.com/dep2p/go-commstack/pkg/types"
)

// Option 注册表配置选项函数
type Option func(*options) error

// CommunicatorFactory 构建默认通信子
//
// 替换后可以接入其他通信后端；默认使用 comm.New。
type CommunicatorFactory func(cfg config.CommConfig, t Transport, dims types.CommKey,
	fn types.RankFromCoordsFunc, data any, reporter Reporter) (Communicator, error)

// options 内部选项结构
type options struct {
	config        *config.Config
	reporter      Reporter
	factory       CommunicatorFactory
	topologyLimit int
}

// WithConfig 使用给定配置（默认 config.NewConfig()）
func WithConfig(cfg *config.Config) Option {
	return func(o *options) error {
		if cfg == nil {
			return fmt.Errorf("config is nil")
		}
		o.config = cfg
		return nil
	}
}

// WithReporter 记录每个通信子的流量与集合操作
func WithReporter(r Reporter) Option {
	return func(o *options) error {
		o.reporter = r
		return nil
	}
}

// WithCommunicatorFactory 替换默认通信子的构建方式
func WithCommunicatorFactory(f CommunicatorFactory) Option {
	return func(o *options) error {
		if f == nil {
			return fmt.Errorf("communicator factory is nil")
		}
		o.factory = f
		return nil
	}
}

// WithTopologyLimit 覆盖配置中的拓扑数上限
func WithTopologyLimit(n int) Option {
	return func(o *options) error {
		if n < 1 {
			return fmt.Errorf("topology limit must be at least 1: %d", n)
		}
		o.topologyLimit = n
		return nil
	}
}

// defaultFactory 基于 comm 包构建默认通信子
func defaultFactory(cfg config.CommConfig, t Transport, dims types.CommKey,
	fn types.RankFromCoordsFunc, data any, reporter Reporter) (Communicator, error) {
	var opts []comm.Option
	if reporter != nil {
		opts = append(opts, comm.WithReporter(reporter))
	}
	return comm.New(cfg, t, dims, fn, data, opts...)
}
