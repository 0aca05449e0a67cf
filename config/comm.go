package config

import (
	"errors"
	"fmt"
)

// CommConfig 通信子配置
//
// 这些值是每个新建通信子的初始状态，之后可以通过通信子上的开关修改。
type CommConfig struct {
	// EnableP2P 允许同主机邻居之间走点对点路径
	EnableP2P bool `json:"enable_p2p"`

	// EnableIntranode 允许同主机邻居之间走共享内存路径
	EnableIntranode bool `json:"enable_intranode"`

	// EnableGDR 启用 GPU-Direct RDMA
	EnableGDR bool `json:"enable_gdr"`

	// GDRDenylist 禁用 GDR 的设备编号
	GDRDenylist []int `json:"gdr_denylist,omitempty"`

	// DeterministicReduce 规约按进程号顺序进行，结果逐位可复现
	DeterministicReduce bool `json:"deterministic_reduce"`

	// GlobalReduction 引擎侧规约是否跨进程
	GlobalReduction bool `json:"global_reduction"`

	// AsyncReduction 异步规约
	AsyncReduction bool `json:"async_reduction"`

	// MaxMessageBytes 单次声明传输的最大字节数
	MaxMessageBytes int `json:"max_message_bytes"`
}

// DefaultCommConfig 返回默认通信子配置
func DefaultCommConfig() CommConfig {
	return CommConfig{
		EnableP2P:       true,
		EnableIntranode: true,
		GlobalReduction: true,
		MaxMessageBytes: 64 << 20,
	}
}

// ErrInvalidMessageLimit 消息上限非正
var ErrInvalidMessageLimit = errors.New("max_message_bytes must be positive")

// Validate 验证通信子配置
func (c CommConfig) Validate() error {
	if c.MaxMessageBytes <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidMessageLimit, c.MaxMessageBytes)
	}
	for _, id := range c.GDRDenylist {
		if id < 0 {
			return fmt.Errorf("gdr_denylist: negative device id %d", id)
		}
	}
	return nil
}

// GDRDenied 判断设备是否在 GDR 禁用列表中
func (c CommConfig) GDRDenied(device int) bool {
	for _, id := range c.GDRDenylist {
		if id == device {
			return true
		}
	}
	return false
}
