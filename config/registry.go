package config

import "fmt"

// RegistryConfig 注册表配置
type RegistryConfig struct {
	// MaxTopologies 作业中允许出现的不同拓扑数（含默认拓扑）
	//
	// 注册表从不淘汰通信子，每个拓扑都持有网络资源直到作业结束。
	// 多重网格层数和切分因子决定了这个上界，超出视为资源超限。
	MaxTopologies int `json:"max_topologies"`
}

// DefaultRegistryConfig 返回默认注册表配置
func DefaultRegistryConfig() RegistryConfig {
	return RegistryConfig{MaxTopologies: 16}
}

// Validate 验证注册表配置
func (c RegistryConfig) Validate() error {
	if c.MaxTopologies < 1 {
		return fmt.Errorf("max_topologies must be at least 1: %d", c.MaxTopologies)
	}
	return nil
}
