// Package config 提供统一的配置管理
//
// 主 Config 结构体嵌入所有子配置，每个子配置在独立文件中定义：
//
//   - Grid:      进程网格与启动器使用的切分键
//   - Transport: 传输层（进程号、对端地址、超时）
//   - Comm:      通信子行为（P2P/GDR、规约模式、消息上限）
//   - Registry:  注册表（拓扑数量上限）
//   - Metrics:   流量统计
//
// 使用示例：
//
//	cfg := config.NewConfig()
//	cfg.Comm.DeterministicReduce = true
//	if err := cfg.ApplyEnv(); err != nil { ... }
//	if err := cfg.Validate(); err != nil { ... }
//
//	// 从 JSON 加载
//	cfg, err := config.LoadFile("commstack.json")
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config 是 commstack 的完整配置结构
type Config struct {
	// Grid 进程网格配置
	Grid GridConfig `json:"grid"`

	// Transport 传输层配置
	Transport TransportConfig `json:"transport"`

	// Comm 通信子配置
	Comm CommConfig `json:"comm"`

	// Registry 注册表配置
	Registry RegistryConfig `json:"registry"`

	// Metrics 流量统计配置
	Metrics MetricsConfig `json:"metrics"`
}

// NewConfig 创建默认配置
func NewConfig() *Config {
	return &Config{
		Grid:      DefaultGridConfig(),
		Transport: DefaultTransportConfig(),
		Comm:      DefaultCommConfig(),
		Registry:  DefaultRegistryConfig(),
		Metrics:   DefaultMetricsConfig(),
	}
}

// Validate 验证所有子配置
func (c *Config) Validate() error {
	if err := c.Grid.Validate(); err != nil {
		return fmt.Errorf("grid: %w", err)
	}
	if err := c.Transport.Validate(); err != nil {
		return fmt.Errorf("transport: %w", err)
	}
	if err := c.Comm.Validate(); err != nil {
		return fmt.Errorf("comm: %w", err)
	}
	if err := c.Registry.Validate(); err != nil {
		return fmt.Errorf("registry: %w", err)
	}
	return nil
}

// FromJSON 从 JSON 加载配置
//
// 未出现的字段保留默认值。
func FromJSON(data []byte) (*Config, error) {
	cfg := NewConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// LoadFile 从 JSON 文件加载配置
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return FromJSON(data)
}

// ToJSON 序列化为缩进 JSON
func (c *Config) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// MetricsConfig 流量统计配置
type MetricsConfig struct {
	// Enabled 是否统计每个通信子的收发字节
	Enabled bool `json:"enabled"`
}

// DefaultMetricsConfig 返回默认流量统计配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{Enabled: true}
}
