package config

import (
	"errors"
	"fmt"
	"time"
)

// TransportConfig 传输层配置
//
// 仅在调用方没有提供 Transport 时使用：注册表据此建立 TCP 全连接网格。
type TransportConfig struct {
	// Rank 本进程全局编号
	Rank int `json:"rank"`

	// Peers 所有进程的地址，按进程号排列（包含自己）
	Peers []string `json:"peers,omitempty"`

	// ListenAddr 本地监听地址，为空时使用 Peers[Rank]
	ListenAddr string `json:"listen_addr,omitempty"`

	// DialTimeout 建立全连接的总超时
	DialTimeout Duration `json:"dial_timeout"`

	// JobID 作业标识，握手时校验，防止串到别的作业
	JobID string `json:"job_id"`

	// Hostname 覆盖本机主机名（为空时使用 os.Hostname）
	Hostname string `json:"hostname,omitempty"`

	// DeviceID 本进程绑定的加速器编号
	DeviceID int `json:"device_id"`

	// MaxFrameBytes 单帧最大字节数
	MaxFrameBytes int `json:"max_frame_bytes"`
}

// DefaultTransportConfig 返回默认传输配置
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		DialTimeout:   Duration(30 * time.Second),
		JobID:         "commstack",
		MaxFrameBytes: 256 << 20,
	}
}

// 传输配置错误
var (
	// ErrInvalidRank 进程号越界
	ErrInvalidRank = errors.New("rank out of range")

	// ErrInvalidTimeout 超时非正
	ErrInvalidTimeout = errors.New("timeout must be positive")
)

// Validate 验证传输配置
//
// Peers 为空是合法的：调用方会自己提供 Transport。
func (c TransportConfig) Validate() error {
	if c.DialTimeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.MaxFrameBytes <= 0 {
		return fmt.Errorf("max_frame_bytes must be positive: %d", c.MaxFrameBytes)
	}
	if len(c.Peers) == 0 {
		return nil
	}
	if c.Rank < 0 || c.Rank >= len(c.Peers) {
		return fmt.Errorf("%w: %d of %d", ErrInvalidRank, c.Rank, len(c.Peers))
	}
	return nil
}

// LocalAddr 返回本地监听地址
func (c TransportConfig) LocalAddr() string {
	if c.ListenAddr != "" {
		return c.ListenAddr
	}
	if c.Rank >= 0 && c.Rank < len(c.Peers) {
		return c.Peers[c.Rank]
	}
	return ""
}
