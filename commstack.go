package commstack

import (
	"github.com/dep2p/go-commstack/internal/core/metrics"
	"github.com/dep2p/go-commstack/pkg/interfaces"
	"github.com/dep2p/go-commstack/pkg/types"
)

// ════════════════════════════════════════════════════════════════════════════
//                              版本信息
// ════════════════════════════════════════════════════════════════════════════

// Version 当前版本
const Version = "v0.1.0"

// BuildInfo 构建信息（通过 ldflags 注入）
var (
	// GitCommit Git 提交哈希
	GitCommit string

	// BuildDate 构建日期
	BuildDate string
)

// VersionInfo 返回完整版本信息字符串
func VersionInfo() string {
	info := "commstack " + Version
	if GitCommit != "" {
		info += " (" + GitCommit[:min(8, len(GitCommit))] + ")"
	}
	if BuildDate != "" {
		info += " built " + BuildDate
	}
	return info
}

// ════════════════════════════════════════════════════════════════════════════
//                              类型别名
// ════════════════════════════════════════════════════════════════════════════

// Communicator 通信子
type Communicator = interfaces.Communicator

// MsgHandle 消息句柄
type MsgHandle = interfaces.MsgHandle

// Transport 进程间传输
type Transport = interfaces.Transport

// Reporter 流量与集合操作统计
type Reporter = metrics.Reporter

// CommKey 拓扑键
type CommKey = types.CommKey

// DefaultKey 默认拓扑键
var DefaultKey = types.DefaultKey
