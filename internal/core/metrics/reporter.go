package metrics

import (
	"github.com/dep2p/go-commstack/pkg/types"
)

// Reporter 通信子记录流量的接口
//
// 通信子在每次点对点传输、集合操作与关闭时调用；查询由 BandwidthCounter 提供。
type Reporter interface {
	// LogSent 记录发往 peer（全局进程号）的字节数
	LogSent(key types.CommKey, peer int, size int64)

	// LogRecv 记录来自 peer 的字节数
	LogRecv(key types.CommKey, peer int, size int64)

	// LogCollective 记录一次集合操作
	LogCollective(key types.CommKey, op string)

	// LogLeakedHandles 记录通信子关闭时未释放的句柄数
	LogLeakedHandles(key types.CommKey, n int)
}

// 确保 BandwidthCounter 实现 Reporter 接口
var _ Reporter = (*BandwidthCounter)(nil)
