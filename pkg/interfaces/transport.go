// Package interfaces 定义 commstack 公共接口
//
// 本文件定义 Transport 接口，抽象底层进程间传输。
package interfaces

// ============================================================================
//                              Envelope - 消息信封
// ============================================================================

// EnvelopeKind 信封类别
//
// 点对点与集合通信使用不同类别，二者的消息永远不会互相匹配。
type EnvelopeKind uint8

const (
	// KindPointToPoint 点对点消息
	KindPointToPoint EnvelopeKind = iota + 1
	// KindCollective 集合通信内部消息
	KindCollective
)

// String 返回类别名
func (k EnvelopeKind) String() string {
	switch k {
	case KindPointToPoint:
		return "p2p"
	case KindCollective:
		return "collective"
	default:
		return "unknown"
	}
}

// Envelope 消息匹配信封
//
// 接收方按 (源进程, Envelope) 精确匹配；同一 (源, Envelope) 上的消息保持 FIFO。
type Envelope struct {
	// Context 通信子上下文 ID
	Context uint32

	// Kind 消息类别
	Kind EnvelopeKind

	// Tag 消息标签
	Tag int64
}

// ============================================================================
//                              Transport - 传输接口
// ============================================================================

// Transport 进程间传输
//
// 进程号是传输层的全局编号（world rank），与具体通信子无关。
// 所有方法必须并发安全：异步规约会在后台 goroutine 中使用同一个 Transport。
type Transport interface {
	// Rank 本进程的全局编号
	Rank() int

	// Size 全局进程数
	Size() int

	// Hostname 本进程所在主机名
	Hostname() string

	// DeviceID 本进程绑定的加速器编号
	DeviceID() int

	// Send 急切发送：复制 payload 后立即返回，不等待接收方
	Send(dst int, env Envelope, payload []byte) error

	// Recv 阻塞接收来自 src、信封匹配的下一条消息
	Recv(src int, env Envelope) ([]byte, error)

	// TryRecv 非阻塞接收；没有消息时返回 ok=false
	TryRecv(src int, env Envelope) (payload []byte, ok bool, err error)

	// Abort 终止整个作业的所有进程
	Abort(status int)

	// Close 释放传输资源
	Close() error
}
