package interfaces

import "github.com/dep2p/go-commstack/pkg/types"

// ============================================================================
//                              MsgHandle - 消息句柄
// ============================================================================

// MsgHandle 一次已声明的点对点传输
//
// 句柄由声明者独占，直到 Free。持久句柄在完成后可以再次 Start。
// 误用（传输中重启、传输中释放、释放后使用、重复释放）会触发 panic。
type MsgHandle interface {
	// ID 句柄唯一标识
	ID() string

	// Start 发起传输，立即返回
	Start() error

	// Wait 阻塞直到传输完成
	Wait() error

	// Query 非阻塞查询是否完成
	Query() (bool, error)

	// Free 释放句柄
	Free()

	// Path 声明时快照的传输路径（"peer2peer" / "intranode" / "transport"）
	Path() string
}

// PendingReduction 已发起但未完成的异步规约
type PendingReduction interface {
	// Wait 阻塞直到规约完成，结果已写回调用方数组
	Wait() error
}

// ============================================================================
//                              Communicator - 通信子契约
// ============================================================================

// Communicator 一个拓扑上的通信上下文
//
// 集合操作只在本通信子的进程组内进行，组内每个成员必须以相同顺序、
// 相同次数调用同一集合操作，否则作业死锁。
type Communicator interface {
	// ─────────────────────────────────────────────────────────────────────
	// 拓扑查询
	// ─────────────────────────────────────────────────────────────────────

	// Key 通信子的拓扑键（默认通信子为 types.DefaultKey）
	Key() types.CommKey
	Rank() int
	Size() int
	Dim(dim int) int
	Coord(dim int) int
	Coords() types.Coords
	NeighborRank(dir types.Direction, dim int) int
	RankDisplaced(disp types.Displacement) int
	TopologyString() string

	// Split 按 key 切分本通信子，返回本进程所在的子通信子
	Split(key types.CommKey) (Communicator, error)

	// ─────────────────────────────────────────────────────────────────────
	// 分区覆盖标志
	// ─────────────────────────────────────────────────────────────────────

	DimPartitionedSet(dim int)
	DimPartitionedReset()
	DimPartitioned(dim int) bool
	Partitioned() bool

	// ─────────────────────────────────────────────────────────────────────
	// 点对点 / 节点内 / GDR
	// ─────────────────────────────────────────────────────────────────────

	PeerToPeerPresent() bool
	PeerToPeerEnabledGlobal() bool
	PeerToPeerEnabled(dir types.Direction, dim int) bool
	EnablePeerToPeer(enable bool)
	IntranodeEnabled(dir types.Direction, dim int) bool
	EnableIntranode(enable bool)
	GDREnabled() bool
	EnableGDR(enable bool)
	GDRDenylisted() bool

	// ─────────────────────────────────────────────────────────────────────
	// 消息声明
	// ─────────────────────────────────────────────────────────────────────

	DeclareSend(buf []byte, peer, nbytes int) MsgHandle
	DeclareReceive(buf []byte, peer, nbytes int) MsgHandle
	DeclareSendDisplaced(buf []byte, disp types.Displacement, nbytes int) MsgHandle
	DeclareReceiveDisplaced(buf []byte, disp types.Displacement, nbytes int) MsgHandle
	DeclareSendRelative(buf []byte, dim int, dir types.Direction, nbytes int) MsgHandle
	DeclareReceiveRelative(buf []byte, dim int, dir types.Direction, nbytes int) MsgHandle
	DeclareStridedSendDisplaced(buf []byte, disp types.Displacement, blksize, nblocks, stride int) MsgHandle
	DeclareStridedReceiveDisplaced(buf []byte, disp types.Displacement, blksize, nblocks, stride int) MsgHandle

	// ─────────────────────────────────────────────────────────────────────
	// 集合通信
	// ─────────────────────────────────────────────────────────────────────

	AllReduceSum(v float64) (float64, error)
	AllReduceMax(v float64) (float64, error)
	AllReduceMin(v float64) (float64, error)
	AllReduceSumArray(data []float64) error
	AllReduceMaxArray(data []float64) error
	AllReduceMinArray(data []float64) error
	AllReduceInt(v int64) (int64, error)
	AllReduceXor(v uint64) (uint64, error)
	AllReduceSumArrayAsync(data []float64) PendingReduction
	Broadcast(data []byte) error
	Barrier() error
	Abort(status int)

	// ReduceSum / ReduceMax / ReduceSumArray 受全局规约开关控制
	ReduceSum(v float64) (float64, error)
	ReduceMax(v float64) (float64, error)
	ReduceSumArray(data []float64) error

	// ─────────────────────────────────────────────────────────────────────
	// 规约行为开关
	// ─────────────────────────────────────────────────────────────────────

	DeterministicReduce() bool
	SetDeterministicReduce(enable bool)
	GlobalReduction() bool
	SetGlobalReduction(enable bool)
	AsyncReduction() bool
	SetAsyncReduction(enable bool)

	// ─────────────────────────────────────────────────────────────────────
	// 诊断
	// ─────────────────────────────────────────────────────────────────────

	Hostname() string
	DeviceID() int
	GatherHostnames() ([]string, error)
	GatherDeviceIDs() ([]int, error)

	// Close 释放通信子（报告并释放泄漏的句柄）
	Close() error
}
