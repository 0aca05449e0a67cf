package commstack

import (
	"github.com/dep2p/go-commstack/pkg/interfaces"
	"github.com/dep2p/go-commstack/pkg/types"
)

// ════════════════════════════════════════════════════════════════════════════
//                              操作绑定
// ════════════════════════════════════════════════════════════════════════════
//
// 与拓扑无关的操作（邻居进程号、设备号、全局进程号与进程数）绑定到默认
// 通信子，其余操作绑定到当前通信子。两种上下文都在每次调用时解析，
// Select 之前取得的 CurrentContext 会跟随切换。

// Current 返回绑定到当前通信子的上下文
func (r *Registry) Current() CurrentContext { return CurrentContext{r: r} }

// Default 返回绑定到默认通信子的上下文
func (r *Registry) Default() DefaultContext { return DefaultContext{r: r} }

// DefaultContext 与拓扑无关的操作
type DefaultContext struct {
	r *Registry
}

// Communicator 返回默认通信子
func (d DefaultContext) Communicator() Communicator { return d.r.DefaultCommunicator() }

// NeighborRank 默认网格上的邻居进程号
func (d DefaultContext) NeighborRank(dir types.Direction, dim int) int {
	return d.Communicator().NeighborRank(dir, dim)
}

// DeviceID 本进程的设备号
func (d DefaultContext) DeviceID() int { return d.Communicator().DeviceID() }

// Rank 全局进程号
func (d DefaultContext) Rank() int { return d.Communicator().Rank() }

// Size 全局进程数
func (d DefaultContext) Size() int { return d.Communicator().Size() }

// CurrentContext 绑定到当前拓扑的操作
type CurrentContext struct {
	r *Registry
}

// Communicator 返回当前通信子
func (c CurrentContext) Communicator() Communicator { return c.r.CurrentCommunicator() }

// Key 当前拓扑键
func (c CurrentContext) Key() types.CommKey { return c.r.CurrentKey() }

// ────────────────────────────────────────────────────────────────────────────
// 拓扑查询
// ────────────────────────────────────────────────────────────────────────────

// Rank 当前网格上的进程号
func (c CurrentContext) Rank() int { return c.Communicator().Rank() }

// Size 当前网格的进程数
func (c CurrentContext) Size() int { return c.Communicator().Size() }

// Dim 当前网格第 dim 维的进程数
func (c CurrentContext) Dim(dim int) int { return c.Communicator().Dim(dim) }

// Coord 当前网格上第 dim 维的坐标
func (c CurrentContext) Coord(dim int) int { return c.Communicator().Coord(dim) }

// Coords 当前网格上的坐标
func (c CurrentContext) Coords() types.Coords { return c.Communicator().Coords() }

// RankDisplaced 当前网格上按位移偏移后的进程号
func (c CurrentContext) RankDisplaced(disp types.Displacement) int {
	return c.Communicator().RankDisplaced(disp)
}

// TopologyString 当前拓扑描述
func (c CurrentContext) TopologyString() string { return c.Communicator().TopologyString() }

// ────────────────────────────────────────────────────────────────────────────
// 分区覆盖
// ────────────────────────────────────────────────────────────────────────────

// DimPartitionedSet 强制第 dim 维视为已分区
func (c CurrentContext) DimPartitionedSet(dim int) { c.Communicator().DimPartitionedSet(dim) }

// DimPartitionedReset 清除所有覆盖标志
func (c CurrentContext) DimPartitionedReset() { c.Communicator().DimPartitionedReset() }

// DimPartitioned 第 dim 维是否分区
func (c CurrentContext) DimPartitioned(dim int) bool { return c.Communicator().DimPartitioned(dim) }

// Partitioned 是否有任意维分区
func (c CurrentContext) Partitioned() bool { return c.Communicator().Partitioned() }

// ────────────────────────────────────────────────────────────────────────────
// 点对点 / 节点内 / GDR
// ────────────────────────────────────────────────────────────────────────────

// PeerToPeerPresent 当前网格上是否存在点对点链路
func (c CurrentContext) PeerToPeerPresent() bool { return c.Communicator().PeerToPeerPresent() }

// PeerToPeerEnabledGlobal 点对点开关打开且存在链路
func (c CurrentContext) PeerToPeerEnabledGlobal() bool {
	return c.Communicator().PeerToPeerEnabledGlobal()
}

// PeerToPeerEnabled 某个邻居方向是否走点对点
func (c CurrentContext) PeerToPeerEnabled(dir types.Direction, dim int) bool {
	return c.Communicator().PeerToPeerEnabled(dir, dim)
}

// EnablePeerToPeer 设置当前通信子的点对点开关
func (c CurrentContext) EnablePeerToPeer(enable bool) { c.Communicator().EnablePeerToPeer(enable) }

// IntranodeEnabled 某个邻居方向是否走节点内路径
func (c CurrentContext) IntranodeEnabled(dir types.Direction, dim int) bool {
	return c.Communicator().IntranodeEnabled(dir, dim)
}

// EnableIntranode 设置当前通信子的节点内开关
func (c CurrentContext) EnableIntranode(enable bool) { c.Communicator().EnableIntranode(enable) }

// GDREnabled GDR 是否生效
func (c CurrentContext) GDREnabled() bool { return c.Communicator().GDREnabled() }

// EnableGDR 设置当前通信子的 GDR 开关
func (c CurrentContext) EnableGDR(enable bool) { c.Communicator().EnableGDR(enable) }

// GDRDenylisted 本设备是否在 GDR 禁用列表中
func (c CurrentContext) GDRDenylisted() bool { return c.Communicator().GDRDenylisted() }

// ────────────────────────────────────────────────────────────────────────────
// 消息声明与句柄
// ────────────────────────────────────────────────────────────────────────────

// DeclareSend 向当前网格上的 peer 声明发送
func (c CurrentContext) DeclareSend(buf []byte, peer, nbytes int) MsgHandle {
	return c.Communicator().DeclareSend(buf, peer, nbytes)
}

// DeclareReceive 从当前网格上的 peer 声明接收
func (c CurrentContext) DeclareReceive(buf []byte, peer, nbytes int) MsgHandle {
	return c.Communicator().DeclareReceive(buf, peer, nbytes)
}

// DeclareSendDisplaced 向位移方向声明发送
func (c CurrentContext) DeclareSendDisplaced(buf []byte, disp types.Displacement, nbytes int) MsgHandle {
	return c.Communicator().DeclareSendDisplaced(buf, disp, nbytes)
}

// DeclareReceiveDisplaced 从位移方向声明接收
func (c CurrentContext) DeclareReceiveDisplaced(buf []byte, disp types.Displacement, nbytes int) MsgHandle {
	return c.Communicator().DeclareReceiveDisplaced(buf, disp, nbytes)
}

// DeclareSendRelative 向 dim 维 dir 方向的邻居声明发送
func (c CurrentContext) DeclareSendRelative(buf []byte, dim int, dir types.Direction, nbytes int) MsgHandle {
	return c.Communicator().DeclareSendRelative(buf, dim, dir, nbytes)
}

// DeclareReceiveRelative 从 dim 维 dir 方向的邻居声明接收
func (c CurrentContext) DeclareReceiveRelative(buf []byte, dim int, dir types.Direction, nbytes int) MsgHandle {
	return c.Communicator().DeclareReceiveRelative(buf, dim, dir, nbytes)
}

// DeclareStridedSendDisplaced 声明跨步发送
func (c CurrentContext) DeclareStridedSendDisplaced(buf []byte, disp types.Displacement,
	blksize, nblocks, stride int) MsgHandle {
	return c.Communicator().DeclareStridedSendDisplaced(buf, disp, blksize, nblocks, stride)
}

// DeclareStridedReceiveDisplaced 声明跨步接收
func (c CurrentContext) DeclareStridedReceiveDisplaced(buf []byte, disp types.Displacement,
	blksize, nblocks, stride int) MsgHandle {
	return c.Communicator().DeclareStridedReceiveDisplaced(buf, disp, blksize, nblocks, stride)
}

// Start 发起句柄上的传输
func (CurrentContext) Start(h MsgHandle) error { return h.Start() }

// Wait 等待句柄上的传输完成
func (CurrentContext) Wait(h MsgHandle) error { return h.Wait() }

// Query 查询句柄上的传输是否完成
func (CurrentContext) Query(h MsgHandle) (bool, error) { return h.Query() }

// Free 释放句柄
func (CurrentContext) Free(h MsgHandle) { h.Free() }

// ────────────────────────────────────────────────────────────────────────────
// 集合通信
// ────────────────────────────────────────────────────────────────────────────

// AllReduceSum 当前网格上求和
func (c CurrentContext) AllReduceSum(v float64) (float64, error) {
	return c.Communicator().AllReduceSum(v)
}

// AllReduceMax 当前网格上求最大值
func (c CurrentContext) AllReduceMax(v float64) (float64, error) {
	return c.Communicator().AllReduceMax(v)
}

// AllReduceMin 当前网格上求最小值
func (c CurrentContext) AllReduceMin(v float64) (float64, error) {
	return c.Communicator().AllReduceMin(v)
}

// AllReduceSumArray 逐元素求和
func (c CurrentContext) AllReduceSumArray(data []float64) error {
	return c.Communicator().AllReduceSumArray(data)
}

// AllReduceMaxArray 逐元素求最大值
func (c CurrentContext) AllReduceMaxArray(data []float64) error {
	return c.Communicator().AllReduceMaxArray(data)
}

// AllReduceMinArray 逐元素求最小值
func (c CurrentContext) AllReduceMinArray(data []float64) error {
	return c.Communicator().AllReduceMinArray(data)
}

// AllReduceInt 整数求和
func (c CurrentContext) AllReduceInt(v int64) (int64, error) {
	return c.Communicator().AllReduceInt(v)
}

// AllReduceXor 按位异或
func (c CurrentContext) AllReduceXor(v uint64) (uint64, error) {
	return c.Communicator().AllReduceXor(v)
}

// AllReduceSumArrayAsync 发起异步逐元素求和
func (c CurrentContext) AllReduceSumArrayAsync(data []float64) interfaces.PendingReduction {
	return c.Communicator().AllReduceSumArrayAsync(data)
}

// ReduceSum 受全局规约开关控制的求和
func (c CurrentContext) ReduceSum(v float64) (float64, error) {
	return c.Communicator().ReduceSum(v)
}

// ReduceMax 受全局规约开关控制的最大值
func (c CurrentContext) ReduceMax(v float64) (float64, error) {
	return c.Communicator().ReduceMax(v)
}

// ReduceSumArray 受全局规约开关控制的逐元素求和
func (c CurrentContext) ReduceSumArray(data []float64) error {
	return c.Communicator().ReduceSumArray(data)
}

// Broadcast 从当前网格的 0 号进程广播
func (c CurrentContext) Broadcast(data []byte) error { return c.Communicator().Broadcast(data) }

// Barrier 当前网格内同步
func (c CurrentContext) Barrier() error { return c.Communicator().Barrier() }

// Abort 终止整个作业
func (c CurrentContext) Abort(status int) { c.Communicator().Abort(status) }

// ────────────────────────────────────────────────────────────────────────────
// 规约开关
// ────────────────────────────────────────────────────────────────────────────

// DeterministicReduce 当前通信子是否使用确定性规约
func (c CurrentContext) DeterministicReduce() bool { return c.Communicator().DeterministicReduce() }

// SetDeterministicReduce 设置当前通信子的确定性规约开关
func (c CurrentContext) SetDeterministicReduce(enable bool) {
	c.Communicator().SetDeterministicReduce(enable)
}

// GlobalReduction 当前通信子的全局规约开关
func (c CurrentContext) GlobalReduction() bool { return c.Communicator().GlobalReduction() }

// SetGlobalReduction 设置当前通信子的全局规约开关
func (c CurrentContext) SetGlobalReduction(enable bool) {
	c.Communicator().SetGlobalReduction(enable)
}

// AsyncReduction 当前通信子的异步规约开关
func (c CurrentContext) AsyncReduction() bool { return c.Communicator().AsyncReduction() }

// SetAsyncReduction 设置当前通信子的异步规约开关
func (c CurrentContext) SetAsyncReduction(enable bool) { c.Communicator().SetAsyncReduction(enable) }

// ────────────────────────────────────────────────────────────────────────────
// 诊断
// ────────────────────────────────────────────────────────────────────────────

// Hostname 本进程主机名
func (c CurrentContext) Hostname() string { return c.Communicator().Hostname() }

// GatherHostnames 0 号进程收集当前网格所有成员的主机名
func (c CurrentContext) GatherHostnames() ([]string, error) {
	return c.Communicator().GatherHostnames()
}

// GatherDeviceIDs 0 号进程收集当前网格所有成员的设备号
func (c CurrentContext) GatherDeviceIDs() ([]int, error) {
	return c.Communicator().GatherDeviceIDs()
}
