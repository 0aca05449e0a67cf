package comm

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/dep2p/go-commstack/config"
	"github.com/dep2p/go-commstack/internal/core/topology"
	"github.com/dep2p/go-commstack/internal/util/logger"
	"github.com/dep2p/go-commstack/pkg/interfaces"
	"github.com/dep2p/go-commstack/pkg/types"
)

var log = logger.Logger("comm")

// Communicator 一个拓扑上的通信子
type Communicator struct {
	cfg  config.CommConfig
	opts options
	tr   interfaces.Transport
	log  *slog.Logger

	key   types.CommKey
	topo  *topology.Topology
	group []int // 组内编号 -> 全局编号
	ctxID uint32

	// 构建时交换得到的组内主机名与设备号
	hosts   []string
	devices []int

	// 集合操作序号，按调用顺序分配
	seq atomic.Uint64

	partitioned [types.NDim]atomic.Bool

	// 构建时计算的邻居表
	intranode        [types.NumDirections][types.NDim]bool
	peer2peer        [types.NumDirections][types.NDim]bool
	peer2peerPresent bool
	gdrDenylisted    bool

	// 运行时开关
	peer2peerToggle atomic.Bool
	intranodeToggle atomic.Bool
	gdrToggle       atomic.Bool
	deterministic   atomic.Bool
	globalReduction atomic.Bool
	asyncReduction  atomic.Bool

	handlesMu sync.Mutex
	handles   map[*msgHandle]struct{}
	closed    atomic.Bool
}

var _ interfaces.Communicator = (*Communicator)(nil)

// New 构建默认通信子
//
// fn 必须是网格坐标到 [0, t.Size()) 的双射；返回的通信子组内编号即全局编号。
// 这是一次集合操作，所有进程必须同时调用。
func New(cfg config.CommConfig, t interfaces.Transport, dims types.CommKey,
	fn types.RankFromCoordsFunc, data any, opts ...Option) (*Communicator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := dims.Validate(); err != nil {
		return nil, err
	}
	if dims.Product() != t.Size() {
		return nil, fmt.Errorf("%w: grid %s has %d ranks, transport has %d",
			ErrGridMismatch, dims, dims.Product(), t.Size())
	}

	topo, err := topology.New(dims, fn, data, t.Rank())
	if err != nil {
		return nil, err
	}

	group := make([]int, t.Size())
	for i := range group {
		group[i] = i
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	return build(cfg, o, t, types.DefaultKey, contextID(0, types.DefaultKey), topo, group)
}

// Split 按 key 切分，返回本进程所在的子通信子
//
// 子网格在本地推导，之后在子进程组上执行构建集合操作。
func (c *Communicator) Split(key types.CommKey) (interfaces.Communicator, error) {
	c.ensureOpen("Split")
	if err := key.Validate(); err != nil {
		return nil, err
	}
	s, err := c.topo.Split(key)
	if err != nil {
		return nil, err
	}

	subTopo, err := topology.NewLex(s.SubDims, s.SubRank)
	if err != nil {
		return nil, err
	}
	group := make([]int, len(s.Members))
	for i, m := range s.Members {
		group[i] = c.group[m]
	}

	c.log.Debug("切分通信子", "key", key, "subDims", s.SubDims, "color", s.Color, "subRank", s.SubRank)
	return build(c.cfg, c.opts, c.tr, key, contextID(c.ctxID, key), subTopo, group)
}

// contextID 由父上下文与拓扑键派生上下文 ID
//
// 同一个键的不同颜色子网格得到相同的 ID，它们的成员互不相交。
func contextID(parent uint32, key types.CommKey) uint32 {
	h := fnv.New32a()
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], parent)
	_, _ = h.Write(b[:])
	_, _ = h.Write([]byte(key.String()))
	return h.Sum32()
}

func build(cfg config.CommConfig, o options, t interfaces.Transport, key types.CommKey,
	ctxID uint32, topo *topology.Topology, group []int) (*Communicator, error) {
	c := &Communicator{
		cfg:     cfg,
		opts:    o,
		tr:      t,
		key:     key,
		topo:    topo,
		group:   group,
		ctxID:   ctxID,
		handles: make(map[*msgHandle]struct{}),
		log:     log.With("key", key.String(), "rank", topo.MyRank()),
	}
	c.peer2peerToggle.Store(cfg.EnableP2P)
	c.intranodeToggle.Store(cfg.EnableIntranode)
	c.gdrToggle.Store(cfg.EnableGDR)
	c.deterministic.Store(cfg.DeterministicReduce)
	c.globalReduction.Store(cfg.GlobalReduction)
	c.asyncReduction.Store(cfg.AsyncReduction)

	if err := c.setup(); err != nil {
		return nil, fmt.Errorf("构建通信子 %s 失败: %w", key, err)
	}

	c.log.Debug("通信子已构建",
		"size", c.topo.Size(),
		"topo", c.topo.String(),
		"p2pPresent", c.peer2peerPresent,
		"gdrDenylisted", c.gdrDenylisted)
	return c, nil
}

// ============================================================================
//                              拓扑查询
// ============================================================================

// Key 拓扑键
func (c *Communicator) Key() types.CommKey {
	c.ensureOpen("Key")
	return c.key
}

// Rank 组内编号
func (c *Communicator) Rank() int {
	c.ensureOpen("Rank")
	return c.topo.MyRank()
}

// Size 组内进程数
func (c *Communicator) Size() int {
	c.ensureOpen("Size")
	return c.topo.Size()
}

// Dim 第 dim 维进程数
func (c *Communicator) Dim(dim int) int {
	c.ensureOpen("Dim")
	c.checkDim(dim)
	return c.topo.Dim(dim)
}

// Coord 本进程第 dim 维坐标
func (c *Communicator) Coord(dim int) int {
	c.ensureOpen("Coord")
	c.checkDim(dim)
	return c.topo.Coord(dim)
}

// Coords 本进程坐标
func (c *Communicator) Coords() types.Coords {
	c.ensureOpen("Coords")
	return c.topo.MyCoords()
}

// NeighborRank 周期邻居的组内编号
func (c *Communicator) NeighborRank(dir types.Direction, dim int) int {
	c.ensureOpen("NeighborRank")
	c.checkDir(dir)
	c.checkDim(dim)
	return c.topo.NeighborRank(dir, dim)
}

// RankDisplaced 位移后进程的组内编号
func (c *Communicator) RankDisplaced(disp types.Displacement) int {
	c.ensureOpen("RankDisplaced")
	return c.topo.RankDisplaced(disp)
}

// TopologyString 拓扑描述，如 "topo=2x2x1x1"
func (c *Communicator) TopologyString() string {
	c.ensureOpen("TopologyString")
	return c.topo.String()
}

// WorldRank 组内编号对应的全局编号
func (c *Communicator) WorldRank(rank int) int {
	c.ensureOpen("WorldRank")
	c.checkPeer(rank)
	return c.group[rank]
}

// ContextID 上下文 ID
func (c *Communicator) ContextID() uint32 {
	c.ensureOpen("ContextID")
	return c.ctxID
}

func (c *Communicator) checkDim(dim int) {
	if err := types.ValidateDim(dim); err != nil {
		fatal(err)
	}
}

func (c *Communicator) checkDir(dir types.Direction) {
	if err := dir.Validate(); err != nil {
		fatal(err)
	}
}

func (c *Communicator) checkPeer(rank int) {
	if rank < 0 || rank >= c.topo.Size() {
		fatalf(ErrInvalidPeer, "%d not in [0, %d)", rank, c.topo.Size())
	}
}

// ============================================================================
//                              分区覆盖
// ============================================================================

// DimPartitionedSet 强制将 dim 维视为已分区
func (c *Communicator) DimPartitionedSet(dim int) {
	c.ensureOpen("DimPartitionedSet")
	c.checkDim(dim)
	c.partitioned[dim].Store(true)
}

// DimPartitionedReset 清除所有覆盖
func (c *Communicator) DimPartitionedReset() {
	c.ensureOpen("DimPartitionedReset")
	for d := range c.partitioned {
		c.partitioned[d].Store(false)
	}
}

// DimPartitioned dim 维是否分区（被覆盖或进程数大于 1）
func (c *Communicator) DimPartitioned(dim int) bool {
	c.ensureOpen("DimPartitioned")
	c.checkDim(dim)
	return c.partitioned[dim].Load() || c.topo.Dim(dim) > 1
}

// Partitioned 是否有任意一维分区
func (c *Communicator) Partitioned() bool {
	c.ensureOpen("Partitioned")
	for d := 0; d < types.NDim; d++ {
		if c.DimPartitioned(d) {
			return true
		}
	}
	return false
}

// ============================================================================
//                              规约开关
// ============================================================================

// DeterministicReduce 是否按进程号顺序规约
func (c *Communicator) DeterministicReduce() bool {
	c.ensureOpen("DeterministicReduce")
	return c.deterministic.Load()
}

// SetDeterministicReduce 设置确定性规约
func (c *Communicator) SetDeterministicReduce(enable bool) {
	c.ensureOpen("SetDeterministicReduce")
	c.deterministic.Store(enable)
}

// GlobalReduction 引擎侧规约是否跨进程
func (c *Communicator) GlobalReduction() bool {
	c.ensureOpen("GlobalReduction")
	return c.globalReduction.Load()
}

// SetGlobalReduction 设置全局规约
func (c *Communicator) SetGlobalReduction(enable bool) {
	c.ensureOpen("SetGlobalReduction")
	c.globalReduction.Store(enable)
}

// AsyncReduction 是否异步规约
func (c *Communicator) AsyncReduction() bool {
	c.ensureOpen("AsyncReduction")
	return c.asyncReduction.Load()
}

// SetAsyncReduction 设置异步规约
func (c *Communicator) SetAsyncReduction(enable bool) {
	c.ensureOpen("SetAsyncReduction")
	c.asyncReduction.Store(enable)
}

// ============================================================================
//                              关闭
// ============================================================================

// Close 报告并释放未释放的句柄；不涉及通信
//
// 关闭后除 Close 与 LiveHandles 外的方法都会以 ErrClosed panic。
func (c *Communicator) Close() error {
	c.handlesMu.Lock()
	if c.closed.Load() {
		c.handlesMu.Unlock()
		return nil
	}
	c.closed.Store(true)
	leaked := make([]*msgHandle, 0, len(c.handles))
	for h := range c.handles {
		leaked = append(leaked, h)
	}
	c.handles = make(map[*msgHandle]struct{})
	c.handlesMu.Unlock()

	for _, h := range leaked {
		h.release()
	}
	if n := len(leaked); n > 0 {
		c.log.Warn("通信子关闭时存在未释放的消息句柄", "count", n)
		if c.opts.reporter != nil {
			c.opts.reporter.LogLeakedHandles(c.key, n)
		}
	}
	return nil
}

// ensureOpen 关闭后的任何使用都是致命错误
func (c *Communicator) ensureOpen(op string) {
	if c.closed.Load() {
		fatalf(ErrClosed, "%s on closed communicator %s", op, c.key)
	}
}

// LiveHandles 尚未释放的句柄数
func (c *Communicator) LiveHandles() int {
	c.handlesMu.Lock()
	defer c.handlesMu.Unlock()
	return len(c.handles)
}
