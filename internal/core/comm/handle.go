package comm

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/dep2p/go-commstack/internal/core/topology"
	"github.com/dep2p/go-commstack/pkg/interfaces"
	"github.com/dep2p/go-commstack/pkg/types"
)

// handleState 句柄状态
type handleState int

const (
	stateDeclared handleState = iota
	stateStarted
	stateCompleted
	stateFreed
)

func (s handleState) String() string {
	switch s {
	case stateDeclared:
		return "declared"
	case stateStarted:
		return "in-flight"
	case stateCompleted:
		return "completed"
	case stateFreed:
		return "freed"
	default:
		return "unknown"
	}
}

// layout 缓冲区布局；连续传输是 nblocks=1 的特例
type layout struct {
	blksize int
	nblocks int
	stride  int
}

func (l layout) bytes() int { return l.blksize * l.nblocks }

func (l layout) extent() int {
	if l.nblocks == 0 {
		return 0
	}
	return (l.nblocks-1)*l.stride + l.blksize
}

// msgHandle 已声明的点对点传输（持久句柄）
type msgHandle struct {
	id    string
	comm  *Communicator
	send  bool
	peer  int // 组内编号
	world int // 全局编号
	env   interfaces.Envelope
	buf   []byte
	lay   layout
	path  string

	mu    sync.Mutex
	state handleState
}

var _ interfaces.MsgHandle = (*msgHandle)(nil)

// ============================================================================
//                              声明
// ============================================================================

// DeclareSend 声明向组内进程 peer 发送 buf 的前 nbytes 字节
func (c *Communicator) DeclareSend(buf []byte, peer, nbytes int) interfaces.MsgHandle {
	c.ensureOpen("DeclareSend")
	c.checkPeer(peer)
	return c.declare(true, buf, peer, topology.PeerTag, layout{blksize: nbytes, nblocks: 1, stride: nbytes})
}

// DeclareReceive 声明从组内进程 peer 接收 nbytes 字节到 buf
func (c *Communicator) DeclareReceive(buf []byte, peer, nbytes int) interfaces.MsgHandle {
	c.ensureOpen("DeclareReceive")
	c.checkPeer(peer)
	return c.declare(false, buf, peer, topology.PeerTag, layout{blksize: nbytes, nblocks: 1, stride: nbytes})
}

// DeclareSendDisplaced 声明向位移 disp 处的进程发送
func (c *Communicator) DeclareSendDisplaced(buf []byte, disp types.Displacement, nbytes int) interfaces.MsgHandle {
	c.ensureOpen("DeclareSendDisplaced")
	c.checkDisplacement(disp)
	return c.declare(true, buf, c.topo.RankDisplaced(disp), topology.SendTag(disp),
		layout{blksize: nbytes, nblocks: 1, stride: nbytes})
}

// DeclareReceiveDisplaced 声明从位移 disp 处的进程接收
func (c *Communicator) DeclareReceiveDisplaced(buf []byte, disp types.Displacement, nbytes int) interfaces.MsgHandle {
	c.ensureOpen("DeclareReceiveDisplaced")
	c.checkDisplacement(disp)
	return c.declare(false, buf, c.topo.RankDisplaced(disp), topology.RecvTag(disp),
		layout{blksize: nbytes, nblocks: 1, stride: nbytes})
}

// DeclareSendRelative 声明向 dim 维 dir 方向的邻居发送
func (c *Communicator) DeclareSendRelative(buf []byte, dim int, dir types.Direction, nbytes int) interfaces.MsgHandle {
	c.ensureOpen("DeclareSendRelative")
	c.checkDim(dim)
	c.checkDir(dir)
	return c.DeclareSendDisplaced(buf, types.Relative(dim, dir), nbytes)
}

// DeclareReceiveRelative 声明从 dim 维 dir 方向的邻居接收
func (c *Communicator) DeclareReceiveRelative(buf []byte, dim int, dir types.Direction, nbytes int) interfaces.MsgHandle {
	c.ensureOpen("DeclareReceiveRelative")
	c.checkDim(dim)
	c.checkDir(dir)
	return c.DeclareReceiveDisplaced(buf, types.Relative(dim, dir), nbytes)
}

// DeclareStridedSendDisplaced 声明跨步发送：nblocks 个 blksize 字节的块，块起点间隔 stride
func (c *Communicator) DeclareStridedSendDisplaced(buf []byte, disp types.Displacement,
	blksize, nblocks, stride int) interfaces.MsgHandle {
	c.ensureOpen("DeclareStridedSendDisplaced")
	c.checkDisplacement(disp)
	return c.declare(true, buf, c.topo.RankDisplaced(disp), topology.SendTag(disp),
		layout{blksize: blksize, nblocks: nblocks, stride: stride})
}

// DeclareStridedReceiveDisplaced 声明跨步接收
func (c *Communicator) DeclareStridedReceiveDisplaced(buf []byte, disp types.Displacement,
	blksize, nblocks, stride int) interfaces.MsgHandle {
	c.ensureOpen("DeclareStridedReceiveDisplaced")
	c.checkDisplacement(disp)
	return c.declare(false, buf, c.topo.RankDisplaced(disp), topology.RecvTag(disp),
		layout{blksize: blksize, nblocks: nblocks, stride: stride})
}

func (c *Communicator) checkDisplacement(disp types.Displacement) {
	if err := topology.ValidateDisplacement(disp); err != nil {
		fatal(fmt.Errorf("%w: %w", ErrResourceLimit, err))
	}
}

func (c *Communicator) checkLayout(buf []byte, lay layout) {
	// 先做除法比较，乘积可能溢出 int
	switch {
	case lay.blksize < 0 || lay.nblocks < 0:
		fatalf(ErrResourceLimit, "negative block layout %d x %d", lay.blksize, lay.nblocks)
	case lay.nblocks > 1 && lay.blksize > lay.stride:
		fatalf(ErrResourceLimit, "block size %d exceeds stride %d", lay.blksize, lay.stride)
	case lay.nblocks > 0 && lay.blksize > c.cfg.MaxMessageBytes/lay.nblocks:
		fatalf(ErrResourceLimit, "message of %d blocks x %d bytes exceeds limit %d",
			lay.nblocks, lay.blksize, c.cfg.MaxMessageBytes)
	case lay.nblocks > 0 && lay.blksize > len(buf):
		fatalf(ErrResourceLimit, "block of %d bytes, buffer has %d", lay.blksize, len(buf))
	case lay.nblocks > 1 && lay.stride > (len(buf)-lay.blksize)/(lay.nblocks-1):
		fatalf(ErrResourceLimit, "%d blocks of %d bytes at stride %d overrun buffer of %d bytes",
			lay.nblocks, lay.blksize, lay.stride, len(buf))
	}
}

func (c *Communicator) declare(send bool, buf []byte, peer int, tag int64, lay layout) *msgHandle {
	c.checkLayout(buf, lay)

	h := &msgHandle{
		id:    uuid.New().String(),
		comm:  c,
		send:  send,
		peer:  peer,
		world: c.group[peer],
		env: interfaces.Envelope{
			Context: c.ctxID,
			Kind:    interfaces.KindPointToPoint,
			Tag:     tag,
		},
		buf:  buf,
		lay:  lay,
		path: c.pathTo(peer),
	}

	c.handlesMu.Lock()
	if c.closed.Load() {
		c.handlesMu.Unlock()
		fatalf(ErrClosed, "declare on closed communicator %s", c.key)
	}
	c.handles[h] = struct{}{}
	c.handlesMu.Unlock()

	c.log.Debug("声明消息句柄",
		"id", h.id,
		"send", send,
		"peer", peer,
		"bytes", lay.bytes(),
		"path", h.path)
	return h
}

// ============================================================================
//                              生命周期
// ============================================================================

// ID 句柄唯一标识
func (h *msgHandle) ID() string { return h.id }

// Path 声明时选择的传输路径
func (h *msgHandle) Path() string { return h.path }

func (h *msgHandle) misuse(op string) {
	fatalf(ErrHandleMisuse, "%s on %s handle %s", op, h.state, h.id)
}

// Start 发起传输；发送在返回前已复制数据
func (h *msgHandle) Start() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state == stateStarted || h.state == stateFreed {
		h.misuse("start")
	}
	h.state = stateStarted

	if !h.send {
		return nil
	}
	payload := h.pack()
	if err := h.comm.tr.Send(h.world, h.env, payload); err != nil {
		h.state = stateCompleted
		return fmt.Errorf("send to rank %d: %w", h.peer, err)
	}
	if r := h.comm.opts.reporter; r != nil {
		r.LogSent(h.comm.key, h.world, int64(len(payload)))
	}
	return nil
}

// Wait 阻塞直到传输完成；未发起或已完成的句柄立即返回
func (h *msgHandle) Wait() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch h.state {
	case stateFreed:
		h.misuse("wait")
	case stateDeclared, stateCompleted:
		return nil
	}

	h.state = stateCompleted
	if h.send {
		return nil
	}
	payload, err := h.comm.tr.Recv(h.world, h.env)
	if err != nil {
		return fmt.Errorf("receive from rank %d: %w", h.peer, err)
	}
	return h.deliver(payload)
}

// Query 非阻塞查询是否完成
func (h *msgHandle) Query() (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch h.state {
	case stateFreed:
		h.misuse("query")
	case stateDeclared, stateCompleted:
		return true, nil
	}

	if h.send {
		h.state = stateCompleted
		return true, nil
	}
	payload, ok, err := h.comm.tr.TryRecv(h.world, h.env)
	if err != nil {
		h.state = stateCompleted
		return true, fmt.Errorf("receive from rank %d: %w", h.peer, err)
	}
	if !ok {
		return false, nil
	}
	h.state = stateCompleted
	return true, h.deliver(payload)
}

// Free 释放句柄
func (h *msgHandle) Free() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state == stateStarted || h.state == stateFreed {
		h.misuse("free")
	}
	h.state = stateFreed

	c := h.comm
	c.handlesMu.Lock()
	delete(c.handles, h)
	c.handlesMu.Unlock()
}

// release 通信子关闭时强制释放
func (h *msgHandle) release() {
	h.mu.Lock()
	h.state = stateFreed
	h.mu.Unlock()
}

// ============================================================================
//                              打包 / 解包
// ============================================================================

func (h *msgHandle) pack() []byte {
	if h.lay.nblocks == 1 {
		return h.buf[:h.lay.blksize]
	}
	out := make([]byte, 0, h.lay.bytes())
	for b := 0; b < h.lay.nblocks; b++ {
		off := b * h.lay.stride
		out = append(out, h.buf[off:off+h.lay.blksize]...)
	}
	return out
}

func (h *msgHandle) deliver(payload []byte) error {
	if len(payload) != h.lay.bytes() {
		return fmt.Errorf("%w: rank %d sent %d bytes, declared %d", ErrTruncated, h.peer, len(payload), h.lay.bytes())
	}
	for b := 0; b < h.lay.nblocks; b++ {
		off := b * h.lay.stride
		copy(h.buf[off:off+h.lay.blksize], payload[b*h.lay.blksize:])
	}
	if r := h.comm.opts.reporter; r != nil {
		r.LogRecv(h.comm.key, h.world, int64(len(payload)))
	}
	return nil
}
