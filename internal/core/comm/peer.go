package comm

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/dep2p/go-commstack/pkg/types"
)

// 传输路径
const (
	PathPeerToPeer = "peer2peer"
	PathIntranode  = "intranode"
	PathTransport  = "transport"
)

// setup 构建集合操作：交换主机信息，计算邻居表，规约点对点链路数
func (c *Communicator) setup() error {
	if err := c.exchangeHostInfo(); err != nil {
		return err
	}

	me := c.topo.MyRank()
	links := int64(0)
	for dir := types.Backward; dir <= types.Forward; dir++ {
		for dim := 0; dim < types.NDim; dim++ {
			nb := c.topo.NeighborRank(dir, dim)
			same := nb != me && c.hosts[nb] == c.hosts[me]
			c.intranode[dir][dim] = same
			c.peer2peer[dir][dim] = same && c.cfg.EnableP2P
			if c.peer2peer[dir][dim] {
				links++
			}
		}
	}

	total, err := c.AllReduceInt(links)
	if err != nil {
		return fmt.Errorf("规约点对点链路数: %w", err)
	}
	c.peer2peerPresent = total > 0
	c.gdrDenylisted = c.cfg.GDRDenied(c.devices[me])
	return nil
}

// exchangeHostInfo 全收集组内每个成员的主机名与设备号
func (c *Communicator) exchangeHostInfo() error {
	rec := protowire.AppendVarint(nil, uint64(c.tr.DeviceID()))
	rec = protowire.AppendString(rec, c.tr.Hostname())

	all, err := c.allgatherBytes(c.nextSeq(), rec)
	if err != nil {
		return fmt.Errorf("交换主机信息: %w", err)
	}

	c.hosts = make([]string, len(all))
	c.devices = make([]int, len(all))
	for r, b := range all {
		dev, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return fmt.Errorf("rank %d host info: %w", r, protowire.ParseError(n))
		}
		host, m := protowire.ConsumeString(b[n:])
		if m < 0 {
			return fmt.Errorf("rank %d host info: %w", r, protowire.ParseError(m))
		}
		c.devices[r] = int(dev)
		c.hosts[r] = host
	}
	return nil
}

// ============================================================================
//                              点对点 / 节点内 / GDR
// ============================================================================

// PeerToPeerPresent 组内是否存在任意点对点链路
func (c *Communicator) PeerToPeerPresent() bool {
	c.ensureOpen("PeerToPeerPresent")
	return c.peer2peerPresent
}

// PeerToPeerEnabledGlobal 点对点开关打开且存在链路
func (c *Communicator) PeerToPeerEnabledGlobal() bool {
	c.ensureOpen("PeerToPeerEnabledGlobal")
	return c.peer2peerToggle.Load() && c.peer2peerPresent
}

// PeerToPeerEnabled 某个邻居方向是否走点对点
func (c *Communicator) PeerToPeerEnabled(dir types.Direction, dim int) bool {
	c.ensureOpen("PeerToPeerEnabled")
	c.checkDir(dir)
	c.checkDim(dim)
	return c.peer2peerToggle.Load() && c.peer2peer[dir][dim]
}

// EnablePeerToPeer 设置点对点开关
func (c *Communicator) EnablePeerToPeer(enable bool) {
	c.ensureOpen("EnablePeerToPeer")
	c.peer2peerToggle.Store(enable)
}

// IntranodeEnabled 某个邻居方向是否走节点内路径
func (c *Communicator) IntranodeEnabled(dir types.Direction, dim int) bool {
	c.ensureOpen("IntranodeEnabled")
	c.checkDir(dir)
	c.checkDim(dim)
	return c.intranodeToggle.Load() && c.intranode[dir][dim]
}

// EnableIntranode 设置节点内开关
func (c *Communicator) EnableIntranode(enable bool) {
	c.ensureOpen("EnableIntranode")
	c.intranodeToggle.Store(enable)
}

// GDREnabled GDR 开关打开且本设备不在禁用列表中
func (c *Communicator) GDREnabled() bool {
	c.ensureOpen("GDREnabled")
	return c.gdrToggle.Load() && !c.gdrDenylisted
}

// EnableGDR 设置 GDR 开关
func (c *Communicator) EnableGDR(enable bool) {
	c.ensureOpen("EnableGDR")
	c.gdrToggle.Store(enable)
}

// GDRDenylisted 本设备是否在 GDR 禁用列表中
func (c *Communicator) GDRDenylisted() bool {
	c.ensureOpen("GDRDenylisted")
	return c.gdrDenylisted
}

// pathTo 按当前开关选择到组内进程 peer 的路径
func (c *Communicator) pathTo(peer int) string {
	me := c.topo.MyRank()
	if peer != me && c.hosts[peer] == c.hosts[me] {
		if c.peer2peerToggle.Load() && c.peer2peerPresent {
			return PathPeerToPeer
		}
		if c.intranodeToggle.Load() {
			return PathIntranode
		}
	}
	return PathTransport
}

// ============================================================================
//                              诊断
// ============================================================================

// Hostname 本进程主机名
func (c *Communicator) Hostname() string {
	c.ensureOpen("Hostname")
	return c.tr.Hostname()
}

// DeviceID 本进程设备号
func (c *Communicator) DeviceID() int {
	c.ensureOpen("DeviceID")
	return c.tr.DeviceID()
}

// GatherHostnames 组内 0 号进程收到所有成员的主机名，其他进程得到 nil
func (c *Communicator) GatherHostnames() ([]string, error) {
	c.ensureOpen("GatherHostnames")
	all, err := c.gatherBytes(c.nextSeq(), []byte(c.tr.Hostname()))
	c.logCollective("gather")
	if err != nil || all == nil {
		return nil, err
	}
	out := make([]string, len(all))
	for r, b := range all {
		out[r] = string(b)
	}
	return out, nil
}

// GatherDeviceIDs 组内 0 号进程收到所有成员的设备号，其他进程得到 nil
func (c *Communicator) GatherDeviceIDs() ([]int, error) {
	c.ensureOpen("GatherDeviceIDs")
	all, err := c.gatherBytes(c.nextSeq(), protowire.AppendVarint(nil, uint64(c.tr.DeviceID())))
	c.logCollective("gather")
	if err != nil || all == nil {
		return nil, err
	}
	out := make([]int, len(all))
	for r, b := range all {
		v, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return nil, fmt.Errorf("rank %d device id: %w", r, protowire.ParseError(n))
		}
		out[r] = int(v)
	}
	return out, nil
}
