package comm

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dep2p/go-commstack/config"
	"github.com/dep2p/go-commstack/internal/core/transport/loopback"
	"github.com/dep2p/go-commstack/pkg/types"
)

func TestPeerToPeer_Tables(t *testing.T) {
	// 每台主机两个进程：node0 = {0,1}, node1 = {2,3}
	dims := types.CommKey{4, 1, 1, 1}
	runGrid(t, dims, config.DefaultCommConfig(), func(c *Communicator) error {
		assert.True(t, c.PeerToPeerPresent())
		assert.True(t, c.PeerToPeerEnabledGlobal())

		for _, dir := range []types.Direction{types.Backward, types.Forward} {
			nb := c.NeighborRank(dir, 0)
			same := nb/2 == c.Rank()/2
			assert.Equal(t, same, c.IntranodeEnabled(dir, 0), "dir %s", dir)
			assert.Equal(t, same, c.PeerToPeerEnabled(dir, 0), "dir %s", dir)

			// 尺寸为 1 的维度邻居是自己，不算节点内
			assert.False(t, c.IntranodeEnabled(dir, 1))
			assert.False(t, c.PeerToPeerEnabled(dir, 3))
		}

		c.EnablePeerToPeer(false)
		assert.False(t, c.PeerToPeerEnabledGlobal())
		assert.False(t, c.PeerToPeerEnabled(types.Forward, 0))
		assert.True(t, c.PeerToPeerPresent())

		c.EnableIntranode(false)
		assert.False(t, c.IntranodeEnabled(types.Forward, 0))
		assert.False(t, c.IntranodeEnabled(types.Backward, 0))
		return nil
	}, loopback.WithRanksPerHost(2))
}

func TestPeerToPeer_ConfigDisabled(t *testing.T) {
	cfg := config.DefaultCommConfig()
	cfg.EnableP2P = false

	runGrid(t, types.CommKey{2, 1, 1, 1}, cfg, func(c *Communicator) error {
		assert.False(t, c.PeerToPeerPresent())
		assert.False(t, c.PeerToPeerEnabledGlobal())
		assert.False(t, c.PeerToPeerEnabled(types.Forward, 0))
		assert.True(t, c.IntranodeEnabled(types.Forward, 0))

		// 打开开关也无法凭空产生链路
		c.EnablePeerToPeer(true)
		assert.False(t, c.PeerToPeerEnabledGlobal())
		return nil
	})
}

func TestPeerToPeer_AllRemote(t *testing.T) {
	runGrid(t, types.CommKey{2, 2, 1, 1}, config.DefaultCommConfig(), func(c *Communicator) error {
		assert.False(t, c.PeerToPeerPresent())
		assert.False(t, c.IntranodeEnabled(types.Forward, 0))
		return nil
	}, loopback.WithRanksPerHost(1))
}

func TestGDR(t *testing.T) {
	cfg := config.DefaultCommConfig()
	cfg.EnableGDR = true
	cfg.GDRDenylist = []int{1}

	runGrid(t, types.CommKey{2, 1, 1, 1}, cfg, func(c *Communicator) error {
		denied := c.DeviceID() == 1
		assert.Equal(t, denied, c.GDRDenylisted())
		assert.Equal(t, !denied, c.GDREnabled())

		c.EnableGDR(false)
		assert.False(t, c.GDREnabled())
		return nil
	}, loopback.WithRanksPerHost(2))
}

func TestGatherHostInfo(t *testing.T) {
	runGrid(t, types.CommKey{4, 1, 1, 1}, config.DefaultCommConfig(), func(c *Communicator) error {
		hosts, err := c.GatherHostnames()
		if err != nil {
			return err
		}
		devices, err := c.GatherDeviceIDs()
		if err != nil {
			return err
		}

		if c.Rank() == 0 {
			assert.Equal(t, []string{"node0", "node0", "node1", "node1"}, hosts)
			assert.Equal(t, []int{0, 1, 0, 1}, devices)
		} else {
			assert.Nil(t, hosts)
			assert.Nil(t, devices)
		}
		assert.Equal(t, c.Rank()%2, c.DeviceID())
		return nil
	}, loopback.WithRanksPerHost(2))
}

func TestHandlePath_Snapshot(t *testing.T) {
	runGrid(t, types.CommKey{2, 1, 1, 1}, config.DefaultCommConfig(), func(c *Communicator) error {
		first := c.DeclareSendRelative(make([]byte, 8), 0, types.Forward, 8)
		assert.Equal(t, PathPeerToPeer, first.Path())

		c.EnablePeerToPeer(false)
		second := c.DeclareSendRelative(make([]byte, 8), 0, types.Forward, 8)
		assert.Equal(t, PathPeerToPeer, first.Path())
		assert.Equal(t, PathIntranode, second.Path())

		c.EnableIntranode(false)
		third := c.DeclareReceiveRelative(nil, 0, types.Backward, 0)
		assert.Equal(t, PathTransport, third.Path())

		first.Free()
		second.Free()
		third.Free()
		return nil
	})
}
