package comm

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-commstack/config"
	"github.com/dep2p/go-commstack/internal/core/metrics"
	"github.com/dep2p/go-commstack/pkg/interfaces"
	"github.com/dep2p/go-commstack/pkg/types"
	"github.com/dep2p/go-commstack/tests/mocks"
)

var zero = types.Displacement{}

func TestHandles_HaloExchange(t *testing.T) {
	dims := types.CommKey{4, 2, 1, 1}
	runGrid(t, dims, config.DefaultCommConfig(), func(c *Communicator) error {
		type pair struct {
			send, recv interfaces.MsgHandle
			rbuf       []byte
			from       int
		}
		var pairs []pair
		for dim := 0; dim < 2; dim++ {
			for _, dir := range []types.Direction{types.Backward, types.Forward} {
				sbuf := make([]byte, 8)
				binary.LittleEndian.PutUint64(sbuf, uint64(c.Rank()))
				rbuf := make([]byte, 8)
				opp := types.Forward
				if dir == types.Forward {
					opp = types.Backward
				}
				pairs = append(pairs, pair{
					send: c.DeclareSendRelative(sbuf, dim, dir, 8),
					recv: c.DeclareReceiveRelative(rbuf, dim, opp, 8),
					rbuf: rbuf,
					from: c.NeighborRank(opp, dim),
				})
			}
		}

		// 持久句柄重复使用两轮
		for iter := 0; iter < 2; iter++ {
			for _, p := range pairs {
				if err := p.recv.Start(); err != nil {
					return err
				}
				if err := p.send.Start(); err != nil {
					return err
				}
			}
			for _, p := range pairs {
				if err := p.send.Wait(); err != nil {
					return err
				}
				if err := p.recv.Wait(); err != nil {
					return err
				}
				assert.Equal(t, uint64(p.from), binary.LittleEndian.Uint64(p.rbuf))
			}
		}

		for _, p := range pairs {
			p.send.Free()
			p.recv.Free()
		}
		assert.Equal(t, 0, c.LiveHandles())
		return nil
	})
}

func TestHandles_PeerDeclare(t *testing.T) {
	runGrid(t, types.CommKey{2, 1, 1, 1}, config.DefaultCommConfig(), func(c *Communicator) error {
		peer := 1 - c.Rank()
		sbuf := []byte{byte(c.Rank()), 0xAA}
		rbuf := make([]byte, 2)

		recv := c.DeclareReceive(rbuf, peer, 2)
		send := c.DeclareSend(sbuf, peer, 2)
		defer recv.Free()
		defer send.Free()

		if err := recv.Start(); err != nil {
			return err
		}
		if err := send.Start(); err != nil {
			return err
		}
		if err := send.Wait(); err != nil {
			return err
		}
		if err := recv.Wait(); err != nil {
			return err
		}
		assert.Equal(t, []byte{byte(peer), 0xAA}, rbuf)
		assert.NotEqual(t, send.ID(), recv.ID())
		return nil
	})
}

func TestHandles_Strided(t *testing.T) {
	c := newSingle(t, config.DefaultCommConfig())

	sbuf := []byte{1, 2, 9, 9, 3, 4, 9, 9, 5, 6}
	rbuf := make([]byte, 10)
	send := c.DeclareStridedSendDisplaced(sbuf, zero, 2, 3, 4)
	recv := c.DeclareStridedReceiveDisplaced(rbuf, zero, 2, 3, 4)

	require.NoError(t, recv.Start())
	require.NoError(t, send.Start())
	require.NoError(t, send.Wait())
	require.NoError(t, recv.Wait())
	assert.Equal(t, []byte{1, 2, 0, 0, 3, 4, 0, 0, 5, 6}, rbuf)

	send.Free()
	recv.Free()
}

func TestHandles_Query(t *testing.T) {
	c := newSingle(t, config.DefaultCommConfig())

	rbuf := make([]byte, 4)
	recv := c.DeclareReceiveDisplaced(rbuf, zero, 4)
	send := c.DeclareSendDisplaced([]byte("ping"), zero, 4)
	defer recv.Free()
	defer send.Free()

	// 未发起的句柄视为已完成
	done, err := recv.Query()
	require.NoError(t, err)
	assert.True(t, done)

	require.NoError(t, recv.Start())
	done, err = recv.Query()
	require.NoError(t, err)
	assert.False(t, done)

	require.NoError(t, send.Start())
	done, err = send.Query()
	require.NoError(t, err)
	assert.True(t, done)

	done, err = recv.Query()
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, "ping", string(rbuf))
}

func TestHandles_Truncated(t *testing.T) {
	c := newSingle(t, config.DefaultCommConfig())

	send := c.DeclareSendDisplaced([]byte("abcd"), zero, 4)
	recv := c.DeclareReceiveDisplaced(make([]byte, 8), zero, 8)
	defer send.Free()
	defer recv.Free()

	require.NoError(t, send.Start())
	require.NoError(t, recv.Start())
	assert.ErrorIs(t, recv.Wait(), ErrTruncated)
	require.NoError(t, send.Wait())
}

func TestHandles_Misuse(t *testing.T) {
	c := newSingle(t, config.DefaultCommConfig())

	t.Run("传输中重启", func(t *testing.T) {
		h := c.DeclareReceiveDisplaced(make([]byte, 1), zero, 1)
		require.NoError(t, h.Start())
		requirePanicIs(t, ErrHandleMisuse, func() { _ = h.Start() })
	})

	t.Run("传输中释放", func(t *testing.T) {
		h := c.DeclareReceiveDisplaced(make([]byte, 1), zero, 1)
		require.NoError(t, h.Start())
		requirePanicIs(t, ErrHandleMisuse, h.Free)
	})

	t.Run("释放后使用", func(t *testing.T) {
		h := c.DeclareSendDisplaced(make([]byte, 1), zero, 1)
		h.Free()
		requirePanicIs(t, ErrHandleMisuse, func() { _ = h.Start() })
		requirePanicIs(t, ErrHandleMisuse, func() { _ = h.Wait() })
		requirePanicIs(t, ErrHandleMisuse, func() { _, _ = h.Query() })
	})

	t.Run("重复释放", func(t *testing.T) {
		h := c.DeclareSendDisplaced(make([]byte, 1), zero, 1)
		h.Free()
		requirePanicIs(t, ErrHandleMisuse, h.Free)
	})

	t.Run("完成后可重启", func(t *testing.T) {
		h := c.DeclareSendDisplaced(make([]byte, 1), zero, 1)
		r := c.DeclareReceiveDisplaced(make([]byte, 1), zero, 1)
		for i := 0; i < 3; i++ {
			require.NoError(t, h.Start())
			require.NoError(t, h.Wait())
			require.NoError(t, r.Start())
			require.NoError(t, r.Wait())
		}
		h.Free()
		r.Free()
	})
}

func TestHandles_ResourceLimits(t *testing.T) {
	cfg := config.DefaultCommConfig()
	cfg.MaxMessageBytes = 16
	c := newSingle(t, cfg)

	t.Run("超过缓冲区", func(t *testing.T) {
		requirePanicIs(t, ErrResourceLimit, func() { c.DeclareSendDisplaced(make([]byte, 4), zero, 8) })
	})

	t.Run("超过消息上限", func(t *testing.T) {
		requirePanicIs(t, ErrResourceLimit, func() { c.DeclareReceiveDisplaced(make([]byte, 32), zero, 20) })
	})

	t.Run("位移过大", func(t *testing.T) {
		requirePanicIs(t, ErrResourceLimit, func() {
			c.DeclareSendDisplaced(make([]byte, 1), types.Displacement{4, 0, 0, 0}, 1)
		})
	})

	t.Run("块大于跨步", func(t *testing.T) {
		requirePanicIs(t, ErrResourceLimit, func() {
			c.DeclareStridedSendDisplaced(make([]byte, 16), zero, 4, 2, 2)
		})
	})

	t.Run("跨步范围超过缓冲区", func(t *testing.T) {
		requirePanicIs(t, ErrResourceLimit, func() {
			c.DeclareStridedReceiveDisplaced(make([]byte, 8), zero, 2, 3, 4)
		})
	})

	t.Run("块数乘积溢出", func(t *testing.T) {
		requirePanicIs(t, ErrResourceLimit, func() {
			c.DeclareStridedSendDisplaced(make([]byte, 8), zero, 1<<32, 1<<32, 1<<32)
		})
		requirePanicIs(t, ErrResourceLimit, func() {
			c.DeclareStridedReceiveDisplaced(make([]byte, 8), zero, math.MaxInt/2+1, 2, math.MaxInt/2+1)
		})
	})

	t.Run("跨步范围溢出", func(t *testing.T) {
		requirePanicIs(t, ErrResourceLimit, func() {
			c.DeclareStridedSendDisplaced(make([]byte, 8), zero, 1, 2, math.MaxInt)
		})
	})

	t.Run("边界布局可以声明", func(t *testing.T) {
		h := c.DeclareStridedSendDisplaced(make([]byte, 10), zero, 2, 3, 4)
		h.Free()
	})

	t.Run("负长度", func(t *testing.T) {
		requirePanicIs(t, ErrResourceLimit, func() { c.DeclareSendDisplaced(nil, zero, -1) })
	})

	t.Run("对端越界", func(t *testing.T) {
		requirePanicIs(t, ErrInvalidPeer, func() { c.DeclareSend(make([]byte, 1), 1, 1) })
	})

	assert.Equal(t, 0, c.LiveHandles())
}

func TestClose_ReportsLeaks(t *testing.T) {
	counter := metrics.NewBandwidthCounter()
	c := newSingle(t, config.DefaultCommConfig(), WithReporter(counter))

	send := c.DeclareSendDisplaced([]byte("12345678"), zero, 8)
	recv := c.DeclareReceiveDisplaced(make([]byte, 8), zero, 8)
	require.NoError(t, send.Start())
	require.NoError(t, recv.Start())
	require.NoError(t, recv.Wait())
	require.NoError(t, send.Wait())
	recv.Free()

	stats := counter.GetBandwidthForKey(types.DefaultKey)
	assert.Equal(t, int64(8), stats.TotalOut)
	assert.Equal(t, int64(8), stats.TotalIn)

	require.NoError(t, c.Close())
	assert.Equal(t, 0, c.LiveHandles())
	assert.Equal(t, int64(1), counter.LeakedHandles()[types.DefaultKey])

	// 泄漏的句柄已被释放
	requirePanicIs(t, ErrHandleMisuse, func() { _ = send.Start() })
	// 关闭后不能再声明
	requirePanicIs(t, ErrClosed, func() { c.DeclareSendDisplaced(nil, zero, 0) })
	assert.NoError(t, c.Close())
}

func TestHandles_TransportFailure(t *testing.T) {
	errLink := errors.New("link down")
	tr := mocks.NewMockTransport(0, 1)
	c, err := New(config.DefaultCommConfig(), tr, types.DefaultKey, types.LexRankLastFastest, types.DefaultKey)
	require.NoError(t, err)
	defer c.Close()

	tr.SendFunc = func(int, interfaces.Envelope, []byte) error { return errLink }
	tr.RecvFunc = func(int, interfaces.Envelope) ([]byte, error) { return nil, errLink }
	tr.TryRecvFunc = func(int, interfaces.Envelope) ([]byte, bool, error) { return nil, false, errLink }

	send := c.DeclareSend([]byte{1}, 0, 1)
	assert.ErrorIs(t, send.Start(), errLink)
	send.Free()

	recv := c.DeclareReceive(make([]byte, 1), 0, 1)
	require.NoError(t, recv.Start())
	assert.ErrorIs(t, recv.Wait(), errLink)

	require.NoError(t, recv.Start())
	done, err := recv.Query()
	assert.True(t, done)
	assert.ErrorIs(t, err, errLink)
	recv.Free()

	// 点对点消息使用 p2p 信封类别与本通信子的上下文
	sends := tr.Sends()
	require.Len(t, sends, 1)
	assert.Equal(t, interfaces.KindPointToPoint, sends[0].Env.Kind)
	assert.Equal(t, c.ContextID(), sends[0].Env.Context)
}
