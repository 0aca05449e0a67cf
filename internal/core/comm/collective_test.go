package comm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/dep2p/go-commstack/config"
	"github.com/dep2p/go-commstack/internal/core/metrics"
	"github.com/dep2p/go-commstack/internal/core/transport/loopback"
	"github.com/dep2p/go-commstack/pkg/interfaces"
	"github.com/dep2p/go-commstack/pkg/types"
	"github.com/dep2p/go-commstack/tests/mocks"
)

var worldSizes = []int{1, 2, 3, 4, 5, 6, 8}

// value 每个进程的输入，首项极大以暴露浮点加法的结合性差异
func value(r int) float64 {
	if r == 0 {
		return 1e16
	}
	return float64(r) + 0.25
}

func sequentialSum(n int) float64 {
	acc := value(0)
	for r := 1; r < n; r++ {
		acc += value(r)
	}
	return acc
}

func TestAllReduce_Deterministic(t *testing.T) {
	cfg := config.DefaultCommConfig()
	cfg.DeterministicReduce = true

	for _, n := range worldSizes {
		t.Run(fmt.Sprintf("进程数%d", n), func(t *testing.T) {
			runGrid(t, types.CommKey{n, 1, 1, 1}, cfg, func(c *Communicator) error {
				got, err := c.AllReduceSum(value(c.Rank()))
				if err != nil {
					return err
				}
				// 按进程号顺序规约，逐位一致
				assert.Equal(t, sequentialSum(n), got)
				return nil
			})
		})
	}
}

func TestAllReduce_RecursiveDoubling(t *testing.T) {
	for _, n := range worldSizes {
		t.Run(fmt.Sprintf("进程数%d", n), func(t *testing.T) {
			results := make([]float64, n)
			arrays := make([][]float64, n)

			runGrid(t, types.CommKey{n, 1, 1, 1}, config.DefaultCommConfig(), func(c *Communicator) error {
				r := c.Rank()
				got, err := c.AllReduceSum(float64(r) + 0.5)
				if err != nil {
					return err
				}
				results[r] = got

				arr := []float64{float64(r), -2 * float64(r), 1}
				if err := c.AllReduceSumArray(arr); err != nil {
					return err
				}
				arrays[r] = arr

				mx, err := c.AllReduceMax(float64(r))
				if err != nil {
					return err
				}
				mn, err := c.AllReduceMin(float64(r) - 3)
				if err != nil {
					return err
				}
				assert.Equal(t, float64(n-1), mx)
				assert.Equal(t, -3.0, mn)
				return nil
			})

			tri := float64(n*(n-1)) / 2
			for r := 0; r < n; r++ {
				// 所有进程得到逐位相同的结果
				assert.Equal(t, results[0], results[r])
				assert.Equal(t, arrays[0], arrays[r])
			}
			assert.InDelta(t, tri+0.5*float64(n), results[0], 1e-9)
			assert.InDeltaSlice(t, []float64{tri, -2 * tri, float64(n)}, arrays[0], 1e-9)
		})
	}
}

func TestAllReduce_IntegerOps(t *testing.T) {
	runGrid(t, types.CommKey{5, 1, 1, 1}, config.DefaultCommConfig(), func(c *Communicator) error {
		r := c.Rank()
		total, err := c.AllReduceInt(int64(r) - 10)
		if err != nil {
			return err
		}
		assert.Equal(t, int64(0+1+2+3+4-50), total)

		x, err := c.AllReduceXor(uint64(1) << uint(r))
		if err != nil {
			return err
		}
		assert.Equal(t, uint64(0b11111), x)

		maxArr := []float64{float64(r), float64(-r)}
		if err := c.AllReduceMaxArray(maxArr); err != nil {
			return err
		}
		assert.Equal(t, []float64{4, 0}, maxArr)

		minArr := []float64{float64(r), float64(-r)}
		if err := c.AllReduceMinArray(minArr); err != nil {
			return err
		}
		assert.Equal(t, []float64{0, -4}, minArr)
		return nil
	})
}

func TestBroadcast(t *testing.T) {
	runGrid(t, types.CommKey{3, 1, 1, 1}, config.DefaultCommConfig(), func(c *Communicator) error {
		buf := make([]byte, 5)
		if c.Rank() == 0 {
			copy(buf, "hello")
		}
		if err := c.Broadcast(buf); err != nil {
			return err
		}
		assert.Equal(t, "hello", string(buf))

		// 长度不一致
		size := 4
		if c.Rank() == 2 {
			size = 3
		}
		err := c.Broadcast(make([]byte, size))
		if c.Rank() == 2 {
			assert.ErrorIs(t, err, ErrSizeMismatch)
			return nil
		}
		return err
	})
}

func TestBarrier(t *testing.T) {
	for _, n := range []int{1, 3, 4} {
		t.Run(fmt.Sprintf("进程数%d", n), func(t *testing.T) {
			var arrived atomic.Int32
			runGrid(t, types.CommKey{n, 1, 1, 1}, config.DefaultCommConfig(), func(c *Communicator) error {
				arrived.Add(1)
				if err := c.Barrier(); err != nil {
					return err
				}
				// 屏障之后所有进程都已到达
				assert.Equal(t, int32(n), arrived.Load())
				return nil
			})
		})
	}
}

// 屏障前后的逻辑时间戳
const (
	entryStamp uint64 = 1
	exitStamp  uint64 = 2
)

// exchangeBarrierStamps 进入屏障前向所有对端发送进入戳，离开后发送离开戳
//
// 进入屏障前不得收到任何对端的离开戳；离开后每个对端依次送达进入戳和离开戳。
// 0 号进程推迟进入，其他进程若提前离开，其离开戳会在推迟期间送达。
func exchangeBarrierStamps(t *testing.T, c *Communicator, delay time.Duration) error {
	n, me := c.Size(), c.Rank()

	sendAll := func(stamp uint64) error {
		for r := 0; r < n; r++ {
			if r == me {
				continue
			}
			h := c.DeclareSend(binary.BigEndian.AppendUint64(nil, stamp), r, 8)
			if err := h.Start(); err != nil {
				return err
			}
			if err := h.Wait(); err != nil {
				return err
			}
			h.Free()
		}
		return nil
	}

	bufs := make([][]byte, n)
	recvs := make([]interfaces.MsgHandle, n)
	for r := 0; r < n; r++ {
		if r == me {
			continue
		}
		bufs[r] = make([]byte, 8)
		recvs[r] = c.DeclareReceive(bufs[r], r, 8)
	}

	if err := sendAll(entryStamp); err != nil {
		return err
	}
	for r, h := range recvs {
		if h == nil {
			continue
		}
		if err := h.Start(); err != nil {
			return err
		}
		if err := h.Wait(); err != nil {
			return err
		}
		assert.Equal(t, entryStamp, binary.BigEndian.Uint64(bufs[r]), "rank %d entry from %d", me, r)
	}

	if me == 0 {
		time.Sleep(delay)
	}
	for r, h := range recvs {
		if h == nil {
			continue
		}
		if err := h.Start(); err != nil {
			return err
		}
		done, err := h.Query()
		if err != nil {
			return err
		}
		assert.False(t, done, "rank %d saw rank %d leave before entering", me, r)
	}

	if err := c.Barrier(); err != nil {
		return err
	}
	if err := sendAll(exitStamp); err != nil {
		return err
	}

	for r, h := range recvs {
		if h == nil {
			continue
		}
		if err := h.Wait(); err != nil {
			return err
		}
		assert.Equal(t, exitStamp, binary.BigEndian.Uint64(bufs[r]), "rank %d exit from %d", me, r)
		h.Free()
	}
	return nil
}

func TestBarrier_LogicalStamps(t *testing.T) {
	for _, n := range []int{2, 3, 5} {
		dims := types.CommKey{n, 1, 1, 1}
		t.Run(fmt.Sprintf("进程内%d", n), func(t *testing.T) {
			runGrid(t, dims, config.DefaultCommConfig(), func(c *Communicator) error {
				return exchangeBarrierStamps(t, c, 50*time.Millisecond)
			})
		})
		t.Run(fmt.Sprintf("TCP%d", n), func(t *testing.T) {
			runTCPGrid(t, dims, func(c *Communicator) error {
				return exchangeBarrierStamps(t, c, 50*time.Millisecond)
			})
		})
	}
}

func TestAllReduceAsync(t *testing.T) {
	t.Run("异步", func(t *testing.T) {
		cfg := config.DefaultCommConfig()
		cfg.AsyncReduction = true
		runGrid(t, types.CommKey{4, 1, 1, 1}, cfg, func(c *Communicator) error {
			data := []float64{float64(c.Rank()), 1}
			pending := c.AllReduceSumArrayAsync(data)

			// 等待期间可以执行其他集合操作
			n, err := c.AllReduceInt(1)
			if err != nil {
				return err
			}
			assert.Equal(t, int64(4), n)

			if err := pending.Wait(); err != nil {
				return err
			}
			assert.Equal(t, []float64{6, 4}, data)
			return nil
		})
	})

	t.Run("同步退化", func(t *testing.T) {
		runGrid(t, types.CommKey{2, 1, 1, 1}, config.DefaultCommConfig(), func(c *Communicator) error {
			data := []float64{1}
			pending := c.AllReduceSumArrayAsync(data)
			// 开关关闭时返回前已完成
			assert.Equal(t, []float64{2}, data)
			return pending.Wait()
		})
	})
}

func TestEngineReductions(t *testing.T) {
	runGrid(t, types.CommKey{2, 1, 1, 1}, config.DefaultCommConfig(), func(c *Communicator) error {
		v := float64(c.Rank() + 1)

		s, err := c.ReduceSum(v)
		if err != nil {
			return err
		}
		assert.Equal(t, 3.0, s)

		m, err := c.ReduceMax(v)
		if err != nil {
			return err
		}
		assert.Equal(t, 2.0, m)

		c.SetGlobalReduction(false)
		s, err = c.ReduceSum(v)
		if err != nil {
			return err
		}
		assert.Equal(t, v, s)

		m, err = c.ReduceMax(v)
		if err != nil {
			return err
		}
		assert.Equal(t, v, m)

		arr := []float64{v}
		if err := c.ReduceSumArray(arr); err != nil {
			return err
		}
		assert.Equal(t, []float64{v}, arr)
		return nil
	})
}

func TestCollectives_Reported(t *testing.T) {
	counter := metrics.NewBandwidthCounter()
	c := newSingle(t, config.DefaultCommConfig(), WithReporter(counter))

	require.NoError(t, c.Barrier())
	require.NoError(t, c.Barrier())
	_, err := c.AllReduceSum(1)
	require.NoError(t, err)

	ops := counter.Collectives()[types.DefaultKey]
	assert.Equal(t, int64(2), ops["barrier"])
	assert.Equal(t, int64(1), ops["allreduce_sum"])
}

func TestCollectives_TransportFailure(t *testing.T) {
	errLink := errors.New("link down")
	hostRecord := protowire.AppendString(protowire.AppendVarint(nil, 0), "mock-host")

	tr := mocks.NewMockTransport(0, 2)
	short := false
	tr.RecvFunc = func(_ int, env interfaces.Envelope) ([]byte, error) {
		// 序号 1 为主机信息交换，序号 2 为链路数规约
		switch env.Tag >> 8 {
		case 1:
			return hostRecord, nil
		case 2:
			return make([]byte, 8), nil
		}
		if short {
			return []byte{1, 2, 3}, nil
		}
		return nil, errLink
	}

	dims := types.CommKey{2, 1, 1, 1}
	c, err := New(config.DefaultCommConfig(), tr, dims, types.LexRankLastFastest, dims)
	require.NoError(t, err)
	defer c.Close()

	// 对端报告同一主机
	assert.True(t, c.PeerToPeerPresent())
	assert.True(t, c.IntranodeEnabled(types.Forward, 0))

	_, err = c.AllReduceSum(1)
	assert.ErrorIs(t, err, errLink)

	assert.ErrorIs(t, c.Barrier(), errLink)

	short = true
	_, err = c.AllReduceSum(1)
	assert.ErrorIs(t, err, ErrSizeMismatch)

	for _, s := range tr.Sends() {
		assert.Equal(t, interfaces.KindCollective, s.Env.Kind)
	}
}

func TestAbort(t *testing.T) {
	var status atomic.Int32
	w, err := loopback.NewWorld(1, loopback.WithExitFunc(func(s int) { status.Store(int32(s)) }))
	require.NoError(t, err)

	c, err := New(config.DefaultCommConfig(), w.Transport(0), types.DefaultKey, types.LexRankLastFastest, types.DefaultKey)
	require.NoError(t, err)
	defer c.Close()

	c.Abort(3)
	assert.Equal(t, int32(3), status.Load())

	_, err = w.Transport(0).Recv(0, interfaces.Envelope{})
	assert.ErrorIs(t, err, loopback.ErrAborted)
}

func TestContextIDs(t *testing.T) {
	a := contextID(0, types.DefaultKey)
	b := contextID(0, types.CommKey{2, 1, 1, 1})
	assert.NotEqual(t, a, b)
	assert.Equal(t, b, contextID(0, types.CommKey{2, 1, 1, 1}))
	assert.NotEqual(t, b, contextID(a, types.CommKey{2, 1, 1, 1}))
}
