package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"

	"github.com/dep2p/go-commstack/pkg/types"
)

var splitKey = types.CommKey{2, 1, 1, 1}

func TestBandwidthCounter_KeyAndPeer(t *testing.T) {
	bwc := NewBandwidthCounter(WithClock(clock.NewMock()))

	bwc.LogSent(types.DefaultKey, 1, 1024)
	bwc.LogSent(splitKey, 1, 512)
	bwc.LogRecv(splitKey, 3, 256)

	t.Run("按拓扑键", func(t *testing.T) {
		s := bwc.GetBandwidthForKey(types.DefaultKey)
		assert.Equal(t, int64(1024), s.TotalOut)
		assert.Equal(t, int64(0), s.TotalIn)

		s = bwc.GetBandwidthForKey(splitKey)
		assert.Equal(t, int64(512), s.TotalOut)
		assert.Equal(t, int64(256), s.TotalIn)
	})

	t.Run("按对端", func(t *testing.T) {
		peers := bwc.GetBandwidthByPeer()
		assert.Equal(t, int64(1536), peers[1].TotalOut)
		assert.Equal(t, int64(256), peers[3].TotalIn)
		assert.Equal(t, Stats{}, peers[9])
	})

	t.Run("总计与速率", func(t *testing.T) {
		s := bwc.GetBandwidthTotals()
		assert.Equal(t, int64(1536), s.TotalOut)
		assert.Equal(t, int64(256), s.TotalIn)
		assert.InDelta(t, 1536.0/60, s.RateOut, 1e-9)
	})

	t.Run("快照", func(t *testing.T) {
		assert.Len(t, bwc.GetBandwidthByKey(), 2)
		assert.Len(t, bwc.GetBandwidthByPeer(), 2)
	})
}

func TestBandwidthCounter_Collectives(t *testing.T) {
	bwc := NewBandwidthCounter()
	bwc.LogCollective(types.DefaultKey, "allreduce")
	bwc.LogCollective(types.DefaultKey, "allreduce")
	bwc.LogCollective(splitKey, "barrier")
	bwc.LogLeakedHandles(splitKey, 2)
	bwc.LogLeakedHandles(splitKey, 0)

	ops := bwc.Collectives()
	assert.Equal(t, int64(2), ops[types.DefaultKey]["allreduce"])
	assert.Equal(t, int64(1), ops[splitKey]["barrier"])
	assert.Equal(t, map[types.CommKey]int64{splitKey: 2}, bwc.LeakedHandles())
}

func TestBandwidthCounter_Reset(t *testing.T) {
	clk := clock.NewMock()
	bwc := NewBandwidthCounter(WithClock(clk))

	bwc.LogSent(types.DefaultKey, 1, 10)
	clk.Add(10 * time.Minute)
	bwc.LogSent(splitKey, 2, 10)
	bwc.LogCollective(splitKey, "barrier")

	// 窗口外的流量不计入速率，累计值保留
	assert.Equal(t, int64(10), bwc.GetBandwidthForKey(types.DefaultKey).TotalOut)
	assert.Equal(t, float64(0), bwc.GetBandwidthForKey(types.DefaultKey).RateOut)
	assert.InDelta(t, 10.0/60, bwc.GetBandwidthForKey(splitKey).RateOut, 1e-9)

	bwc.Reset()
	assert.Equal(t, int64(0), bwc.GetBandwidthTotals().TotalOut)
	assert.Empty(t, bwc.GetBandwidthByKey())
	assert.Empty(t, bwc.GetBandwidthByPeer())
	assert.Empty(t, bwc.Collectives())
}

func TestBandwidthCounter_Concurrent(t *testing.T) {
	bwc := NewBandwidthCounter()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(peer int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				bwc.LogSent(types.DefaultKey, peer, 1)
				bwc.LogCollective(types.DefaultKey, "barrier")
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(800), bwc.GetBandwidthTotals().TotalOut)
	assert.Equal(t, int64(800), bwc.Collectives()[types.DefaultKey]["barrier"])
}
