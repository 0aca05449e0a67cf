package metrics

import (
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-commstack/pkg/types"
)

// meter 单个统计维度的入站/出站计数
type meter struct {
	totalIn  atomic.Int64
	totalOut atomic.Int64
	rateIn   *RateMeter
	rateOut  *RateMeter
}

func newMeter(clk clock.Clock) *meter {
	return &meter{
		rateIn:  NewRateMeter(clk),
		rateOut: NewRateMeter(clk),
	}
}

func (m *meter) addIn(size int64) {
	m.totalIn.Add(size)
	m.rateIn.Add(size)
}

func (m *meter) addOut(size int64) {
	m.totalOut.Add(size)
	m.rateOut.Add(size)
}

func (m *meter) stats() Stats {
	if m == nil {
		return Stats{}
	}
	return Stats{
		TotalIn:  m.totalIn.Load(),
		TotalOut: m.totalOut.Load(),
		RateIn:   m.rateIn.Rate(),
		RateOut:  m.rateOut.Rate(),
	}
}

func (m *meter) reset() {
	m.totalIn.Store(0)
	m.totalOut.Store(0)
	m.rateIn.Reset()
	m.rateOut.Reset()
}

// ============================================================================
//                              BandwidthCounter
// ============================================================================

// Option BandwidthCounter 选项
type Option func(*BandwidthCounter)

// WithClock 注入时钟（测试使用 clock.NewMock）
func WithClock(clk clock.Clock) Option {
	return func(bwc *BandwidthCounter) {
		if clk != nil {
			bwc.clk = clk
		}
	}
}

// BandwidthCounter 流量计数器
//
// 跟踪本进程在每个拓扑上、与每个对端之间的点对点流量，以及集合操作次数。
type BandwidthCounter struct {
	clk    clock.Clock
	totals *meter

	// 拓扑级计数器
	keyMu sync.RWMutex
	keys  map[types.CommKey]*meter

	// 对端级计数器
	peerMu sync.RWMutex
	peers  map[int]*meter

	// 集合操作与泄漏句柄
	opMu        sync.Mutex
	collectives map[types.CommKey]map[string]int64
	leaked      map[types.CommKey]int64
}

// NewBandwidthCounter 创建新的 BandwidthCounter
func NewBandwidthCounter(opts ...Option) *BandwidthCounter {
	bwc := &BandwidthCounter{
		clk:         clock.New(),
		keys:        make(map[types.CommKey]*meter),
		peers:       make(map[int]*meter),
		collectives: make(map[types.CommKey]map[string]int64),
		leaked:      make(map[types.CommKey]int64),
	}
	for _, opt := range opts {
		opt(bwc)
	}
	bwc.totals = newMeter(bwc.clk)
	return bwc
}

// meterFor 取出或创建 k 对应的计数器
func meterFor[K comparable](mu *sync.RWMutex, m map[K]*meter, k K, clk clock.Clock) *meter {
	mu.RLock()
	c := m[k]
	mu.RUnlock()
	if c != nil {
		return c
	}

	mu.Lock()
	defer mu.Unlock()
	if c = m[k]; c == nil {
		c = newMeter(clk)
		m[k] = c
	}
	return c
}

// LogSent 记录出站消息
func (bwc *BandwidthCounter) LogSent(key types.CommKey, peer int, size int64) {
	bwc.totals.addOut(size)
	meterFor(&bwc.keyMu, bwc.keys, key, bwc.clk).addOut(size)
	meterFor(&bwc.peerMu, bwc.peers, peer, bwc.clk).addOut(size)
}

// LogRecv 记录入站消息
func (bwc *BandwidthCounter) LogRecv(key types.CommKey, peer int, size int64) {
	bwc.totals.addIn(size)
	meterFor(&bwc.keyMu, bwc.keys, key, bwc.clk).addIn(size)
	meterFor(&bwc.peerMu, bwc.peers, peer, bwc.clk).addIn(size)
}

// LogCollective 记录一次集合操作
func (bwc *BandwidthCounter) LogCollective(key types.CommKey, op string) {
	bwc.opMu.Lock()
	defer bwc.opMu.Unlock()

	ops := bwc.collectives[key]
	if ops == nil {
		ops = make(map[string]int64)
		bwc.collectives[key] = ops
	}
	ops[op]++
}

// LogLeakedHandles 记录泄漏句柄
func (bwc *BandwidthCounter) LogLeakedHandles(key types.CommKey, n int) {
	if n <= 0 {
		return
	}
	bwc.opMu.Lock()
	bwc.leaked[key] += int64(n)
	bwc.opMu.Unlock()
}

// GetBandwidthForKey 返回拓扑流量统计
func (bwc *BandwidthCounter) GetBandwidthForKey(key types.CommKey) Stats {
	bwc.keyMu.RLock()
	m := bwc.keys[key]
	bwc.keyMu.RUnlock()
	return m.stats()
}

// GetBandwidthTotals 返回总流量统计
func (bwc *BandwidthCounter) GetBandwidthTotals() Stats {
	return bwc.totals.stats()
}

// GetBandwidthByKey 返回所有拓扑的流量统计
func (bwc *BandwidthCounter) GetBandwidthByKey() map[types.CommKey]Stats {
	bwc.keyMu.RLock()
	defer bwc.keyMu.RUnlock()

	result := make(map[types.CommKey]Stats, len(bwc.keys))
	for k, m := range bwc.keys {
		result[k] = m.stats()
	}
	return result
}

// GetBandwidthByPeer 返回所有对端的流量统计
func (bwc *BandwidthCounter) GetBandwidthByPeer() map[int]Stats {
	bwc.peerMu.RLock()
	defer bwc.peerMu.RUnlock()

	result := make(map[int]Stats, len(bwc.peers))
	for p, m := range bwc.peers {
		result[p] = m.stats()
	}
	return result
}

// Collectives 返回集合操作计数快照
func (bwc *BandwidthCounter) Collectives() map[types.CommKey]map[string]int64 {
	bwc.opMu.Lock()
	defer bwc.opMu.Unlock()

	result := make(map[types.CommKey]map[string]int64, len(bwc.collectives))
	for k, ops := range bwc.collectives {
		cp := make(map[string]int64, len(ops))
		for op, n := range ops {
			cp[op] = n
		}
		result[k] = cp
	}
	return result
}

// LeakedHandles 返回泄漏句柄计数快照
func (bwc *BandwidthCounter) LeakedHandles() map[types.CommKey]int64 {
	bwc.opMu.Lock()
	defer bwc.opMu.Unlock()

	result := make(map[types.CommKey]int64, len(bwc.leaked))
	for k, n := range bwc.leaked {
		result[k] = n
	}
	return result
}

// Reset 清除所有统计
func (bwc *BandwidthCounter) Reset() {
	bwc.totals.reset()

	bwc.keyMu.Lock()
	bwc.keys = make(map[types.CommKey]*meter)
	bwc.keyMu.Unlock()

	bwc.peerMu.Lock()
	bwc.peers = make(map[int]*meter)
	bwc.peerMu.Unlock()

	bwc.opMu.Lock()
	bwc.collectives = make(map[types.CommKey]map[string]int64)
	bwc.leaked = make(map[types.CommKey]int64)
	bwc.opMu.Unlock()
}
