package commstack

import (
	"context"
	"fmt"
	"io"
	"sync"

	"go.uber.org/multierr"

	"github.com/dep2p/go-commstack/config"
	"github.com/dep2p/go-commstack/internal/core/transport/tcp"
	"github.com/dep2p/go-commstack/pkg/lib/log"
	"github.com/dep2p/go-commstack/pkg/types"
)

var logger = log.Logger("commstack/registry")

// InitParams 初始化参数
type InitParams struct {
	// Dims 默认进程网格，每维进程数的乘积必须等于传输层进程数
	Dims types.CommKey

	// RankFromCoords 坐标到进程号的映射，为空时使用 types.LexRankLastFastest
	RankFromCoords types.RankFromCoordsFunc

	// MapData 原样传给 RankFromCoords，为空时使用 Dims
	MapData any

	// Transport 进程间传输，为空时按 config.Transport 建立 TCP 全连接并由注册表关闭
	Transport Transport
}

// Registry 通信子注册表
//
// 拓扑键到通信子的映射（从不淘汰）加上当前键。默认通信子注册在
// types.DefaultKey 下，所有切分都从它派生。
//
// 注册表按 SPMD 约定由每个进程的主 goroutine 使用，Select 和 Initialize
// 是集合操作；内部互斥锁只用于让指标抓取等旁路读取 Keys。
type Registry struct {
	cfg  *config.Config
	opts options

	mu          sync.Mutex
	initialized bool
	comms       map[types.CommKey]Communicator
	order       []types.CommKey
	current     types.CommKey
	owned       io.Closer
	log         *log.LazyLogger
}

// New 创建注册表
func New(opts ...Option) (*Registry, error) {
	o := options{factory: defaultFactory}
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}
	if o.config == nil {
		o.config = config.NewConfig()
	}
	if err := o.config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	if o.topologyLimit == 0 {
		o.topologyLimit = o.config.Registry.MaxTopologies
	}

	return &Registry{
		cfg:  o.config,
		opts: o,
		log:  logger,
	}, nil
}

// fatal 记录并以包装了哨兵错误的 error panic
func (r *Registry) fatal(sentinel error, format string, args ...any) {
	err := fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))
	r.log.Error("注册表致命错误", "err", err)
	panic(err)
}

// ════════════════════════════════════════════════════════════════════════════
//                              生命周期
// ════════════════════════════════════════════════════════════════════════════

// Initialize 构建默认通信子并设为当前
//
// 所有进程必须同时调用。重复初始化会 panic（ErrAlreadyInitialized）；
// Finalize 之后可以再次初始化。
func (r *Registry) Initialize(ctx context.Context, p InitParams) error {
	r.mu.Lock()
	if r.initialized {
		r.mu.Unlock()
		r.fatal(ErrAlreadyInitialized, "initialize called twice")
	}
	r.mu.Unlock()

	if err := p.Dims.Validate(); err != nil {
		return err
	}

	tr := p.Transport
	var owned io.Closer
	if tr == nil {
		t, err := tcp.New(ctx, r.cfg.Transport)
		if err != nil {
			return fmt.Errorf("建立传输层失败: %w", err)
		}
		tr, owned = t, t
	}

	fn := p.RankFromCoords
	if fn == nil {
		fn = types.LexRankLastFastest
	}
	data := p.MapData
	if data == nil {
		data = p.Dims
	}

	def, err := r.opts.factory(r.cfg.Comm, tr, p.Dims, fn, data, r.opts.reporter)
	if err != nil {
		if owned != nil {
			err = multierr.Append(err, owned.Close())
		}
		return fmt.Errorf("构建默认通信子失败: %w", err)
	}

	r.mu.Lock()
	r.comms = map[types.CommKey]Communicator{types.DefaultKey: def}
	r.order = []types.CommKey{types.DefaultKey}
	r.current = types.DefaultKey
	r.owned = owned
	r.initialized = true
	r.log = logger.ForRank(def.Rank())
	r.mu.Unlock()

	r.log.RootOnly().Info("注册表已初始化",
		"dims", p.Dims, "size", def.Size(), "topology", def.TopologyString())
	return nil
}

// Finalize 按注册顺序关闭所有通信子，再关闭自建的传输层
//
// 未初始化时什么都不做。
func (r *Registry) Finalize() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.initialized {
		return nil
	}

	var err error
	for _, key := range r.order {
		if cerr := r.comms[key].Close(); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("close %s: %w", key, cerr))
		}
	}
	if r.owned != nil {
		err = multierr.Append(err, r.owned.Close())
	}

	r.log.RootOnly().Info("注册表已结束", "topologies", len(r.order))

	r.comms = nil
	r.order = nil
	r.current = types.CommKey{}
	r.owned = nil
	r.initialized = false
	r.log = logger
	return err
}

// Initialized 是否已初始化
func (r *Registry) Initialized() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.initialized
}

// ════════════════════════════════════════════════════════════════════════════
//                              选择
// ════════════════════════════════════════════════════════════════════════════

// Select 切换当前拓扑
//
// 已注册的键直接返回缓存的通信子；否则切分默认通信子（不是当前通信子）
// 得到新通信子并注册。两种情况下当前键都变为 key。
// 未注册的键触发一次集合操作，所有进程必须以相同顺序选择相同的键。
func (r *Registry) Select(key types.CommKey) (Communicator, error) {
	r.mu.Lock()
	if !r.initialized {
		r.mu.Unlock()
		r.fatal(ErrNotInitialized, "select %s", key)
	}
	if c, ok := r.comms[key]; ok {
		r.current = key
		r.mu.Unlock()
		r.log.RootOnly().Debug("found communicator", "key", key)
		return c, nil
	}
	if len(r.comms) >= r.opts.topologyLimit {
		r.mu.Unlock()
		r.fatal(ErrTopologyLimit, "selecting %s with %d topologies registered (limit %d)",
			key, len(r.order), r.opts.topologyLimit)
	}
	def := r.comms[types.DefaultKey]
	r.mu.Unlock()

	c, err := def.Split(key)
	if err != nil {
		return nil, fmt.Errorf("split %s: %w", key, err)
	}

	r.mu.Lock()
	r.comms[key] = c
	r.order = append(r.order, key)
	r.current = key
	r.mu.Unlock()

	r.log.RootOnly().Info("added communicator", "key", key, "topology", c.TopologyString())
	return c, nil
}

// CurrentCommunicator 返回当前通信子
func (r *Registry) CurrentCommunicator() Communicator {
	return r.mustLookup(func() types.CommKey { return r.current })
}

// DefaultCommunicator 返回默认通信子
func (r *Registry) DefaultCommunicator() Communicator {
	return r.mustLookup(func() types.CommKey { return types.DefaultKey })
}

// mustLookup 在锁内取键并查找，失败时在锁外 panic
func (r *Registry) mustLookup(keyFn func() types.CommKey) Communicator {
	r.mu.Lock()
	initialized := r.initialized
	key := keyFn()
	c, ok := r.comms[key]
	r.mu.Unlock()

	if !initialized {
		r.fatal(ErrNotInitialized, "lookup %s", key)
	}
	if !ok {
		r.fatal(ErrKeyMissing, "%s", key)
	}
	return c
}

// CurrentKey 返回当前拓扑键
func (r *Registry) CurrentKey() types.CommKey {
	r.mu.Lock()
	initialized, key := r.initialized, r.current
	r.mu.Unlock()

	if !initialized {
		r.fatal(ErrNotInitialized, "current key")
	}
	return key
}

// Keys 按注册顺序返回所有拓扑键
func (r *Registry) Keys() []types.CommKey {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.CommKey(nil), r.order...)
}

// Len 已注册的拓扑数
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}

// Config 返回注册表使用的配置
func (r *Registry) Config() *config.Config {
	return r.cfg
}
