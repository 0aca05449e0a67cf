package loopback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dep2p/go-commstack/internal/core/transport/mailbox"
	"github.com/dep2p/go-commstack/internal/util/logger"
	"github.com/dep2p/go-commstack/pkg/interfaces"
)

var log = logger.Logger("transport.loopback")

// ============================================================================
//                              错误定义
// ============================================================================

var (
	// ErrAborted 作业已被终止
	ErrAborted = errors.New("job aborted")

	// ErrRankOutOfRange 目标进程号越界
	ErrRankOutOfRange = errors.New("rank out of range")

	// ErrInvalidSize 世界大小非法
	ErrInvalidSize = errors.New("invalid world size")

	// ErrTransportClosed 传输已关闭
	ErrTransportClosed = errors.New("transport closed")
)

// ============================================================================
//                              World
// ============================================================================

// Option World 选项
type Option func(*World)

// WithRanksPerHost 每台模拟主机上的进程数
func WithRanksPerHost(n int) Option {
	return func(w *World) {
		if n > 0 {
			w.ranksPerHost = n
		}
	}
}

// WithExitFunc Abort 时调用的退出函数（命令行传入 os.Exit）
func WithExitFunc(fn func(status int)) Option {
	return func(w *World) {
		w.exit = fn
	}
}

// World 进程内世界
type World struct {
	id           string
	ranksPerHost int
	exit         func(status int)

	boxes      []*mailbox.Mailbox
	transports []*Transport

	abortOnce sync.Once
	aborted   atomic.Bool
	status    atomic.Int64
}

// NewWorld 创建 size 个 rank 的世界
func NewWorld(size int, opts ...Option) (*World, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}

	w := &World{
		id:           uuid.New().String(),
		ranksPerHost: size,
		boxes:        make([]*mailbox.Mailbox, size),
		transports:   make([]*Transport, size),
	}
	for _, opt := range opts {
		opt(w)
	}
	for r := 0; r < size; r++ {
		w.boxes[r] = mailbox.New()
		w.transports[r] = &Transport{world: w, rank: r}
	}

	log.Debug("创建进程内世界", "id", w.id, "size", size, "ranksPerHost", w.ranksPerHost)
	return w, nil
}

// ID 世界唯一标识
func (w *World) ID() string { return w.id }

// Size 进程数
func (w *World) Size() int { return len(w.boxes) }

// Transport 返回 rank 的传输
func (w *World) Transport(rank int) *Transport {
	return w.transports[rank]
}

// Abort 终止世界：唤醒所有阻塞的接收并调用退出函数，只生效一次
func (w *World) Abort(status int) {
	w.abortOnce.Do(func() {
		w.status.Store(int64(status))
		w.aborted.Store(true)
		log.Error("作业终止", "world", w.id, "status", status)

		w.closeAll(fmt.Errorf("%w: status %d", ErrAborted, status))
		if w.exit != nil {
			w.exit(status)
		}
	})
}

// Aborted 返回终止状态
func (w *World) Aborted() (status int, aborted bool) {
	return int(w.status.Load()), w.aborted.Load()
}

func (w *World) closeAll(err error) {
	for _, b := range w.boxes {
		b.Close(err)
	}
}

// ============================================================================
//                              Run
// ============================================================================

// RankFunc 每个 rank 执行的 SPMD 函数
type RankFunc func(ctx context.Context, t *Transport) error

// Run 为每个 rank 启动一个 goroutine 执行 fn，等待全部完成
//
// 任一 rank 返回错误或 panic 时，关闭所有邮箱使其余 rank 的阻塞接收返回，
// 然后返回第一个错误。panic 的值若是 error 则以 %w 包装。
func Run(ctx context.Context, w *World, fn RankFunc) error {
	g, gctx := errgroup.WithContext(ctx)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			w.closeAll(ctx.Err())
		case <-stop:
		}
	}()

	for r := 0; r < w.Size(); r++ {
		t := w.Transport(r)
		g.Go(func() (err error) {
			defer func() {
				if p := recover(); p != nil {
					if perr, ok := p.(error); ok {
						err = fmt.Errorf("rank %d panicked: %w", t.rank, perr)
					} else {
						err = fmt.Errorf("rank %d panicked: %v", t.rank, p)
					}
				}
				if err != nil {
					w.closeAll(err)
				}
			}()
			if err := fn(gctx, t); err != nil {
				return fmt.Errorf("rank %d: %w", t.rank, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// ============================================================================
//                              Transport
// ============================================================================

// Transport 单个 rank 的进程内传输
type Transport struct {
	world  *World
	rank   int
	closed atomic.Bool
}

var _ interfaces.Transport = (*Transport)(nil)

// Rank 本进程号
func (t *Transport) Rank() int { return t.rank }

// Size 世界大小
func (t *Transport) Size() int { return t.world.Size() }

// Hostname 模拟主机名
func (t *Transport) Hostname() string {
	return fmt.Sprintf("node%d", t.rank/t.world.ranksPerHost)
}

// DeviceID 模拟设备号
func (t *Transport) DeviceID() int {
	return t.rank % t.world.ranksPerHost
}

// World 所属世界
func (t *Transport) World() *World { return t.world }

// Send 复制 payload 并投递到目标邮箱
func (t *Transport) Send(dst int, env interfaces.Envelope, payload []byte) error {
	if t.closed.Load() {
		return ErrTransportClosed
	}
	if dst < 0 || dst >= t.world.Size() {
		return fmt.Errorf("%w: %d", ErrRankOutOfRange, dst)
	}
	buf := make([]byte, len(payload))
	copy(buf, payload)
	return t.world.boxes[dst].Deliver(t.rank, env, buf)
}

// Recv 阻塞接收
func (t *Transport) Recv(src int, env interfaces.Envelope) ([]byte, error) {
	if t.closed.Load() {
		return nil, ErrTransportClosed
	}
	if src < 0 || src >= t.world.Size() {
		return nil, fmt.Errorf("%w: %d", ErrRankOutOfRange, src)
	}
	return t.world.boxes[t.rank].Recv(src, env)
}

// TryRecv 非阻塞接收
func (t *Transport) TryRecv(src int, env interfaces.Envelope) ([]byte, bool, error) {
	if t.closed.Load() {
		return nil, false, ErrTransportClosed
	}
	if src < 0 || src >= t.world.Size() {
		return nil, false, fmt.Errorf("%w: %d", ErrRankOutOfRange, src)
	}
	return t.world.boxes[t.rank].TryRecv(src, env)
}

// Abort 终止整个世界
func (t *Transport) Abort(status int) {
	t.world.Abort(status)
}

// Close 关闭本 rank 的传输；其他 rank 仍可向本邮箱投递
func (t *Transport) Close() error {
	t.closed.Store(true)
	return nil
}
