package tcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/yamux"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/dep2p/go-commstack/config"
	"github.com/dep2p/go-commstack/internal/core/transport/mailbox"
	"github.com/dep2p/go-commstack/internal/util/logger"
	"github.com/dep2p/go-commstack/pkg/interfaces"
)

var log = logger.Logger("transport.tcp")

// frameOverhead 数据帧除 payload 外的最大开销
const frameOverhead = 64

// peer 与一个对端的连接
type peer struct {
	rank int
	sess *yamux.Session
	data net.Conn
	ctrl net.Conn

	dataMu sync.Mutex
	ctrlMu sync.Mutex
}

// Transport TCP 全连接传输
type Transport struct {
	cfg  config.TransportConfig
	opts options

	rank     int
	size     int
	hostname string

	box *mailbox.Mailbox
	ln  net.Listener

	mu    sync.Mutex
	peers []*peer

	closed    atomic.Bool
	closeOnce sync.Once
	abortOnce sync.Once
	wg        sync.WaitGroup
}

var _ interfaces.Transport = (*Transport)(nil)

// New 建立到所有对端的连接，阻塞直到全连接完成或超时
func New(ctx context.Context, cfg config.TransportConfig, opts ...Option) (*Transport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(cfg.Peers) == 0 {
		return nil, ErrNoPeers
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	hostname := cfg.Hostname
	if hostname == "" {
		h, err := os.Hostname()
		if err != nil {
			return nil, fmt.Errorf("获取主机名失败: %w", err)
		}
		hostname = h
	}

	t := &Transport{
		cfg:      cfg,
		opts:     o,
		rank:     cfg.Rank,
		size:     len(cfg.Peers),
		hostname: hostname,
		box:      mailbox.New(),
		peers:    make([]*peer, len(cfg.Peers)),
	}

	t.ln = o.listener
	if t.ln == nil && t.rank < t.size-1 {
		ln, err := net.Listen("tcp", cfg.LocalAddr())
		if err != nil {
			return nil, fmt.Errorf("监听 %s 失败: %w", cfg.LocalAddr(), err)
		}
		t.ln = ln
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.DialTimeout.Duration())
	defer cancel()

	if err := t.connect(ctx); err != nil {
		_ = t.teardown()
		return nil, err
	}

	// 全连接完成后不再接受新连接
	if t.ln != nil {
		_ = t.ln.Close()
	}

	for _, p := range t.peers {
		if p == nil {
			continue
		}
		t.wg.Add(2)
		go t.readData(p)
		go t.readCtrl(p)
	}

	log.Info("TCP 全连接建立完成",
		"rank", t.rank,
		"size", t.size,
		"job", cfg.JobID,
		"hostname", hostname)
	return t, nil
}

// ============================================================================
//                              建连
// ============================================================================

func (t *Transport) connect(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	if accepts := t.size - 1 - t.rank; accepts > 0 {
		g.Go(func() error {
			return t.acceptAll(gctx, accepts)
		})
	}
	for r := 0; r < t.rank; r++ {
		r := r
		g.Go(func() error {
			return t.dial(gctx, r)
		})
	}
	return g.Wait()
}

func (t *Transport) acceptAll(ctx context.Context, n int) error {
	stop := context.AfterFunc(ctx, func() { _ = t.ln.Close() })
	defer stop()

	for i := 0; i < n; i++ {
		conn, err := t.ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("等待 %d 个对端连接超时: %w", n-i, context.Cause(ctx))
			}
			return fmt.Errorf("接受连接失败: %w", err)
		}
		if err := t.acceptOne(ctx, conn); err != nil {
			_ = conn.Close()
			return err
		}
	}
	return nil
}

func (t *Transport) acceptOne(ctx context.Context, conn net.Conn) error {
	sess, err := yamux.Server(conn, t.opts.yamuxCfg)
	if err != nil {
		return fmt.Errorf("创建 yamux session 失败: %w", err)
	}
	// 上下文取消时关闭 session，解除 AcceptStream 的阻塞
	stop := context.AfterFunc(ctx, func() { _ = sess.Close() })
	data, ctrl, err := acceptStreams(sess)
	if !stop() {
		_ = sess.Close()
		return fmt.Errorf("%w: accept streams: %w", ErrHandshake, context.Cause(ctx))
	}
	if err != nil {
		_ = sess.Close()
		return fmt.Errorf("%w: %v", ErrHandshake, err)
	}

	setDeadline(ctx, data)
	hello, err := readFrame(data, t.cfg.MaxFrameBytes)
	if err != nil {
		_ = sess.Close()
		return fmt.Errorf("%w: read hello: %v", ErrHandshake, err)
	}
	if hello.typ != frameHello {
		_ = sess.Close()
		return fmt.Errorf("%w: expected hello, got frame type %d", ErrHandshake, hello.typ)
	}
	if hello.jobID != t.cfg.JobID {
		_ = sess.Close()
		return fmt.Errorf("%w: local %q, remote %q", ErrJobMismatch, t.cfg.JobID, hello.jobID)
	}
	if hello.source <= t.rank || hello.source >= t.size {
		_ = sess.Close()
		return fmt.Errorf("%w: unexpected rank %d", ErrHandshake, hello.source)
	}
	if err := writeFrame(data, &frame{typ: frameHello, source: t.rank, jobID: t.cfg.JobID}); err != nil {
		_ = sess.Close()
		return fmt.Errorf("%w: write hello: %v", ErrHandshake, err)
	}
	_ = data.SetDeadline(time.Time{})

	return t.addPeer(&peer{rank: hello.source, sess: sess, data: data, ctrl: ctrl})
}

// acceptStreams 按拨号方打开的顺序接受数据流与控制流
func acceptStreams(sess *yamux.Session) (data, ctrl *yamux.Stream, err error) {
	if data, err = sess.AcceptStream(); err != nil {
		return nil, nil, fmt.Errorf("accept data stream: %w", err)
	}
	if ctrl, err = sess.AcceptStream(); err != nil {
		return nil, nil, fmt.Errorf("accept ctrl stream: %w", err)
	}
	return data, ctrl, nil
}

func (t *Transport) dial(ctx context.Context, r int) error {
	addr := t.cfg.Peers[r]

	var d net.Dialer
	var conn net.Conn
	for {
		c, err := d.DialContext(ctx, "tcp", addr)
		if err == nil {
			conn = c
			break
		}
		log.Debug("拨号失败，稍后重试", "peer", r, "addr", addr, "err", err)
		select {
		case <-ctx.Done():
			return fmt.Errorf("拨号 rank %d (%s) 超时: %w", r, addr, err)
		case <-time.After(t.opts.retry):
		}
	}

	sess, err := yamux.Client(conn, t.opts.yamuxCfg)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("创建 yamux session 失败: %w", err)
	}
	data, err := sess.OpenStream()
	if err != nil {
		_ = sess.Close()
		return fmt.Errorf("%w: open data stream: %v", ErrHandshake, err)
	}
	ctrl, err := sess.OpenStream()
	if err != nil {
		_ = sess.Close()
		return fmt.Errorf("%w: open ctrl stream: %v", ErrHandshake, err)
	}

	setDeadline(ctx, data)
	if err := writeFrame(data, &frame{typ: frameHello, source: t.rank, jobID: t.cfg.JobID}); err != nil {
		_ = sess.Close()
		return fmt.Errorf("%w: write hello: %v", ErrHandshake, err)
	}
	ack, err := readFrame(data, t.cfg.MaxFrameBytes)
	if err != nil {
		_ = sess.Close()
		return fmt.Errorf("%w: read hello from rank %d: %v", ErrHandshake, r, err)
	}
	if ack.typ != frameHello || ack.source != r {
		_ = sess.Close()
		return fmt.Errorf("%w: rank %d answered as %d", ErrHandshake, r, ack.source)
	}
	if ack.jobID != t.cfg.JobID {
		_ = sess.Close()
		return fmt.Errorf("%w: local %q, remote %q", ErrJobMismatch, t.cfg.JobID, ack.jobID)
	}
	_ = data.SetDeadline(time.Time{})

	return t.addPeer(&peer{rank: r, sess: sess, data: data, ctrl: ctrl})
}

func (t *Transport) addPeer(p *peer) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.peers[p.rank] != nil {
		_ = p.sess.Close()
		return fmt.Errorf("%w: duplicate connection from rank %d", ErrHandshake, p.rank)
	}
	t.peers[p.rank] = p
	log.Debug("对端已连接", "rank", t.rank, "peer", p.rank)
	return nil
}

func setDeadline(ctx context.Context, c net.Conn) {
	if dl, ok := ctx.Deadline(); ok {
		_ = c.SetDeadline(dl)
	}
}

// ============================================================================
//                              读循环
// ============================================================================

func (t *Transport) readData(p *peer) {
	defer t.wg.Done()

	for {
		f, err := readFrame(p.data, t.cfg.MaxFrameBytes)
		if err != nil {
			if t.closed.Load() {
				return
			}
			if errors.Is(err, io.EOF) {
				// 对端正常关闭，已排队的消息仍可取出
				log.Debug("对端关闭数据流", "rank", t.rank, "peer", p.rank)
				return
			}
			log.Warn("读取数据帧失败", "rank", t.rank, "peer", p.rank, "err", err)
			t.box.Close(fmt.Errorf("%w: rank %d: %v", ErrPeerLost, p.rank, err))
			return
		}
		if f.typ != frameData {
			continue
		}
		if err := t.box.Deliver(p.rank, f.env, f.payload); err != nil {
			return
		}
	}
}

func (t *Transport) readCtrl(p *peer) {
	defer t.wg.Done()

	for {
		f, err := readFrame(p.ctrl, t.cfg.MaxFrameBytes)
		if err != nil {
			return
		}
		if f.typ == frameAbort {
			log.Error("收到终止通知", "rank", t.rank, "from", p.rank, "status", f.status)
			t.abort(f.status, false)
			return
		}
	}
}

// ============================================================================
//                              Transport 接口
// ============================================================================

// Rank 本进程号
func (t *Transport) Rank() int { return t.rank }

// Size 进程数
func (t *Transport) Size() int { return t.size }

// Hostname 主机名
func (t *Transport) Hostname() string { return t.hostname }

// DeviceID 设备号
func (t *Transport) DeviceID() int { return t.cfg.DeviceID }

// Send 发送一条消息，写入连接后返回
func (t *Transport) Send(dst int, env interfaces.Envelope, payload []byte) error {
	if t.closed.Load() {
		return ErrClosed
	}
	if dst < 0 || dst >= t.size {
		return fmt.Errorf("%w: %d", ErrRankOutOfRange, dst)
	}
	if len(payload)+frameOverhead > t.cfg.MaxFrameBytes {
		return fmt.Errorf("%w: payload %d bytes", ErrFrameTooLarge, len(payload))
	}

	if dst == t.rank {
		buf := make([]byte, len(payload))
		copy(buf, payload)
		return t.box.Deliver(t.rank, env, buf)
	}

	p := t.peers[dst]
	p.dataMu.Lock()
	defer p.dataMu.Unlock()
	if err := writeFrame(p.data, &frame{typ: frameData, env: env, source: t.rank, payload: payload}); err != nil {
		return fmt.Errorf("%w: send to rank %d: %v", ErrPeerLost, dst, err)
	}
	return nil
}

// Recv 阻塞接收
func (t *Transport) Recv(src int, env interfaces.Envelope) ([]byte, error) {
	if src < 0 || src >= t.size {
		return nil, fmt.Errorf("%w: %d", ErrRankOutOfRange, src)
	}
	return t.box.Recv(src, env)
}

// TryRecv 非阻塞接收
func (t *Transport) TryRecv(src int, env interfaces.Envelope) ([]byte, bool, error) {
	if src < 0 || src >= t.size {
		return nil, false, fmt.Errorf("%w: %d", ErrRankOutOfRange, src)
	}
	return t.box.TryRecv(src, env)
}

// Abort 通知所有对端终止并退出
func (t *Transport) Abort(status int) {
	t.abort(status, true)
}

func (t *Transport) abort(status int, broadcast bool) {
	t.abortOnce.Do(func() {
		if broadcast {
			log.Error("终止作业", "rank", t.rank, "status", status)
			for _, p := range t.peers {
				if p == nil {
					continue
				}
				p.ctrlMu.Lock()
				_ = writeFrame(p.ctrl, &frame{typ: frameAbort, source: t.rank, status: status})
				p.ctrlMu.Unlock()
			}
		}
		t.box.Close(fmt.Errorf("%w: status %d", ErrAborted, status))
		if t.opts.exit != nil {
			t.opts.exit(status)
		}
	})
}

// Close 关闭所有连接
func (t *Transport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.closed.Store(true)
		err = t.teardown()
		t.wg.Wait()
		t.box.Close(ErrClosed)
		log.Debug("TCP 传输已关闭", "rank", t.rank)
	})
	return err
}

func (t *Transport) teardown() error {
	var err error
	if t.ln != nil {
		if cerr := t.ln.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = multierr.Append(err, cerr)
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range t.peers {
		if p == nil {
			continue
		}
		err = multierr.Append(err, p.sess.Close())
	}
	return err
}
