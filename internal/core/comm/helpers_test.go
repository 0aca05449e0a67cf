package comm

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/dep2p/go-commstack/config"
	"github.com/dep2p/go-commstack/internal/core/transport/loopback"
	"github.com/dep2p/go-commstack/internal/core/transport/tcp"
	"github.com/dep2p/go-commstack/pkg/types"
)

// runGrid 在进程内世界上为每个 rank 构建默认通信子并执行 fn
func runGrid(t *testing.T, dims types.CommKey, cfg config.CommConfig, fn func(c *Communicator) error, opts ...loopback.Option) {
	t.Helper()
	w, err := loopback.NewWorld(dims.Product(), opts...)
	require.NoError(t, err)

	err = loopback.Run(context.Background(), w, func(_ context.Context, tr *loopback.Transport) error {
		c, err := New(cfg, tr, dims, types.LexRankLastFastest, dims)
		if err != nil {
			return err
		}
		defer c.Close()
		return fn(c)
	})
	require.NoError(t, err)
}

// runTCPGrid 在本机回环地址上建立 TCP 全连接，为每个 rank 构建默认通信子并执行 fn
func runTCPGrid(t *testing.T, dims types.CommKey, fn func(c *Communicator) error) {
	t.Helper()
	n := dims.Product()

	lns := make([]net.Listener, n)
	peers := make([]string, n)
	for i := range lns {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		lns[i] = ln
		peers[i] = ln.Addr().String()
	}

	// 所有进程都结束后才关闭连接，已发出的消息不会被丢弃
	var finished sync.WaitGroup
	finished.Add(n)

	var g errgroup.Group
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			cfg := config.DefaultTransportConfig()
			cfg.Rank = i
			cfg.Peers = peers
			cfg.Hostname = "host"
			cfg.DeviceID = i
			cfg.DialTimeout = config.Duration(5 * time.Second)

			tr, err := tcp.New(context.Background(), cfg,
				tcp.WithListener(lns[i]), tcp.WithDialRetry(10*time.Millisecond))
			if err != nil {
				finished.Done()
				return err
			}
			defer tr.Close()

			c, err := New(config.DefaultCommConfig(), tr, dims, types.LexRankLastFastest, dims)
			if err == nil {
				defer c.Close()
				err = fn(c)
			}
			finished.Done()
			finished.Wait()
			return err
		})
	}
	require.NoError(t, g.Wait())
}

// newSingle 构建单进程通信子（构建过程不涉及通信）
func newSingle(t *testing.T, cfg config.CommConfig, opts ...Option) *Communicator {
	t.Helper()
	w, err := loopback.NewWorld(1)
	require.NoError(t, err)

	c, err := New(cfg, w.Transport(0), types.DefaultKey, types.LexRankLastFastest, types.DefaultKey, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// requirePanicIs 断言 fn 以包装了 target 的 error panic
func requirePanicIs(t *testing.T, target error, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		require.NotNil(t, r, "expected panic wrapping %v", target)
		err, ok := r.(error)
		require.True(t, ok, "panic value %v is not an error", r)
		assert.ErrorIs(t, err, target)
	}()
	fn()
}
