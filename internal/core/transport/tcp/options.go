package tcp

import (
	"io"
	"net"
	"time"

	"github.com/hashicorp/yamux"
)

// Option 传输选项
type Option func(*options)

type options struct {
	listener net.Listener
	exit     func(status int)
	yamuxCfg *yamux.Config
	retry    time.Duration
}

func defaultOptions() options {
	return options{
		yamuxCfg: DefaultYamuxConfig(),
		retry:    100 * time.Millisecond,
	}
}

// WithListener 使用已创建的监听器（测试中传入 127.0.0.1:0）
func WithListener(ln net.Listener) Option {
	return func(o *options) {
		o.listener = ln
	}
}

// WithExitFunc 终止时调用的退出函数
func WithExitFunc(fn func(status int)) Option {
	return func(o *options) {
		o.exit = fn
	}
}

// WithYamuxConfig 覆盖 yamux 配置
func WithYamuxConfig(cfg *yamux.Config) Option {
	return func(o *options) {
		if cfg != nil {
			o.yamuxCfg = cfg
		}
	}
}

// WithDialRetry 拨号重试间隔
func WithDialRetry(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.retry = d
		}
	}
}

// DefaultYamuxConfig 返回默认的 yamux 配置
func DefaultYamuxConfig() *yamux.Config {
	return &yamux.Config{
		AcceptBacklog:          256,
		EnableKeepAlive:        true,
		KeepAliveInterval:      30 * time.Second,
		ConnectionWriteTimeout: 10 * time.Second,
		MaxStreamWindowSize:    1024 * 1024, // 1 MB，halo 消息通常较大
		StreamOpenTimeout:      75 * time.Second,
		StreamCloseTimeout:     5 * time.Minute,
		LogOutput:              io.Discard, // 禁用日志输出
	}
}
