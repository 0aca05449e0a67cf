package comm

import (
	"github.com/dep2p/go-commstack/internal/core/metrics"
)

// Option 通信子选项，子通信子继承父通信子的选项
type Option func(*options)

type options struct {
	reporter metrics.Reporter
}

// WithReporter 记录流量与集合操作
func WithReporter(r metrics.Reporter) Option {
	return func(o *options) {
		o.reporter = r
	}
}
