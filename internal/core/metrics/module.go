package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	"github.com/dep2p/go-commstack/config"
)

// Params Metrics 依赖参数
type Params struct {
	fx.In

	Config *config.Config `optional:"true"`
}

// Result Metrics 输出
//
// 指标关闭时所有字段为 nil，通信子据此跳过记录。
type Result struct {
	fx.Out

	Counter   *BandwidthCounter
	Reporter  Reporter
	Collector *Collector
}

// RegisterParams 注册 Prometheus 导出器的参数
type RegisterParams struct {
	fx.In

	Registerer prometheus.Registerer `optional:"true"`
	Collector  *Collector            `optional:"true"`
}

// Module 是 metrics 的 Fx 模块
var Module = fx.Module("metrics",
	fx.Provide(NewFromParams),
	fx.Invoke(RegisterCollector),
)

// NewFromParams 从参数创建计数器与导出器
func NewFromParams(p Params) Result {
	if p.Config != nil && !p.Config.Metrics.Enabled {
		return Result{}
	}
	counter := NewBandwidthCounter()
	return Result{
		Counter:   counter,
		Reporter:  counter,
		Collector: NewCollector(counter),
	}
}

// RegisterCollector 向调用方提供的 Registerer 注册导出器
func RegisterCollector(p RegisterParams) error {
	if p.Registerer == nil || p.Collector == nil {
		return nil
	}
	return p.Registerer.Register(p.Collector)
}
