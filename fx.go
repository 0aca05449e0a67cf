package commstack

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/dep2p/go-commstack/config"
	"github.com/dep2p/go-commstack/internal/core/metrics"
	"github.com/dep2p/go-commstack/pkg/lib/log"
)

var fxLogger = log.Logger("commstack/fx")

// Params 注册表依赖参数
type Params struct {
	fx.In

	Config   *config.Config `optional:"true"`
	Reporter Reporter       `optional:"true"`
}

// LifecycleParams 生命周期参数
//
// 提供了 *InitParams 时，应用启动即初始化注册表，停止时结束。
type LifecycleParams struct {
	fx.In

	LC       fx.Lifecycle
	Registry *Registry
	Init     *InitParams `optional:"true"`
}

// Module 返回注册表的 Fx 模块（含流量统计）
func Module() fx.Option {
	return fx.Module("commstack",
		metrics.Module,
		fx.Provide(NewFromParams),
		fx.Invoke(registerLifecycle),
	)
}

// NewFromParams 从 Fx 参数创建注册表
func NewFromParams(p Params) (*Registry, error) {
	var opts []Option
	if p.Config != nil {
		opts = append(opts, WithConfig(p.Config))
	}
	if p.Reporter != nil {
		opts = append(opts, WithReporter(p.Reporter))
	}
	return New(opts...)
}

func registerLifecycle(p LifecycleParams) {
	if p.Init == nil {
		return
	}
	params := *p.Init
	p.LC.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return p.Registry.Initialize(ctx, params)
		},
		OnStop: func(context.Context) error {
			return p.Registry.Finalize()
		},
	})
}

// NewApp 构建包含注册表的 Fx 应用
//
// cfg 与 params 以 Supply 方式注入，extra 可以追加调用方自己的模块。
func NewApp(cfg *config.Config, params InitParams, extra ...fx.Option) *fx.App {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	modules := []fx.Option{
		fx.Supply(cfg, &params),
		Module(),
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: zap.NewNop()}
		}),
	}
	modules = append(modules, extra...)

	fxLogger.Debug("构建 Fx 应用", "dims", params.Dims)
	return fx.New(modules...)
}
