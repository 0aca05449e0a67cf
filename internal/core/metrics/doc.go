// Package metrics 提供通信流量统计
//
// 统计按拓扑键与对端全局进程号两个维度进行：
//   - 点对点字节数（发送/接收，按拓扑键、按对端、总计）
//   - 集合操作次数（按拓扑键与操作名）
//   - 泄漏句柄数（通信子关闭时报告）
//
// 速率由 RateMeter 计算：60 个 1 秒桶的滑动窗口，时钟可注入以便测试。
//
// # 快速开始
//
//	counter := metrics.NewBandwidthCounter()
//	counter.LogSent(types.DefaultKey, 1, 4096)
//
//	stats := counter.GetBandwidthForKey(types.DefaultKey)
//	fmt.Printf("Out: %d, RateOut: %.2f B/s\n", stats.TotalOut, stats.RateOut)
//
// # Prometheus
//
//	reg := prometheus.NewRegistry()
//	reg.MustRegister(metrics.NewCollector(counter))
//
// # Fx 模块
//
//	app := fx.New(
//	    metrics.Module,
//	    fx.Invoke(func(reporter metrics.Reporter) { ... }),
//	)
//
// 所有方法并发安全：异步规约在后台 goroutine 中记录流量。
package metrics
