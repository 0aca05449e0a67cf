// Package main 提供 commstack 命令行入口
//
// 启动器在进程内（loopback）或跨进程（tcp）建立作业，依次执行：
// 初始化、全网格规约、邻居交换、切分并在子网格上规约、收集主机名、结束。
package main

import (
	"context"
	"encoding/binary"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dep2p/go-commstack"
	"github.com/dep2p/go-commstack/config"
	"github.com/dep2p/go-commstack/internal/core/metrics"
	"github.com/dep2p/go-commstack/internal/core/transport/loopback"
	"github.com/dep2p/go-commstack/pkg/lib/log"
	"github.com/dep2p/go-commstack/pkg/types"
)

var logger = log.Logger("commstack/cmd")

// ═══════════════════════════════════════════════════════════════════════════
// 命令行参数
// ═══════════════════════════════════════════════════════════════════════════
//
//   命令行参数：这次运行的网格与传输方式
//   JSON 配置文件：通信子行为、注册表上限等固定配置
//
// ═══════════════════════════════════════════════════════════════════════════
var (
	configFile    = flag.String("config", "", "配置文件路径")
	ranks         = flag.Int("ranks", 0, "进程内世界的进程数（0 = 网格进程数）")
	ranksPerHost  = flag.Int("ranks-per-host", 0, "进程内世界每台模拟主机的进程数")
	grid          = flag.String("grid", "", "进程网格，如 2x2x1x1")
	splits        = flag.String("split", "", "切分键，逗号分隔，如 2x1x1x1,1x2x1x1")
	transportKind = flag.String("transport", "loopback", "传输方式 (loopback/tcp)")
	rank          = flag.Int("rank", -1, "本进程全局编号（tcp）")
	peers         = flag.String("peers", "", "所有进程地址，按进程号排列，逗号分隔（tcp）")
	deterministic = flag.Bool("deterministic", false, "按进程号顺序规约")
	showVersion   = flag.Bool("version", false, "显示版本信息")
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flag.Parse()

	if *showVersion {
		fmt.Println(commstack.VersionInfo())
		return nil
	}

	cfg, err := buildConfig()
	if err != nil {
		return fmt.Errorf("配置错误: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("启动作业", "version", commstack.Version, "grid", cfg.Grid.Dims, "transport", *transportKind)

	switch *transportKind {
	case "loopback":
		size := *ranks
		if size == 0 {
			size = cfg.Grid.Dims.Product()
		}
		var opts []loopback.Option
		if *ranksPerHost > 0 {
			opts = append(opts, loopback.WithRanksPerHost(*ranksPerHost))
		}
		w, err := loopback.NewWorld(size, opts...)
		if err != nil {
			return err
		}
		return loopback.Run(ctx, w, func(ctx context.Context, tr *loopback.Transport) error {
			return drive(ctx, cfg, tr)
		})
	case "tcp":
		// 注册表按 cfg.Transport 建立全连接
		return drive(ctx, cfg, nil)
	default:
		return fmt.Errorf("未知传输方式: %s", *transportKind)
	}
}

// drive 单个进程上的完整流程
func drive(ctx context.Context, cfg *config.Config, tr commstack.Transport) error {
	var reporter commstack.Reporter
	counter := metrics.NewBandwidthCounter()
	if cfg.Metrics.Enabled {
		reporter = counter
	}

	reg, err := commstack.New(commstack.WithConfig(cfg), commstack.WithReporter(reporter))
	if err != nil {
		return err
	}
	if err := reg.Initialize(ctx, commstack.InitParams{
		Dims:           cfg.Grid.Dims,
		RankFromCoords: cfg.Grid.RankMap(),
		Transport:      tr,
	}); err != nil {
		return err
	}
	defer func() {
		if err := reg.Finalize(); err != nil {
			logger.Warn("结束注册表失败", "err", err)
		}
	}()

	def := reg.Default()
	lg := logger.ForRank(def.Rank()).RootOnly()
	cur := reg.Current()

	// 全网格规约：成员 i 贡献 i
	sum, err := cur.AllReduceSum(float64(cur.Rank()))
	if err != nil {
		return fmt.Errorf("全网格规约: %w", err)
	}
	lg.Info("全网格规约", "topology", cur.TopologyString(), "sum", sum)

	if err := haloExchange(cur); err != nil {
		return err
	}
	lg.Info("邻居交换完成", "partitioned", cur.Partitioned())

	for _, key := range cfg.Grid.Splits {
		if _, err := reg.Select(key); err != nil {
			return err
		}
		n, err := cur.AllReduceInt(1)
		if err != nil {
			return fmt.Errorf("子网格 %s 规约: %w", key, err)
		}
		lg.Info("子网格规约", "key", key, "topology", cur.TopologyString(), "members", n)
	}

	if _, err := reg.Select(types.DefaultKey); err != nil {
		return err
	}
	hosts, err := cur.GatherHostnames()
	if err != nil {
		return err
	}
	if def.Rank() == 0 {
		totals := counter.GetBandwidthTotals()
		fmt.Printf("%s\n", commstack.VersionInfo())
		fmt.Printf("网格 %s，%d 个进程，%d 个拓扑\n", cfg.Grid.Dims, def.Size(), reg.Len())
		fmt.Printf("主机: %v\n", hosts)
		fmt.Printf("发送 %d 字节，接收 %d 字节\n", totals.TotalOut, totals.TotalIn)
	}
	return nil
}

// haloExchange 与每个分区维度上的前后邻居交换进程号，并校验结果
func haloExchange(cur commstack.CurrentContext) error {
	const width = 8
	me := cur.Rank()

	for dim := 0; dim < types.NDim; dim++ {
		if !cur.DimPartitioned(dim) {
			continue
		}
		var handles []commstack.MsgHandle
		recvBufs := map[types.Direction][]byte{}
		for _, dir := range []types.Direction{types.Backward, types.Forward} {
			src := make([]byte, width)
			binary.BigEndian.PutUint64(src, uint64(me))
			dst := make([]byte, width)
			recvBufs[dir] = dst

			handles = append(handles,
				cur.DeclareReceiveRelative(dst, dim, dir, width),
				cur.DeclareSendRelative(src, dim, dir.Opposite(), width))
		}

		for _, h := range handles {
			if err := cur.Start(h); err != nil {
				return err
			}
		}
		for _, h := range handles {
			if err := cur.Wait(h); err != nil {
				return fmt.Errorf("dim %d 邻居交换: %w", dim, err)
			}
			cur.Free(h)
		}

		for dir, buf := range recvBufs {
			got := int(binary.BigEndian.Uint64(buf))
			if want := cur.Communicator().NeighborRank(dir, dim); got != want {
				return fmt.Errorf("dim %d %v 邻居: 收到 %d，期望 %d", dim, dir, got, want)
			}
		}
	}
	return nil
}
