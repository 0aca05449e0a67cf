// Package commstack 提供 SPMD 网格引擎的通信上下文注册表
//
// 网格引擎的每个进程执行同一份程序，按四维进程网格划分数据。多重网格的
// 粗层、批量求解的分组等场景需要在同一作业中使用多个进程网格（拓扑），
// 每个拓扑对应一个通信子。Registry 负责按拓扑键创建、缓存和切换通信子。
//
// # 核心概念
//
//   - CommKey: 四元拓扑键；DefaultKey 表示不切分的默认网格
//   - Communicator: 一个拓扑上的通信上下文（进程映射、邻居、消息句柄、集合通信）
//   - Registry: 拓扑键到通信子的映射，记录当前键；从不淘汰
//   - CurrentContext / DefaultContext: 把操作绑定到当前或默认通信子
//
// # 快速开始
//
//	reg, err := commstack.New(commstack.WithConfig(cfg))
//	if err != nil {
//	    return err
//	}
//	err = reg.Initialize(ctx, commstack.InitParams{
//	    Dims:      types.CommKey{2, 2, 1, 1},
//	    Transport: tr,
//	})
//	if err != nil {
//	    return err
//	}
//	defer reg.Finalize()
//
//	// 切换到切分后的拓扑，之后的集合操作只在子网格内进行
//	if _, err := reg.Select(types.CommKey{2, 1, 1, 1}); err != nil {
//	    return err
//	}
//	sum, err := reg.Current().AllReduceSum(local)
//
// # 派生规则
//
// 所有子通信子都从默认通信子切分得到，而不是从当前通信子。连续两次 Select
// 不会在前一个子网格上再切分。
//
// # 错误分类
//
//   - 不变量被破坏（重复初始化、未初始化、句柄误用）：记录日志后 panic
//   - 资源超限（拓扑数超过上限、消息过大、位移过大）：记录日志后 panic
//   - 集合操作不匹配（各进程调用顺序不同）：无法检测，作业死锁
//   - 建议性状态（P2P 是否存在等）：只以布尔值报告
//
// panic 的值是包装了哨兵错误的 error，可以用 errors.Is 判断。
package commstack
