// Package types 定义 commstack 的公共数据结构
//
// 这是整个系统的最底层包，不依赖任何其他 commstack 内部包。
// 所有类型都是纯值类型，用于在各模块间传递数据。
//
// # 文件组织
//
//   - key.go     - CommKey 拓扑键（进程网格划分形状）
//   - coords.go  - Coords、Displacement、Direction
//   - rankmap.go - RankFromCoordsFunc 及内置的字典序映射
//   - errors.go  - 公共错误定义
//
// # 拓扑键
//
// CommKey 是定长数组，天然可比较、按值不可变，可直接作为 map 键：
//
//	key := types.CommKey{2, 1, 1, 1}
//	if key == types.DefaultKey { ... }
//
// DefaultKey（1x1x1x1）表示"不切分"，默认通信子在它下面注册。
package types
