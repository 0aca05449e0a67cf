// Package comm 实现一个拓扑上的通信子
//
// Communicator 绑定一个拓扑键、一张 rank↔坐标表与一个进程组（组内编号到
// 全局编号的映射），在其上提供拓扑查询、点对点消息声明与集合通信。
//
// # 构建
//
// 默认通信子由 New 从调用方的坐标映射构建；子通信子由 Split 从父通信子的
// 完整坐标表在本地推导，无需通信。两条路径最后都在新进程组上执行一次
// 构建集合操作：交换主机名与设备号，计算节点内/点对点表，并规约点对点链路数。
// 组内每个成员都必须参与构建。
//
// # 消息匹配
//
// 每个通信子有一个上下文 ID（由父上下文与拓扑键的 FNV-1a 哈希得到），
// 点对点消息与集合通信消息使用不同的信封类别，互不匹配。
//
// # 致命错误
//
// 句柄误用与资源超限属于编程错误：先以 Error 级别记录，再以包装了哨兵错误的
// error 值 panic，recover 后可用 errors.Is 判断。传输失败等可恢复错误以返回值报告。
package comm
