// Package topology 实现进程网格的坐标计算
//
// Topology 保存整个网格的 rank↔坐标 双向表，因此任何进程都可以在本地算出
// 任意进程的坐标、周期性邻居，以及按切分键得到的子网格成员，无需通信。
//
// # 切分
//
// 对切分键 key，子网格尺寸为 dims/key。进程坐标 c 的
//
//	subCoord = c % subDims    // 在子网格中的坐标，决定子进程号
//	color    = c / subDims    // 属于哪个子网格
//
// 子进程号是 subCoord 在子网格中的字典序下标（第一维最慢）。
//
// # 标签
//
// 位移声明的消息用位移编码标签：发送方用 +disp 编码，接收方用 -disp 编码，
// 使得向前发送恰好匹配邻居的向后接收。每维位移绝对值必须小于 MaxDisplacement。
package topology
