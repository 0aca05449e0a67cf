// Package interfaces 定义 commstack 公共接口
//
// # 接口一览
//
//   - Transport     - 进程间传输（loopback / tcp 两种实现）
//   - Communicator  - 单一拓扑上的通信上下文契约
//   - MsgHandle     - 一次声明的点对点传输
//   - PendingReduction - 异步规约
//
// Registry 只依赖 Communicator 契约，具体实现位于 internal/core/comm。
package interfaces
