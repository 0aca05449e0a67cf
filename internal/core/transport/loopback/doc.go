// Package loopback 实现进程内的多 rank 世界
//
// World 为每个 rank 提供一个 Transport，消息直接投递到目标 rank 的邮箱。
// Run 为每个 rank 启动一个 goroutine 执行同一段 SPMD 代码，用于测试与单机演示。
//
// 主机与设备按 WithRanksPerHost 模拟：rank r 位于主机 "node<r/n>"，设备号为 r%n。
package loopback
