// Package tcp 实现跨进程的 TCP 全连接传输
//
// # 建连
//
// 每对进程之间一条 TCP 连接：编号较小的一方监听并接受，编号较大的一方拨号，
// 在 DialTimeout 内重试。连接由 yamux 会话复用为两条流：
//
//	data  点对点与集合通信消息
//	ctrl  终止通知
//
// 拨号方在 data 流上发送 hello 帧（进程号 + 作业 ID），监听方校验后回复 hello。
//
// # 帧格式
//
//	[4 字节大端长度][protowire 记录]
//
// 记录字段见 frame.go。长度超过 MaxFrameBytes 的帧视为协议错误并断开。
package tcp
