package tcp

import "errors"

var (
	// ErrNoPeers 配置中没有对端地址
	ErrNoPeers = errors.New("no peers configured")

	// ErrJobMismatch 握手时作业 ID 不一致
	ErrJobMismatch = errors.New("job id mismatch")

	// ErrHandshake 握手失败
	ErrHandshake = errors.New("handshake failed")

	// ErrFrameTooLarge 帧超过上限
	ErrFrameTooLarge = errors.New("frame too large")

	// ErrMalformedFrame 帧无法解析
	ErrMalformedFrame = errors.New("malformed frame")

	// ErrAborted 作业已被终止
	ErrAborted = errors.New("job aborted")

	// ErrClosed 传输已关闭
	ErrClosed = errors.New("transport closed")

	// ErrRankOutOfRange 进程号越界
	ErrRankOutOfRange = errors.New("rank out of range")

	// ErrPeerLost 与对端的连接中断
	ErrPeerLost = errors.New("peer connection lost")
)
