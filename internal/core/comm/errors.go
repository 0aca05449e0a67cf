package comm

import (
	"errors"
	"fmt"
)

// ============================================================================
//                              错误定义
// ============================================================================

var (
	// ErrGridMismatch 网格进程数与传输进程数不一致
	ErrGridMismatch = errors.New("grid size does not match transport size")

	// ErrResourceLimit 声明超出资源限制
	ErrResourceLimit = errors.New("communication resource limit exceeded")

	// ErrHandleMisuse 句柄误用
	ErrHandleMisuse = errors.New("message handle misuse")

	// ErrTruncated 接收到的字节数与声明不一致
	ErrTruncated = errors.New("message length mismatch")

	// ErrSizeMismatch 集合操作的缓冲区长度在各进程间不一致
	ErrSizeMismatch = errors.New("collective buffer size mismatch")

	// ErrInvalidPeer 对端进程号越界
	ErrInvalidPeer = errors.New("peer rank out of range")

	// ErrClosed 通信子已关闭
	ErrClosed = errors.New("communicator closed")
)

// fatal 记录并 panic
func fatal(err error) {
	log.Error("通信子致命错误", "err", err)
	panic(err)
}

// fatalf 以哨兵错误包装后 panic
func fatalf(sentinel error, format string, args ...any) {
	fatal(fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...)))
}
