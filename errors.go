package commstack

import "errors"

// 公共错误定义
var (
	// ────────────────────────────────────────────────────────────────────────
	// 生命周期错误
	// ────────────────────────────────────────────────────────────────────────

	// ErrAlreadyInitialized 注册表已初始化
	ErrAlreadyInitialized = errors.New("registry already initialized")

	// ErrNotInitialized 注册表未初始化或已结束
	ErrNotInitialized = errors.New("registry not initialized")

	// ────────────────────────────────────────────────────────────────────────
	// 注册表错误
	// ────────────────────────────────────────────────────────────────────────

	// ErrKeyMissing 注册表中缺少拓扑键对应的通信子
	ErrKeyMissing = errors.New("no communicator registered for key")

	// ErrTopologyLimit 不同拓扑数超过上限
	ErrTopologyLimit = errors.New("topology limit exceeded")
)
