// Package types 定义 commstack 的基础类型
//
// 本文件定义所有公共错误类型。
package types

import "errors"

// ============================================================================
//                              拓扑键错误
// ============================================================================

var (
	// ErrInvalidKey 无效的拓扑键（存在非正分量）
	ErrInvalidKey = errors.New("invalid topology key")

	// ErrKeyNotDivisor 拓扑键不能整除网格尺寸
	ErrKeyNotDivisor = errors.New("topology key does not divide grid dims")

	// ErrParseKey 拓扑键字符串格式错误
	ErrParseKey = errors.New("malformed topology key")
)

// ============================================================================
//                              方向/维度错误
// ============================================================================

var (
	// ErrInvalidDim 维度越界
	ErrInvalidDim = errors.New("dimension out of range")

	// ErrInvalidDirection 方向无效
	ErrInvalidDirection = errors.New("invalid direction")
)
