package topology

import "errors"

var (
	// ErrNotBijective 进程映射不是 [0, size) 上的双射
	ErrNotBijective = errors.New("rank mapping is not a bijection")

	// ErrRankOutOfRange 进程号越界
	ErrRankOutOfRange = errors.New("rank out of range")

	// ErrDisplacementTooLarge 位移超出标签编码范围
	ErrDisplacementTooLarge = errors.New("displacement too large")
)
