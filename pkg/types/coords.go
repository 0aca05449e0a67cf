package types

import "fmt"

// Coords 进程在网格中的坐标
type Coords [NDim]int

// Displacement 相对坐标偏移
type Displacement [NDim]int

// ============================================================================
//                              Direction - 邻居方向
// ============================================================================

// Direction 邻居方向
type Direction int

const (
	// Backward 负方向
	Backward Direction = iota
	// Forward 正方向
	Forward
)

// NumDirections 方向数
const NumDirections = 2

// Offset 返回方向对应的坐标偏移（-1 或 +1）
func (d Direction) Offset() int {
	if d == Forward {
		return 1
	}
	return -1
}

// Opposite 返回反方向
func (d Direction) Opposite() Direction {
	if d == Forward {
		return Backward
	}
	return Forward
}

// Validate 检查方向是否有效
func (d Direction) Validate() error {
	if d != Backward && d != Forward {
		return fmt.Errorf("%w: %d", ErrInvalidDirection, int(d))
	}
	return nil
}

// String 返回方向的字符串表示
func (d Direction) String() string {
	switch d {
	case Backward:
		return "backward"
	case Forward:
		return "forward"
	default:
		return "unknown"
	}
}

// ValidateDim 检查维度下标
func ValidateDim(dim int) error {
	if dim < 0 || dim >= NDim {
		return fmt.Errorf("%w: %d", ErrInvalidDim, dim)
	}
	return nil
}

// Relative 返回沿 dim 维、dir 方向一跳的偏移
func Relative(dim int, dir Direction) Displacement {
	var disp Displacement
	disp[dim] = dir.Offset()
	return disp
}
