package topology

import (
	"fmt"

	"github.com/dep2p/go-commstack/pkg/types"
)

// Topology 进程网格
type Topology struct {
	dims   types.CommKey
	ranks  []int          // 字典序下标 -> 进程号
	coords []types.Coords // 进程号 -> 坐标
	myRank int
}

// New 用调用方提供的映射构建网格
//
// 枚举每一个坐标并校验映射是 [0, size) 上的双射。
func New(dims types.CommKey, fn types.RankFromCoordsFunc, data any, myRank int) (*Topology, error) {
	if err := dims.Validate(); err != nil {
		return nil, err
	}
	size := dims.Product()
	if myRank < 0 || myRank >= size {
		return nil, fmt.Errorf("%w: %d not in [0, %d)", ErrRankOutOfRange, myRank, size)
	}

	t := &Topology{
		dims:   dims,
		ranks:  make([]int, size),
		coords: make([]types.Coords, size),
		myRank: myRank,
	}
	seen := make([]bool, size)
	for idx := 0; idx < size; idx++ {
		c := CoordsFromIndex(dims, idx)
		r := fn(c, data)
		if r < 0 || r >= size {
			return nil, fmt.Errorf("%w: coords %v -> rank %d outside [0, %d)", ErrNotBijective, c, r, size)
		}
		if seen[r] {
			return nil, fmt.Errorf("%w: rank %d assigned twice (coords %v)", ErrNotBijective, r, c)
		}
		seen[r] = true
		t.ranks[idx] = r
		t.coords[r] = c
	}
	return t, nil
}

// NewLex 构建字典序网格（子通信子使用）
func NewLex(dims types.CommKey, myRank int) (*Topology, error) {
	return New(dims, types.LexRankLastFastest, dims, myRank)
}

// Index 坐标在网格中的字典序下标（第一维最慢）
func Index(dims types.CommKey, c types.Coords) int {
	idx := c[0]
	for d := 1; d < types.NDim; d++ {
		idx = dims[d]*idx + c[d]
	}
	return idx
}

// CoordsFromIndex Index 的逆运算
func CoordsFromIndex(dims types.CommKey, idx int) types.Coords {
	var c types.Coords
	for d := types.NDim - 1; d >= 0; d-- {
		c[d] = idx % dims[d]
		idx /= dims[d]
	}
	return c
}

// Dims 网格尺寸
func (t *Topology) Dims() types.CommKey { return t.dims }

// Size 进程数
func (t *Topology) Size() int { return len(t.coords) }

// MyRank 本进程号
func (t *Topology) MyRank() int { return t.myRank }

// MyCoords 本进程坐标
func (t *Topology) MyCoords() types.Coords { return t.coords[t.myRank] }

// Dim 第 d 维进程数
func (t *Topology) Dim(d int) int { return t.dims[d] }

// Coord 本进程第 d 维坐标
func (t *Topology) Coord(d int) int { return t.coords[t.myRank][d] }

// CoordsOf 任意进程的坐标
func (t *Topology) CoordsOf(rank int) types.Coords { return t.coords[rank] }

// RankOf 坐标对应的进程号，坐标按周期边界折回
func (t *Topology) RankOf(c types.Coords) int {
	var wrapped types.Coords
	for d := 0; d < types.NDim; d++ {
		wrapped[d] = mod(c[d], t.dims[d])
	}
	return t.ranks[Index(t.dims, wrapped)]
}

// RankDisplaced 本进程坐标加位移后的进程号
func (t *Topology) RankDisplaced(disp types.Displacement) int {
	c := t.MyCoords()
	for d := 0; d < types.NDim; d++ {
		c[d] += disp[d]
	}
	return t.RankOf(c)
}

// NeighborRank 沿 dim 维 dir 方向的周期邻居
func (t *Topology) NeighborRank(dir types.Direction, dim int) int {
	return t.RankDisplaced(types.Relative(dim, dir))
}

// String 拓扑描述
func (t *Topology) String() string {
	return "topo=" + t.dims.String()
}

// ============================================================================
//                              切分
// ============================================================================

// Split 切分结果
type Split struct {
	// SubDims 子网格尺寸
	SubDims types.CommKey

	// SubRank 本进程在子网格中的进程号
	SubRank int

	// Color 子网格编号（所有子网格按字典序编号）
	Color int

	// Members 子网格成员在父网格中的进程号，按子进程号排列
	Members []int
}

// Split 按 key 计算本进程所在的子网格
func (t *Topology) Split(key types.CommKey) (*Split, error) {
	if err := key.Divides(t.dims); err != nil {
		return nil, err
	}
	subDims := key.Quotient(t.dims)

	mine := t.MyCoords()
	var subCoords, colorCoords types.Coords
	for d := 0; d < types.NDim; d++ {
		subCoords[d] = mine[d] % subDims[d]
		colorCoords[d] = mine[d] / subDims[d]
	}

	subSize := subDims.Product()
	members := make([]int, subSize)
	for s := 0; s < subSize; s++ {
		sc := CoordsFromIndex(subDims, s)
		var parent types.Coords
		for d := 0; d < types.NDim; d++ {
			parent[d] = colorCoords[d]*subDims[d] + sc[d]
		}
		members[s] = t.RankOf(parent)
	}

	return &Split{
		SubDims: subDims,
		SubRank: Index(subDims, subCoords),
		Color:   Index(key, colorCoords),
		Members: members,
	}, nil
}

func mod(a, n int) int {
	r := a % n
	if r < 0 {
		r += n
	}
	return r
}
