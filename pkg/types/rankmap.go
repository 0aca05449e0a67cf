package types

// RankFromCoordsFunc 坐标到进程号的映射
//
// 必须是 [0, size) 上的双射。data 为调用方提供的上下文，初始化时原样传入，
// 只在构建默认通信子时使用一次。
type RankFromCoordsFunc func(coords Coords, data any) int

// LexRankLastFastest 字典序映射，最后一维变化最快
//
// data 必须是网格尺寸（CommKey 或 *CommKey）。
func LexRankLastFastest(coords Coords, data any) int {
	dims := dimsFrom(data)
	rank := coords[0]
	for d := 1; d < NDim; d++ {
		rank = dims[d]*rank + coords[d]
	}
	return rank
}

// LexRankFirstFastest 字典序映射，第一维变化最快
//
// data 必须是网格尺寸（CommKey 或 *CommKey）。
func LexRankFirstFastest(coords Coords, data any) int {
	dims := dimsFrom(data)
	rank := coords[NDim-1]
	for d := NDim - 2; d >= 0; d-- {
		rank = dims[d]*rank + coords[d]
	}
	return rank
}

func dimsFrom(data any) CommKey {
	switch v := data.(type) {
	case CommKey:
		return v
	case *CommKey:
		return *v
	default:
		panic("types: lexicographic rank map requires grid dims as map data")
	}
}
