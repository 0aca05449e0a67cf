package config

import "github.com/dep2p/go-commstack/pkg/types"

// GridConfig 进程网格配置
//
// Dims 是默认通信子的进程网格；Splits 是启动器依次选择的切分键
// （多重网格各层、批量求解的分组方式）。
type GridConfig struct {
	// Dims 每维进程数
	Dims types.CommKey `json:"dims"`

	// Splits 需要派生的切分键
	Splits []types.CommKey `json:"splits,omitempty"`

	// FirstDimFastest 使用第一维最快的字典序进程映射
	FirstDimFastest bool `json:"first_dim_fastest,omitempty"`
}

// DefaultGridConfig 返回单进程网格
func DefaultGridConfig() GridConfig {
	return GridConfig{Dims: types.DefaultKey}
}

// Validate 验证网格配置
func (c GridConfig) Validate() error {
	if err := c.Dims.Validate(); err != nil {
		return err
	}
	for _, key := range c.Splits {
		if err := key.Divides(c.Dims); err != nil {
			return err
		}
	}
	return nil
}

// RankMap 返回配置指定的进程映射
func (c GridConfig) RankMap() types.RankFromCoordsFunc {
	if c.FirstDimFastest {
		return types.LexRankFirstFastest
	}
	return types.LexRankLastFastest
}
