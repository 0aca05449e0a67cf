package topology

import (
	"fmt"

	"github.com/dep2p/go-commstack/pkg/types"
)

// MaxDisplacement 每维位移绝对值的上界（不含）
const MaxDisplacement = 4

// PeerTag 按进程号直接声明的消息所用标签，与位移标签（非负）不相交
const PeerTag int64 = -1

// ValidateDisplacement 检查位移能否编码进标签
func ValidateDisplacement(disp types.Displacement) error {
	for d, v := range disp {
		if v <= -MaxDisplacement || v >= MaxDisplacement {
			return fmt.Errorf("%w: dim %d displacement %d (limit %d)", ErrDisplacementTooLarge, d, v, MaxDisplacement)
		}
	}
	return nil
}

// SendTag 发送方标签
func SendTag(disp types.Displacement) int64 {
	return encodeTag(disp, 1)
}

// RecvTag 接收方标签，与邻居的 SendTag(-disp) 相等
func RecvTag(disp types.Displacement) int64 {
	return encodeTag(disp, -1)
}

func encodeTag(disp types.Displacement, sign int) int64 {
	var tag int64
	for d := types.NDim - 1; d >= 0; d-- {
		tag = tag*4*MaxDisplacement + int64(sign*disp[d]+MaxDisplacement)
	}
	return tag
}
