package types

import (
	"fmt"
	"strconv"
	"strings"
)

// NDim 网格维度数
const NDim = 4

// CommKey 拓扑键
//
// 每个网格维度一个正整数。作为进程网格尺寸使用时表示每维进程数；
// 作为切分键使用时表示每维切成多少份。
type CommKey [NDim]int

// DefaultKey 默认（不切分）拓扑键
var DefaultKey = CommKey{1, 1, 1, 1}

// Validate 检查每个分量都为正
func (k CommKey) Validate() error {
	for d, v := range k {
		if v < 1 {
			return fmt.Errorf("%w: %s (dim %d = %d)", ErrInvalidKey, k, d, v)
		}
	}
	return nil
}

// Product 返回所有分量的乘积
func (k CommKey) Product() int {
	p := 1
	for _, v := range k {
		p *= v
	}
	return p
}

// Divides 检查 k 能否逐维整除 dims
func (k CommKey) Divides(dims CommKey) error {
	if err := k.Validate(); err != nil {
		return err
	}
	for d := range k {
		if dims[d]%k[d] != 0 {
			return fmt.Errorf("%w: %s into %s (dim %d)", ErrKeyNotDivisor, k, dims, d)
		}
	}
	return nil
}

// Quotient 返回逐维商 dims / k，调用方需先用 Divides 校验
func (k CommKey) Quotient(dims CommKey) CommKey {
	var q CommKey
	for d := range k {
		q[d] = dims[d] / k[d]
	}
	return q
}

// String 返回 "2x1x1x1" 形式
func (k CommKey) String() string {
	parts := make([]string, NDim)
	for d, v := range k {
		parts[d] = strconv.Itoa(v)
	}
	return strings.Join(parts, "x")
}

// ParseCommKey 解析 "2x1x1x1" 形式的拓扑键
func ParseCommKey(s string) (CommKey, error) {
	var k CommKey
	parts := strings.Split(strings.TrimSpace(s), "x")
	if len(parts) != NDim {
		return k, fmt.Errorf("%w: %q", ErrParseKey, s)
	}
	for d, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return k, fmt.Errorf("%w: %q: %v", ErrParseKey, s, err)
		}
		k[d] = v
	}
	if err := k.Validate(); err != nil {
		return CommKey{}, err
	}
	return k, nil
}

// MarshalText 实现 encoding.TextMarshaler，配置文件中以字符串出现
func (k CommKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText 实现 encoding.TextUnmarshaler
func (k *CommKey) UnmarshalText(text []byte) error {
	parsed, err := ParseCommKey(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
