package comm

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/dep2p/go-commstack/pkg/interfaces"
)

// 集合通信轮次：0 为折入/根收集，foldOutRound 为折出/根分发
const foldOutRound = 0xff

// number 规约元素类型
type number interface {
	float64 | int64 | uint64
}

// nextSeq 分配集合操作序号
//
// 序号在调用时分配，各进程调用顺序一致即可匹配，执行顺序无关。
func (c *Communicator) nextSeq() uint64 {
	return c.seq.Add(1)
}

func (c *Communicator) collEnv(seq uint64, round int) interfaces.Envelope {
	return interfaces.Envelope{
		Context: c.ctxID,
		Kind:    interfaces.KindCollective,
		Tag:     int64(seq<<8 | uint64(round)),
	}
}

func (c *Communicator) sendTo(peer int, env interfaces.Envelope, payload []byte) error {
	return c.tr.Send(c.group[peer], env, payload)
}

func (c *Communicator) recvFrom(peer int, env interfaces.Envelope) ([]byte, error) {
	return c.tr.Recv(c.group[peer], env)
}

func (c *Communicator) logCollective(op string) {
	if c.opts.reporter != nil {
		c.opts.reporter.LogCollective(c.key, op)
	}
}

// ============================================================================
//                              编解码
// ============================================================================

func toBits[T number](x T) uint64 {
	switch v := any(x).(type) {
	case float64:
		return math.Float64bits(v)
	case int64:
		return uint64(v)
	case uint64:
		return v
	}
	panic("unreachable")
}

func fromBits[T number](u uint64) T {
	var zero T
	switch any(zero).(type) {
	case float64:
		return any(math.Float64frombits(u)).(T)
	case int64:
		return any(int64(u)).(T)
	default:
		return any(u).(T)
	}
}

func encodeValues[T number](v []T) []byte {
	b := make([]byte, 8*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint64(b[8*i:], toBits(x))
	}
	return b
}

func decodeValues[T number](b []byte, n int) ([]T, error) {
	if len(b) != 8*n {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrSizeMismatch, len(b), 8*n)
	}
	out := make([]T, n)
	for i := range out {
		out[i] = fromBits[T](binary.LittleEndian.Uint64(b[8*i:]))
	}
	return out, nil
}

// combine 逐元素 acc[i] = op(lo[i], hi[i])，lo 总是组内编号较小一方的值
func combine[T number](lo, hi []T, op func(a, b T) T) []T {
	out := make([]T, len(lo))
	for i := range lo {
		out[i] = op(lo[i], hi[i])
	}
	return out
}

// ============================================================================
//                              全规约
// ============================================================================

// allReduce 在组内就地规约 data
//
// deterministic 在发起时取值，异步规约执行期间切换开关不影响各进程选择同一算法。
func allReduce[T number](c *Communicator, seq uint64, deterministic bool, data []T, op func(a, b T) T) error {
	if c.topo.Size() == 1 {
		return nil
	}
	var err error
	if deterministic {
		err = reduceAtRoot(c, seq, data, op)
	} else {
		err = recursiveDoubling(c, seq, data, op)
	}
	if err != nil {
		return fmt.Errorf("allreduce: %w", err)
	}
	return nil
}

// reduceAtRoot 0 号进程按进程号顺序规约后分发，结果逐位可复现
func reduceAtRoot[T number](c *Communicator, seq uint64, data []T, op func(a, b T) T) error {
	n := len(data)
	if c.topo.MyRank() != 0 {
		if err := c.sendTo(0, c.collEnv(seq, 0), encodeValues(data)); err != nil {
			return err
		}
		b, err := c.recvFrom(0, c.collEnv(seq, foldOutRound))
		if err != nil {
			return err
		}
		res, err := decodeValues[T](b, n)
		if err != nil {
			return err
		}
		copy(data, res)
		return nil
	}

	acc := append([]T(nil), data...)
	for r := 1; r < c.topo.Size(); r++ {
		b, err := c.recvFrom(r, c.collEnv(seq, 0))
		if err != nil {
			return err
		}
		v, err := decodeValues[T](b, n)
		if err != nil {
			return err
		}
		acc = combine(acc, v, op)
	}
	out := encodeValues(acc)
	for r := 1; r < c.topo.Size(); r++ {
		if err := c.sendTo(r, c.collEnv(seq, foldOutRound), out); err != nil {
			return err
		}
	}
	copy(data, acc)
	return nil
}

// recursiveDoubling 递归倍增全规约
//
// 进程数不是 2 的幂时，前 2*rem 个进程两两折入，偶数号退出主循环，
// 最后由奇数号把结果折出给偶数号。
func recursiveDoubling[T number](c *Communicator, seq uint64, data []T, op func(a, b T) T) error {
	n, me := c.topo.Size(), c.topo.MyRank()
	p2 := 1
	for p2*2 <= n {
		p2 *= 2
	}
	rem := n - p2
	acc := append([]T(nil), data...)

	newRank := me - rem
	if me < 2*rem {
		if me%2 == 0 {
			if err := c.sendTo(me+1, c.collEnv(seq, 0), encodeValues(acc)); err != nil {
				return err
			}
			newRank = -1
		} else {
			b, err := c.recvFrom(me-1, c.collEnv(seq, 0))
			if err != nil {
				return err
			}
			v, err := decodeValues[T](b, len(acc))
			if err != nil {
				return err
			}
			acc = combine(v, acc, op)
			newRank = me / 2
		}
	}

	if newRank >= 0 {
		round := 0
		for mask := 1; mask < p2; mask <<= 1 {
			round++
			pn := newRank ^ mask
			partner := pn + rem
			if pn < rem {
				partner = pn*2 + 1
			}

			env := c.collEnv(seq, round)
			if err := c.sendTo(partner, env, encodeValues(acc)); err != nil {
				return err
			}
			b, err := c.recvFrom(partner, env)
			if err != nil {
				return err
			}
			v, err := decodeValues[T](b, len(acc))
			if err != nil {
				return err
			}
			if partner < me {
				acc = combine(v, acc, op)
			} else {
				acc = combine(acc, v, op)
			}
		}
	}

	if me < 2*rem {
		env := c.collEnv(seq, foldOutRound)
		if me%2 == 1 {
			if err := c.sendTo(me-1, env, encodeValues(acc)); err != nil {
				return err
			}
		} else {
			b, err := c.recvFrom(me+1, env)
			if err != nil {
				return err
			}
			v, err := decodeValues[T](b, len(acc))
			if err != nil {
				return err
			}
			acc = v
		}
	}

	copy(data, acc)
	return nil
}

// ============================================================================
//                              广播 / 屏障 / 收集
// ============================================================================

// Broadcast 将 0 号进程的 data 广播到组内所有进程，各进程长度必须一致
func (c *Communicator) Broadcast(data []byte) error {
	c.ensureOpen("Broadcast")
	seq := c.nextSeq()
	c.logCollective("broadcast")
	if c.topo.Size() == 1 {
		return nil
	}

	env := c.collEnv(seq, 0)
	if c.topo.MyRank() == 0 {
		for r := 1; r < c.topo.Size(); r++ {
			if err := c.sendTo(r, env, data); err != nil {
				return fmt.Errorf("broadcast: %w", err)
			}
		}
		return nil
	}

	b, err := c.recvFrom(0, env)
	if err != nil {
		return fmt.Errorf("broadcast: %w", err)
	}
	if len(b) != len(data) {
		return fmt.Errorf("broadcast: %w: root sent %d bytes, local buffer %d", ErrSizeMismatch, len(b), len(data))
	}
	copy(data, b)
	return nil
}

// Barrier 组内同步（dissemination 算法）
func (c *Communicator) Barrier() error {
	c.ensureOpen("Barrier")
	seq := c.nextSeq()
	c.logCollective("barrier")

	n, me := c.topo.Size(), c.topo.MyRank()
	round := 0
	for k := 1; k < n; k <<= 1 {
		env := c.collEnv(seq, round)
		if err := c.sendTo((me+k)%n, env, nil); err != nil {
			return fmt.Errorf("barrier: %w", err)
		}
		if _, err := c.recvFrom((me-k+n)%n, env); err != nil {
			return fmt.Errorf("barrier: %w", err)
		}
		round++
	}
	return nil
}

// gatherBytes 0 号进程收集所有成员的记录，其他进程返回 nil
func (c *Communicator) gatherBytes(seq uint64, rec []byte) ([][]byte, error) {
	env := c.collEnv(seq, 0)
	if c.topo.MyRank() != 0 {
		return nil, c.sendTo(0, env, rec)
	}

	all := make([][]byte, c.topo.Size())
	all[0] = rec
	for r := 1; r < c.topo.Size(); r++ {
		b, err := c.recvFrom(r, env)
		if err != nil {
			return nil, err
		}
		all[r] = b
	}
	return all, nil
}

// allgatherBytes 每个成员收集所有成员的记录
func (c *Communicator) allgatherBytes(seq uint64, rec []byte) ([][]byte, error) {
	env := c.collEnv(seq, 0)
	me := c.topo.MyRank()
	for r := 0; r < c.topo.Size(); r++ {
		if r == me {
			continue
		}
		if err := c.sendTo(r, env, rec); err != nil {
			return nil, err
		}
	}

	all := make([][]byte, c.topo.Size())
	all[me] = rec
	for r := 0; r < c.topo.Size(); r++ {
		if r == me {
			continue
		}
		b, err := c.recvFrom(r, env)
		if err != nil {
			return nil, err
		}
		all[r] = b
	}
	return all, nil
}

// Abort 终止整个作业
func (c *Communicator) Abort(status int) {
	c.ensureOpen("Abort")
	c.log.Error("终止作业", "status", status)
	c.tr.Abort(status)
}
