package comm

import (
	"github.com/dep2p/go-commstack/pkg/interfaces"
)

func sum[T number](a, b T) T { return a + b }

func maxOf[T number](a, b T) T {
	if b > a {
		return b
	}
	return a
}

func minOf[T number](a, b T) T {
	if b < a {
		return b
	}
	return a
}

func xor(a, b uint64) uint64 { return a ^ b }

// reduceScalar 规约单个值
func reduceScalar[T number](c *Communicator, op string, v T, fn func(a, b T) T) (T, error) {
	seq := c.nextSeq()
	c.logCollective(op)
	buf := []T{v}
	if err := allReduce(c, seq, c.deterministic.Load(), buf, fn); err != nil {
		return v, err
	}
	return buf[0], nil
}

// reduceArray 就地规约数组
func reduceArray(c *Communicator, op string, data []float64, fn func(a, b float64) float64) error {
	seq := c.nextSeq()
	c.logCollective(op)
	return allReduce(c, seq, c.deterministic.Load(), data, fn)
}

// ============================================================================
//                              全规约
// ============================================================================

// AllReduceSum 求和
func (c *Communicator) AllReduceSum(v float64) (float64, error) {
	c.ensureOpen("AllReduceSum")
	return reduceScalar(c, "allreduce_sum", v, sum[float64])
}

// AllReduceMax 求最大值
func (c *Communicator) AllReduceMax(v float64) (float64, error) {
	c.ensureOpen("AllReduceMax")
	return reduceScalar(c, "allreduce_max", v, maxOf[float64])
}

// AllReduceMin 求最小值
func (c *Communicator) AllReduceMin(v float64) (float64, error) {
	c.ensureOpen("AllReduceMin")
	return reduceScalar(c, "allreduce_min", v, minOf[float64])
}

// AllReduceSumArray 逐元素求和，结果写回 data
func (c *Communicator) AllReduceSumArray(data []float64) error {
	c.ensureOpen("AllReduceSumArray")
	return reduceArray(c, "allreduce_sum", data, sum[float64])
}

// AllReduceMaxArray 逐元素求最大值
func (c *Communicator) AllReduceMaxArray(data []float64) error {
	c.ensureOpen("AllReduceMaxArray")
	return reduceArray(c, "allreduce_max", data, maxOf[float64])
}

// AllReduceMinArray 逐元素求最小值
func (c *Communicator) AllReduceMinArray(data []float64) error {
	c.ensureOpen("AllReduceMinArray")
	return reduceArray(c, "allreduce_min", data, minOf[float64])
}

// AllReduceInt 整数求和
func (c *Communicator) AllReduceInt(v int64) (int64, error) {
	c.ensureOpen("AllReduceInt")
	return reduceScalar(c, "allreduce_int", v, sum[int64])
}

// AllReduceXor 按位异或
func (c *Communicator) AllReduceXor(v uint64) (uint64, error) {
	c.ensureOpen("AllReduceXor")
	return reduceScalar(c, "allreduce_xor", v, xor)
}

// ============================================================================
//                              异步规约
// ============================================================================

// pendingReduction 异步规约
type pendingReduction struct {
	done chan struct{}
	err  error
}

// Wait 阻塞直到规约完成
func (p *pendingReduction) Wait() error {
	<-p.done
	return p.err
}

// AllReduceSumArrayAsync 发起逐元素求和
//
// 异步开关打开时立即返回，调用方在 Wait 之前不得读写 data；
// 关闭时同步完成。
func (c *Communicator) AllReduceSumArrayAsync(data []float64) interfaces.PendingReduction {
	c.ensureOpen("AllReduceSumArrayAsync")
	p := &pendingReduction{done: make(chan struct{})}
	if !c.asyncReduction.Load() {
		p.err = c.AllReduceSumArray(data)
		close(p.done)
		return p
	}

	seq := c.nextSeq()
	deterministic := c.deterministic.Load()
	c.logCollective("allreduce_sum_async")
	go func() {
		defer close(p.done)
		p.err = allReduce(c, seq, deterministic, data, sum[float64])
	}()
	return p
}

// ============================================================================
//                              引擎侧规约
// ============================================================================

// ReduceSum 全局规约开关关闭时返回本地值
func (c *Communicator) ReduceSum(v float64) (float64, error) {
	c.ensureOpen("ReduceSum")
	if !c.globalReduction.Load() {
		return v, nil
	}
	return c.AllReduceSum(v)
}

// ReduceMax 全局规约开关关闭时返回本地值
func (c *Communicator) ReduceMax(v float64) (float64, error) {
	c.ensureOpen("ReduceMax")
	if !c.globalReduction.Load() {
		return v, nil
	}
	return c.AllReduceMax(v)
}

// ReduceSumArray 全局规约开关关闭时不做任何事
func (c *Communicator) ReduceSumArray(data []float64) error {
	c.ensureOpen("ReduceSumArray")
	if !c.globalReduction.Load() {
		return nil
	}
	return c.AllReduceSumArray(data)
}
