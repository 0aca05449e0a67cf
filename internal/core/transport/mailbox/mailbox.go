// Package mailbox 实现按 (源进程, 信封) 匹配的接收队列
//
// loopback 与 tcp 传输共用：发送端（或读循环）调用 Deliver 投递，
// 接收端用 Recv 阻塞等待或用 TryRecv 轮询。同一 (源, 信封) 上的消息保持 FIFO。
package mailbox

import (
	"errors"
	"sync"

	"github.com/dep2p/go-commstack/pkg/interfaces"
)

// ErrClosed 邮箱已关闭
var ErrClosed = errors.New("mailbox closed")

type queueKey struct {
	src int
	env interfaces.Envelope
}

// Mailbox 接收队列集合
type Mailbox struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queues map[queueKey][][]byte
	err    error
}

// New 创建邮箱
func New() *Mailbox {
	m := &Mailbox{queues: make(map[queueKey][][]byte)}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// Deliver 投递一条消息，payload 所有权转移给邮箱
func (m *Mailbox) Deliver(src int, env interfaces.Envelope, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return m.err
	}
	k := queueKey{src: src, env: env}
	m.queues[k] = append(m.queues[k], payload)
	m.cond.Broadcast()
	return nil
}

// Recv 阻塞直到有匹配消息或邮箱关闭
//
// 已排队的消息在关闭后仍可取出。
func (m *Mailbox) Recv(src int, env interfaces.Envelope) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := queueKey{src: src, env: env}
	for {
		if p, ok := m.popLocked(k); ok {
			return p, nil
		}
		if m.err != nil {
			return nil, m.err
		}
		m.cond.Wait()
	}
}

// TryRecv 非阻塞接收
func (m *Mailbox) TryRecv(src int, env interfaces.Envelope) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.popLocked(queueKey{src: src, env: env}); ok {
		return p, true, nil
	}
	return nil, false, m.err
}

// Close 关闭邮箱并唤醒所有等待者，err 为空时使用 ErrClosed
//
// 重复关闭保留第一次的原因。
func (m *Mailbox) Close(err error) {
	if err == nil {
		err = ErrClosed
	}
	m.mu.Lock()
	if m.err == nil {
		m.err = err
	}
	m.mu.Unlock()
	m.cond.Broadcast()
}

// Err 关闭原因，未关闭时为 nil
func (m *Mailbox) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// Pending 尚未取走的消息数
func (m *Mailbox) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, q := range m.queues {
		n += len(q)
	}
	return n
}

func (m *Mailbox) popLocked(k queueKey) ([]byte, bool) {
	q := m.queues[k]
	if len(q) == 0 {
		return nil, false
	}
	p := q[0]
	q[0] = nil
	if len(q) == 1 {
		delete(m.queues, k)
	} else {
		m.queues[k] = q[1:]
	}
	return p, true
}
