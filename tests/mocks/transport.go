package mocks

import (
	"sync"

	"github.com/dep2p/go-commstack/pkg/interfaces"
)

// MockTransport 模拟 Transport 接口实现
//
// 未设置 XxxFunc 时：Send 成功并丢弃数据，Recv/TryRecv 返回空消息。
type MockTransport struct {
	RankValue     int
	SizeValue     int
	HostnameValue string
	DeviceIDValue int

	// 可覆盖的方法
	SendFunc    func(dst int, env interfaces.Envelope, payload []byte) error
	RecvFunc    func(src int, env interfaces.Envelope) ([]byte, error)
	TryRecvFunc func(src int, env interfaces.Envelope) ([]byte, bool, error)
	AbortFunc   func(status int)
	CloseFunc   func() error

	// 调用记录
	mu         sync.Mutex
	SendCalls  []SendCall
	RecvCalls  []RecvCall
	AbortCalls []int
	CloseCalls int
}

// SendCall 记录 Send 调用
type SendCall struct {
	Dst     int
	Env     interfaces.Envelope
	Payload []byte
}

// RecvCall 记录 Recv/TryRecv 调用
type RecvCall struct {
	Src int
	Env interfaces.Envelope
}

var _ interfaces.Transport = (*MockTransport)(nil)

// NewMockTransport 创建带有默认值的 MockTransport
func NewMockTransport(rank, size int) *MockTransport {
	return &MockTransport{
		RankValue:     rank,
		SizeValue:     size,
		HostnameValue: "mock-host",
	}
}

// Rank 返回进程号
func (m *MockTransport) Rank() int { return m.RankValue }

// Size 返回进程数
func (m *MockTransport) Size() int { return m.SizeValue }

// Hostname 返回主机名
func (m *MockTransport) Hostname() string { return m.HostnameValue }

// DeviceID 返回设备号
func (m *MockTransport) DeviceID() int { return m.DeviceIDValue }

// Send 发送消息
func (m *MockTransport) Send(dst int, env interfaces.Envelope, payload []byte) error {
	m.mu.Lock()
	m.SendCalls = append(m.SendCalls, SendCall{Dst: dst, Env: env, Payload: append([]byte(nil), payload...)})
	m.mu.Unlock()

	if m.SendFunc != nil {
		return m.SendFunc(dst, env, payload)
	}
	return nil
}

// Recv 接收消息
func (m *MockTransport) Recv(src int, env interfaces.Envelope) ([]byte, error) {
	m.mu.Lock()
	m.RecvCalls = append(m.RecvCalls, RecvCall{Src: src, Env: env})
	m.mu.Unlock()

	if m.RecvFunc != nil {
		return m.RecvFunc(src, env)
	}
	return nil, nil
}

// TryRecv 非阻塞接收
func (m *MockTransport) TryRecv(src int, env interfaces.Envelope) ([]byte, bool, error) {
	m.mu.Lock()
	m.RecvCalls = append(m.RecvCalls, RecvCall{Src: src, Env: env})
	m.mu.Unlock()

	if m.TryRecvFunc != nil {
		return m.TryRecvFunc(src, env)
	}
	return nil, false, nil
}

// Abort 终止作业
func (m *MockTransport) Abort(status int) {
	m.mu.Lock()
	m.AbortCalls = append(m.AbortCalls, status)
	m.mu.Unlock()

	if m.AbortFunc != nil {
		m.AbortFunc(status)
	}
}

// Close 关闭传输
func (m *MockTransport) Close() error {
	m.mu.Lock()
	m.CloseCalls++
	m.mu.Unlock()

	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// Sends 返回 Send 调用记录的副本
func (m *MockTransport) Sends() []SendCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SendCall(nil), m.SendCalls...)
}
