// Package mocks 提供统一的测试 Mock 实现
//
// # 传输 Mock
//
//   - MockTransport: 模拟 interfaces.Transport，用于注入发送/接收失败
//
// # 设计原则
//
// 1. 函数式注入: 每个 Mock 都支持通过 XxxFunc 字段注入自定义行为
// 2. 调用记录: 关键 Mock 记录调用历史，便于验证测试行为
//
// # 使用示例
//
//	tr := mocks.NewMockTransport(0, 1)
//	tr.SendFunc = func(dst int, env interfaces.Envelope, payload []byte) error {
//	    return errors.New("link down")
//	}
package mocks
