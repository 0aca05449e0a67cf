package metrics

// Stats 流量统计快照
//
// TotalIn 和 TotalOut 记录累计接收/发送字节数。
// RateIn 和 RateOut 记录每秒接收/发送字节数。
type Stats struct {
	TotalIn  int64   // 总入站字节
	TotalOut int64   // 总出站字节
	RateIn   float64 // 入站速率（字节/秒）
	RateOut  float64 // 出站速率（字节/秒）
}
