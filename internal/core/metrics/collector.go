package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// ============================================================================
//                              Prometheus 导出
// ============================================================================

var (
	bytesSentDesc = prometheus.NewDesc(
		"commstack_bytes_sent_total",
		"Point-to-point bytes sent, by topology key.",
		[]string{"key"}, nil,
	)
	bytesRecvDesc = prometheus.NewDesc(
		"commstack_bytes_received_total",
		"Point-to-point bytes received, by topology key.",
		[]string{"key"}, nil,
	)
	peerSentDesc = prometheus.NewDesc(
		"commstack_peer_bytes_sent_total",
		"Point-to-point bytes sent, by peer world rank.",
		[]string{"peer"}, nil,
	)
	collectivesDesc = prometheus.NewDesc(
		"commstack_collectives_total",
		"Collective operations issued, by topology key and operation.",
		[]string{"key", "op"}, nil,
	)
	leakedDesc = prometheus.NewDesc(
		"commstack_leaked_handles_total",
		"Message handles still allocated when their communicator closed.",
		[]string{"key"}, nil,
	)
	rateOutDesc = prometheus.NewDesc(
		"commstack_send_rate_bytes",
		"Average send rate over the last minute in bytes per second.",
		nil, nil,
	)
)

// Collector 将 BandwidthCounter 导出为 Prometheus 指标
//
// 每次抓取时读取快照，不持有额外状态。
type Collector struct {
	counter *BandwidthCounter
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector 创建导出器
func NewCollector(counter *BandwidthCounter) *Collector {
	return &Collector{counter: counter}
}

// Describe 实现 prometheus.Collector
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- bytesSentDesc
	ch <- bytesRecvDesc
	ch <- peerSentDesc
	ch <- collectivesDesc
	ch <- leakedDesc
	ch <- rateOutDesc
}

// Collect 实现 prometheus.Collector
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for key, s := range c.counter.GetBandwidthByKey() {
		ch <- prometheus.MustNewConstMetric(bytesSentDesc, prometheus.CounterValue, float64(s.TotalOut), key.String())
		ch <- prometheus.MustNewConstMetric(bytesRecvDesc, prometheus.CounterValue, float64(s.TotalIn), key.String())
	}
	for peer, s := range c.counter.GetBandwidthByPeer() {
		ch <- prometheus.MustNewConstMetric(peerSentDesc, prometheus.CounterValue, float64(s.TotalOut), strconv.Itoa(peer))
	}
	for key, ops := range c.counter.Collectives() {
		for op, n := range ops {
			ch <- prometheus.MustNewConstMetric(collectivesDesc, prometheus.CounterValue, float64(n), key.String(), op)
		}
	}
	for key, n := range c.counter.LeakedHandles() {
		ch <- prometheus.MustNewConstMetric(leakedDesc, prometheus.CounterValue, float64(n), key.String())
	}
	ch <- prometheus.MustNewConstMetric(rateOutDesc, prometheus.GaugeValue, c.counter.GetBandwidthTotals().RateOut)
}
