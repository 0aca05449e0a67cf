package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-commstack/pkg/types"
)

func TestCollector(t *testing.T) {
	bwc := NewBandwidthCounter()
	bwc.LogSent(types.DefaultKey, 1, 100)
	bwc.LogRecv(types.DefaultKey, 1, 40)
	bwc.LogCollective(types.DefaultKey, "barrier")

	c := NewCollector(bwc)
	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(c))

	expected := `
# HELP commstack_bytes_sent_total Point-to-point bytes sent, by topology key.
# TYPE commstack_bytes_sent_total counter
commstack_bytes_sent_total{key="1x1x1x1"} 100
# HELP commstack_bytes_received_total Point-to-point bytes received, by topology key.
# TYPE commstack_bytes_received_total counter
commstack_bytes_received_total{key="1x1x1x1"} 40
# HELP commstack_collectives_total Collective operations issued, by topology key and operation.
# TYPE commstack_collectives_total counter
commstack_collectives_total{key="1x1x1x1",op="barrier"} 1
`
	err := testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"commstack_bytes_sent_total",
		"commstack_bytes_received_total",
		"commstack_collectives_total",
	)
	assert.NoError(t, err)

	n, err := testutil.GatherAndCount(reg, "commstack_peer_bytes_sent_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
