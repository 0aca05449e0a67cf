package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/dep2p/go-commstack/config"
	"github.com/dep2p/go-commstack/pkg/types"
)

// ============================================================================
// Fx 模块测试
// ============================================================================

func TestModule_Provides(t *testing.T) {
	var reporter Reporter
	var counter *BandwidthCounter

	app := fxtest.New(t,
		Module,
		fx.Populate(&reporter, &counter),
	)
	defer app.RequireStart().RequireStop()

	require.NotNil(t, reporter)
	reporter.LogSent(types.DefaultKey, 0, 100)
	assert.Equal(t, int64(100), counter.GetBandwidthTotals().TotalOut)
}

func TestModule_Disabled(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Metrics.Enabled = false

	var reporter Reporter
	app := fxtest.New(t,
		fx.Supply(cfg),
		Module,
		fx.Populate(&reporter),
	)
	defer app.RequireStart().RequireStop()

	assert.Nil(t, reporter)
}

func TestModule_RegistersCollector(t *testing.T) {
	reg := prometheus.NewRegistry()

	app := fxtest.New(t,
		fx.Provide(func() prometheus.Registerer { return reg }),
		Module,
	)
	defer app.RequireStart().RequireStop()

	n, err := testutil.GatherAndCount(reg, "commstack_send_rate_bytes")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
