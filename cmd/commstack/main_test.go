package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-commstack/config"
	"github.com/dep2p/go-commstack/internal/core/transport/loopback"
	"github.com/dep2p/go-commstack/pkg/types"
)

func TestDrive_Loopback(t *testing.T) {
	for _, dims := range []types.CommKey{{1, 1, 1, 1}, {2, 2, 1, 1}, {3, 1, 2, 1}} {
		t.Run(dims.String(), func(t *testing.T) {
			cfg := config.NewConfig()
			cfg.Grid.Dims = dims
			for _, key := range []types.CommKey{{dims[0], 1, 1, 1}, {1, 1, dims[2], 1}} {
				if key != types.DefaultKey {
					cfg.Grid.Splits = append(cfg.Grid.Splits, key)
				}
			}
			require.NoError(t, cfg.Validate())

			w, err := loopback.NewWorld(dims.Product(), loopback.WithRanksPerHost(2))
			require.NoError(t, err)
			err = loopback.Run(context.Background(), w, func(ctx context.Context, tr *loopback.Transport) error {
				return drive(ctx, cfg, tr)
			})
			assert.NoError(t, err)
		})
	}
}

func TestBuildConfig_Defaults(t *testing.T) {
	cfg, err := buildConfig()
	require.NoError(t, err)
	assert.Equal(t, types.DefaultKey, cfg.Grid.Dims)
	assert.Empty(t, cfg.Grid.Splits)
}

func TestSplitAndTrim(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitAndTrim(" a, ,b ", ","))
	assert.Empty(t, splitAndTrim("", ","))
}
