package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/atlas-desktop/trading-orchestrator/internal/config"
	"github.com/atlas-desktop/trading-orchestrator/pkg/types"
)

func TestLoadAppliesDefaultsWithNoConfigFile(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	require.Equal(t, "info", cfg.LogLevel)
	require.True(t, cfg.PaperTrading)
	require.Equal(t, 50, cfg.Scheduler.MaxTradesPerDay)
	require.Len(t, cfg.Advisors, 2)
	require.False(t, cfg.Risk.MaxPositionFraction.IsZero())
}

func TestLoadOverridesFromYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orchestrator.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log_level: debug
scheduler:
  max_trades_per_day: 5
  symbols:
    - BTCUSDT
`), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, 5, cfg.Scheduler.MaxTradesPerDay)
	require.Equal(t, []string{"BTCUSDT"}, cfg.Scheduler.Symbols)
}

func TestLoadReturnsConfigErrorOnMissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, types.ErrConfigError)
}

func TestLoadOverridesFromEnv(t *testing.T) {
	t.Setenv("ATLAS_LOG_LEVEL", "warn")

	cfg, err := config.Load("")
	require.NoError(t, err)

	require.Equal(t, "warn", cfg.LogLevel)
}
