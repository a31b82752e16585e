package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, cfg.Symbols)
	assert.Equal(t, 5*time.Second, cfg.CycleInterval)
	assert.Equal(t, 30*time.Second, cfg.MonitorInterval)
	assert.Equal(t, 60*time.Second, cfg.HeartbeatTimeout)
	assert.Equal(t, 10, cfg.ErrorSpike)
	assert.Equal(t, 5, cfg.MaxRestartsPerHour)
	assert.Equal(t, time.Minute, cfg.BackoffBase)
	assert.InDelta(t, 2.0, cfg.MaxDailyLossPct, 1e-9)
	assert.Equal(t, 3, cfg.MaxConcurrentPositions)
	assert.InDelta(t, 0.25, cfg.KellyFraction, 1e-9)
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("SYMBOLS", " BTCUSDT , SOLUSDT ,")
	t.Setenv("CYCLE_INTERVAL", "250ms")
	t.Setenv("MAX_DAILY_LOSS_PCT", "1.5")
	t.Setenv("MAX_CONCURRENT_POSITIONS", "7")
	t.Setenv("APP_ENV", "production")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"BTCUSDT", "SOLUSDT"}, cfg.Symbols)
	assert.Equal(t, 250*time.Millisecond, cfg.CycleInterval)
	assert.InDelta(t, 1.5, cfg.MaxDailyLossPct, 1e-9)
	assert.Equal(t, 7, cfg.MaxConcurrentPositions)
	assert.True(t, cfg.Production)
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("CYCLE_INTERVAL", "not-a-duration")
	t.Setenv("MAX_CONCURRENT_POSITIONS", "three")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.CycleInterval)
	assert.Equal(t, 3, cfg.MaxConcurrentPositions)
}

func TestLoadFleet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engines.yaml")
	content := `
engines:
  - symbol: BTCUSDT
    cycle_interval: 5s
    vol_window: 64
  - symbol: SOLUSDT
    enabled: false
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	fleet, err := LoadFleet(path)
	require.NoError(t, err)
	require.Len(t, fleet, 2)

	assert.Equal(t, "BTCUSDT", fleet[0].Symbol)
	assert.Equal(t, 5*time.Second, fleet[0].CycleInterval)
	assert.Equal(t, 64, fleet[0].VolWindow)
	assert.True(t, fleet[0].IsEnabled())

	assert.False(t, fleet[1].IsEnabled())
	assert.Zero(t, fleet[1].CycleInterval)
}

func TestLoadFleetMissingFile(t *testing.T) {
	_, err := LoadFleet(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
