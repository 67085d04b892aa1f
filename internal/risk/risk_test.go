package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSizeFixedClampsToBounds(t *testing.T) {
	cfg := DefaultSizingConfig()
	cfg.BasePct = 50 // deliberately absurd to force the max clamp

	d, err := Size(cfg, 100000, 100, 1.0, nil, nil, nil)
	require.NoError(t, err)
	require.Equal(t, cfg.MaxPct, d.Pct)
	require.Contains(t, d.Rationale, "clamped")
}

func TestSizeVolAdjustedRequiresVolatility(t *testing.T) {
	cfg := DefaultSizingConfig()
	cfg.Method = SizingVolAdjusted

	_, err := Size(cfg, 100000, 100, 1.0, nil, nil, nil)
	require.Error(t, err)

	vol := 30.0
	d, err := Size(cfg, 100000, 100, 1.0, &vol, nil, nil)
	require.NoError(t, err)
	require.Greater(t, d.Shares, 0.0)
}

func TestSizeKellyUsesFractionalKelly(t *testing.T) {
	cfg := DefaultSizingConfig()
	cfg.Method = SizingKelly
	winRate := 0.6
	winLoss := 1.5

	d, err := Size(cfg, 100000, 50, 1.0, nil, &winRate, &winLoss)
	require.NoError(t, err)
	require.GreaterOrEqual(t, d.Pct, cfg.MinPct)
}

func TestDrawdownUpdateTracksPeakAndTriggersHalt(t *testing.T) {
	cfg := DefaultDrawdownConfig()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	state := NewDrawdownState(100000, start)

	state, m := Update(state, 110000, start.AddDate(0, 0, 1))
	require.Equal(t, 110000.0, state.PeakEquity)
	require.False(t, ShouldHaltTrading(cfg, m))

	state, m = Update(state, 98000, start.AddDate(0, 0, 2))
	require.InDelta(t, (110000.0-98000.0)/110000.0*100, m.CurrentDDPctFromPeak, 0.001)
	require.True(t, ShouldReduceExposure(cfg, m))
	require.Equal(t, 0.25, GetPositionScale(cfg, m))

	_, m = Update(state, 85000, start.AddDate(0, 0, 3))
	require.True(t, ShouldHaltTrading(cfg, m))
	require.Equal(t, 0.0, GetPositionScale(cfg, m))
}

func TestCheckConcentrationFlagsOversizedPosition(t *testing.T) {
	cfg := DefaultConcentrationConfig()
	holdings := []Holding{{Symbol: "AAPL", Pct: 30}, {Symbol: "MSFT", Pct: 10}}

	violations := CheckConcentration(cfg, holdings)
	require.Len(t, violations, 1)
	require.Equal(t, "AAPL", violations[0].Symbol)
}

func TestCheckCorrelationFlagsHighlyCorrelatedPair(t *testing.T) {
	cfg := DefaultConcentrationConfig()
	base := []float64{0.01, -0.02, 0.03, 0.015, -0.01, 0.02, -0.005, 0.012}
	holdings := []Holding{
		{Symbol: "AAPL", Returns: base},
		{Symbol: "MSFT", Returns: base}, // identical series -> correlation 1.0
		{Symbol: "GLD", Returns: []float64{-0.01, 0.02, -0.03, -0.015, 0.01, -0.02, 0.005, -0.012}},
	}

	violations := CheckCorrelation(cfg, holdings)
	require.NotEmpty(t, violations)
	for _, v := range violations {
		require.Equal(t, "correlation", v.Kind)
	}
}
