package metricscalc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alphaforge/engine/internal/execution"
)

func TestCompute_ZeroTradesProducesNilSentinels(t *testing.T) {
	equity := []execution.EquityPoint{
		{TS: 0, Equity: 1000, PeakEquity: 1000},
		{TS: 1, Equity: 1000, PeakEquity: 1000},
	}
	summary := Compute(equity, nil, 252)
	assert.Nil(t, summary.WinRate)
	assert.Equal(t, 0, summary.TradeCount)
	assert.Equal(t, 0.0, summary.TotalReturn)
}

func TestCompute_ZeroVolatilityProducesNilSharpe(t *testing.T) {
	equity := []execution.EquityPoint{
		{TS: 0, Equity: 1000},
		{TS: 1, Equity: 1000},
		{TS: 2, Equity: 1000},
	}
	summary := Compute(equity, nil, 252)
	require.Nil(t, summary.Sharpe)
	require.Nil(t, summary.Sortino)
}

func TestCompute_PositiveReturnsProduceSharpe(t *testing.T) {
	equity := []execution.EquityPoint{
		{TS: 0, Equity: 1000},
		{TS: 1, Equity: 1010},
		{TS: 2, Equity: 990},
		{TS: 3, Equity: 1030},
	}
	summary := Compute(equity, nil, 252)
	require.NotNil(t, summary.Sharpe)
	assert.InDelta(t, 0.03, summary.TotalReturn, 1e-9)
}

func TestCompute_MaxDrawdownTracksWorstPoint(t *testing.T) {
	equity := []execution.EquityPoint{
		{TS: 0, Equity: 1000, Drawdown: 0},
		{TS: 1, Equity: 900, Drawdown: -0.1},
		{TS: 2, Equity: 950, Drawdown: -0.05},
		{TS: 3, Equity: 800, Drawdown: -0.2},
	}
	summary := Compute(equity, nil, 252)
	assert.Equal(t, -0.2, summary.MaxDrawdown)
}

func TestCompute_ExposurePctCountsHeldBars(t *testing.T) {
	equity := []execution.EquityPoint{
		{TS: 0, Equity: 1000, Position: 0},
		{TS: 1, Equity: 1000, Position: 5},
		{TS: 2, Equity: 1000, Position: 5},
		{TS: 3, Equity: 1000, Position: 0},
	}
	summary := Compute(equity, nil, 252)
	assert.Equal(t, 0.5, summary.ExposurePct)
}
