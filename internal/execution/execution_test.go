package execution

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alphaforge/engine/internal/apperr"
	"github.com/alphaforge/engine/internal/dataset"
	"github.com/alphaforge/engine/internal/strategy"
)

func candle(ts int64, o, h, l, c float64, v int64) dataset.Candle {
	return dataset.Candle{TS: ts, Open: o, High: h, Low: l, Close: c, Volume: v, ZeroVolume: v == 0}
}

func flatTargets(n int, frac float64) []strategy.TargetPosition {
	out := make([]strategy.TargetPosition, n)
	for i := range out {
		out[i] = strategy.TargetPosition{TS: int64(i), Fraction: frac}
	}
	return out
}

func TestSimulate_OpenNextFillsOneBarLater(t *testing.T) {
	candles := []dataset.Candle{
		candle(0, 10, 10, 10, 10, 100),
		candle(60000, 11, 11, 11, 11, 100),
		candle(120000, 12, 12, 12, 12, 100),
	}
	targets := []strategy.TargetPosition{
		{TS: 0, Fraction: 1.0},
		{TS: 60000, Fraction: 1.0},
		{TS: 120000, Fraction: 1.0},
	}
	cfg := Config{FillPrice: "open_next", SlippageModel: "none", InitialEquity: 1000}

	res, err := Simulate(candles, targets, cfg)
	require.NoError(t, err)
	// The bar-1 decision rebalances (the price moved from 10 to 11), so a
	// small sell fills at bar-2's open after the initial buy.
	require.Len(t, res.Trades, 2)
	assert.Equal(t, Buy, res.Trades[0].Side)
	assert.Equal(t, 11.0, res.Trades[0].Price, "bar-0 decision fills at bar-1's open")
}

func TestSimulate_SkipsZeroVolumeBar(t *testing.T) {
	candles := []dataset.Candle{
		candle(0, 10, 10, 10, 10, 100),
		candle(60000, 11, 11, 11, 11, 0),
		candle(120000, 12, 12, 12, 12, 100),
	}
	targets := []strategy.TargetPosition{
		{TS: 0, Fraction: 1.0},
		{TS: 60000, Fraction: 0}, // flat decision at bar 1: no new order to reissue
		{TS: 120000, Fraction: 0},
	}
	cfg := Config{FillPrice: "open_next", SlippageModel: "none", SkipZeroVolume: true, InitialEquity: 1000}

	res, err := Simulate(candles, targets, cfg)
	require.NoError(t, err)
	assert.Empty(t, res.Trades, "zero-volume next bar must be skipped, leaving position unchanged")
}

func TestSimulate_SpreadPctWidensBuyPrice(t *testing.T) {
	candles := []dataset.Candle{
		candle(0, 10, 10, 10, 10, 100),
		candle(60000, 10, 10, 10, 10, 100),
	}
	targets := flatTargets(2, 1.0)
	cfg := Config{FillPrice: "open_next", SlippageModel: "spread_pct", HalfSpread: 0.01, InitialEquity: 1000}

	res, err := Simulate(candles, targets, cfg)
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)
	assert.InDelta(t, 10.1, res.Trades[0].Price, 1e-9)
}

func TestSimulate_AutoFlattenEndClosesPosition(t *testing.T) {
	candles := []dataset.Candle{
		candle(0, 10, 10, 10, 10, 100),
		candle(60000, 11, 11, 11, 11, 100),
	}
	targets := []strategy.TargetPosition{
		{TS: 0, Fraction: 1.0},
		{TS: 60000, Fraction: 1.0},
	}
	cfg := Config{FillPrice: "open_next", SlippageModel: "none", AutoFlattenEnd: true, InitialEquity: 1000}

	res, err := Simulate(candles, targets, cfg)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(res.Trades), 2)
	last := res.Trades[len(res.Trades)-1]
	assert.Equal(t, Sell, last.Side)
	assert.Equal(t, 11.0, last.Price, "final synthetic fill closes at the last bar's close")
}

func TestSimulate_NonMonotonicTimestampsFail(t *testing.T) {
	candles := []dataset.Candle{
		candle(60000, 10, 10, 10, 10, 100),
		candle(0, 11, 11, 11, 11, 100),
	}
	targets := flatTargets(2, 0.5)
	cfg := Config{InitialEquity: 1000}

	_, err := Simulate(candles, targets, cfg)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeExecPrecondition, apperr.CodeOf(err))
}

func TestSimulate_NegativeVolumeFails(t *testing.T) {
	candles := []dataset.Candle{candle(0, 10, 10, 10, 10, -1)}
	targets := flatTargets(1, 0.5)

	_, err := Simulate(candles, targets, Config{InitialEquity: 1000})
	require.Error(t, err)
	assert.Equal(t, apperr.CodeExecPrecondition, apperr.CodeOf(err))
}

func TestSimulate_DrawdownTracksPeak(t *testing.T) {
	candles := []dataset.Candle{
		candle(0, 10, 10, 10, 10, 100),
		candle(60000, 10, 10, 10, 10, 100),
		candle(120000, 8, 8, 8, 8, 100),
	}
	targets := flatTargets(3, 1.0)
	cfg := Config{FillPrice: "open_next", SlippageModel: "none", InitialEquity: 1000}

	res, err := Simulate(candles, targets, cfg)
	require.NoError(t, err)
	last := res.Equity[len(res.Equity)-1]
	assert.Less(t, last.Drawdown, 0.0)
}
