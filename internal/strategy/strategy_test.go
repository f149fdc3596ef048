package strategy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alphaforge/engine/internal/dataset"
	"github.com/alphaforge/engine/internal/indicators"
)

func candlesWithClose(values ...float64) []dataset.Candle {
	out := make([]dataset.Candle, len(values))
	for i, v := range values {
		out[i] = dataset.Candle{TS: int64(i) * 60000, Close: v}
	}
	return out
}

func TestDualSMA_CrossoverSignals(t *testing.T) {
	engine := indicators.NewEngine(indicators.NewRegistry(), indicators.NewFeatureCache(nil))
	candles := candlesWithClose(1, 2, 3, 4, 5, 4, 3, 2, 1)
	shifted, err := engine.Compute(context.Background(), candles, "hash", []indicators.Spec{
		{Name: "sma", Params: indicators.Params{"period": 2}},
		{Name: "sma", Params: indicators.Params{"period": 4}},
	})
	require.NoError(t, err)

	strat := DualSMA{}
	signals, err := strat.Generate(candles, shifted, map[string]any{"fast": 2, "slow": 4})
	require.NoError(t, err)
	require.Len(t, signals, len(candles))

	// Warm-up bars (before slow SMA is ready, plus the causal shift) are flat.
	assert.Equal(t, Flat, signals[0].Direction)
}

func TestDualSMA_MissingDependency(t *testing.T) {
	strat := DualSMA{}
	empty := indicators.Shifted{}
	_, err := strat.Generate(candlesWithClose(1, 2, 3), empty, map[string]any{"fast": 2, "slow": 4})
	require.Error(t, err)
}

func TestFixedFraction_ClampsToUnitInterval(t *testing.T) {
	risk := FixedFraction{}
	signals := []Signal{{TS: 1, Direction: Long}, {TS: 2, Direction: Short}, {TS: 3, Direction: Flat}}
	targets, err := risk.Size(nil, signals, map[string]any{"f": 2.0})
	require.NoError(t, err)
	assert.Equal(t, 1.0, targets[0].Fraction)
	assert.Equal(t, -1.0, targets[1].Fraction)
	assert.Equal(t, 0.0, targets[2].Fraction)
}

func TestVolatilityTarget_ZeroDuringWarmup(t *testing.T) {
	risk := VolatilityTarget{}
	candles := candlesWithClose(100, 101, 102, 101, 103, 104, 102, 105, 106, 107)
	signals := make([]Signal, len(candles))
	for i := range signals {
		signals[i] = Signal{TS: candles[i].TS, Direction: Long}
	}

	targets, err := risk.Size(candles, signals, map[string]any{"base": 1.0, "target_vol": 0.02, "lookback": 5})
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		assert.Equal(t, 0.0, targets[i].Fraction, "index %d should be zero during warm-up", i)
	}
	assert.NotEqual(t, 0.0, targets[len(targets)-1].Fraction)
}

func TestKellyFraction_NonNegative(t *testing.T) {
	risk := KellyFraction{}
	signals := []Signal{{TS: 1, Direction: Long}}
	targets, err := risk.Size(nil, signals, map[string]any{"base": 1.0, "p": 0.3, "r": 1.0})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, targets[0].Fraction, 0.0)
}

func TestKellyFraction_NegativeEdgeProducesZero(t *testing.T) {
	risk := KellyFraction{}
	signals := []Signal{{TS: 1, Direction: Long}}
	targets, err := risk.Size(nil, signals, map[string]any{"base": 1.0, "p": 0.1, "r": 1.0})
	require.NoError(t, err)
	assert.Equal(t, 0.0, targets[0].Fraction)
}

func TestNoRisk_PassesSignalThrough(t *testing.T) {
	risk := NoRisk{}
	signals := []Signal{{TS: 1, Direction: Short}}
	targets, err := risk.Size(nil, signals, nil)
	require.NoError(t, err)
	assert.Equal(t, -1.0, targets[0].Fraction)
}
