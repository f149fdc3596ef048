package validation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alphaforge/engine/internal/strategy"
)

func TestDeriveSeed_DeterministicAcrossCalls(t *testing.T) {
	a := DeriveSeed(42, "permutation", 3)
	b := DeriveSeed(42, "permutation", 3)
	assert.Equal(t, a, b)
}

func TestDeriveSeed_VariesByIndexAndMethod(t *testing.T) {
	base := DeriveSeed(42, "permutation", 0)
	byIndex := DeriveSeed(42, "permutation", 1)
	byMethod := DeriveSeed(42, "bootstrap", 0)
	assert.NotEqual(t, base, byIndex)
	assert.NotEqual(t, base, byMethod)
}

func TestPermutationTest_SkipsBelowMinimumTrades(t *testing.T) {
	res, err := PermutationTest(context.Background(), nil, 0, 3, 100, 1, func(s []strategy.Signal) (float64, error) {
		return 0, nil
	})
	require.NoError(t, err)
	assert.True(t, res.Skipped)
}

func TestPermutationTest_ComputesPValue(t *testing.T) {
	signals := make([]strategy.Signal, 20)
	for i := range signals {
		signals[i] = strategy.Signal{TS: int64(i), Direction: strategy.Long}
	}
	res, err := PermutationTest(context.Background(), signals, 1.0, 10, 50, 7, func(s []strategy.Signal) (float64, error) {
		return 0.5, nil // every shuffle scores below the actual metric
	})
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.InDelta(t, 1.0/51.0, res.PValue, 1e-9)
}

func TestPermutationTest_DeterministicAcrossRuns(t *testing.T) {
	signals := make([]strategy.Signal, 20)
	for i := range signals {
		signals[i] = strategy.Signal{TS: int64(i), Direction: strategy.Long}
	}
	metricFn := func(s []strategy.Signal) (float64, error) {
		var sum float64
		for _, sig := range s {
			sum += float64(sig.Direction)
		}
		return sum, nil
	}
	a, err := PermutationTest(context.Background(), signals, 0, 10, 30, 99, metricFn)
	require.NoError(t, err)
	b, err := PermutationTest(context.Background(), signals, 0, 10, 30, 99, metricFn)
	require.NoError(t, err)
	assert.Equal(t, a.PValue, b.PValue)
}

func TestBlockBootstrap_ProducesOrderedCI(t *testing.T) {
	returns := make([]float64, 200)
	for i := range returns {
		returns[i] = 0.001 * float64(i%7-3)
	}
	res, err := BlockBootstrap(context.Background(), returns, 100, 0.95, 42, Mean)
	require.NoError(t, err)
	assert.LessOrEqual(t, res.CILow, res.CIHigh)
	assert.Equal(t, 100, res.Trials)
}

func TestBlockBootstrap_FallsBackOnShortSeries(t *testing.T) {
	returns := []float64{0.01, -0.02, 0.015}
	res, err := BlockBootstrap(context.Background(), returns, 20, 0.95, 42, Mean)
	require.NoError(t, err)
	assert.True(t, res.Fallback)
	assert.Nil(t, res.BlockLength)
}

func TestBlockBootstrap_DeterministicAcrossRuns(t *testing.T) {
	returns := make([]float64, 100)
	for i := range returns {
		returns[i] = 0.002 * float64(i%5)
	}
	a, err := BlockBootstrap(context.Background(), returns, 50, 0.9, 11, Mean)
	require.NoError(t, err)
	b, err := BlockBootstrap(context.Background(), returns, 50, 0.9, 11, Mean)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestCheckWidthGate_FailsWhenStrictAndTooWide(t *testing.T) {
	res := BootstrapResult{CILow: -0.1, CIHigh: 0.3}
	err := CheckWidthGate(res, true, 0.2)
	require.Error(t, err)
}

func TestCheckWidthGate_PassesWhenNotStrict(t *testing.T) {
	res := BootstrapResult{CILow: -0.1, CIHigh: 0.3}
	err := CheckWidthGate(res, false, 0.2)
	require.NoError(t, err)
}

func TestWalkForward_PartitionsSegmentsSequentially(t *testing.T) {
	calls := []int{}
	res, err := WalkForward(100, 5, func(historyEnd, start, end int) (float64, error) {
		calls = append(calls, start)
		if start < 50 {
			return -0.01, nil
		}
		return 0.02, nil
	})
	require.NoError(t, err)
	assert.Len(t, res.Segments, 4) // segments 1..4, segment 0 is history-only
	assert.Equal(t, []int{20, 40, 60, 80}, calls)
}

func TestWalkForward_RequiresAtLeastTwoSegments(t *testing.T) {
	_, err := WalkForward(100, 1, func(int, int, int) (float64, error) { return 0, nil })
	require.Error(t, err)
}
