package indicators

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alphaforge/engine/internal/dataset"
)

func closes(values ...float64) []dataset.Candle {
	candles := make([]dataset.Candle, len(values))
	for i, v := range values {
		candles[i] = dataset.Candle{TS: int64(i) * 60000, Close: v}
	}
	return candles
}

func TestSMA_WarmupIsNull(t *testing.T) {
	sma := SMA{}
	cols, err := sma.Apply(closes(1, 2, 3, 4, 5), Params{"period": 3})
	require.NoError(t, err)

	col := cols["sma_3"]
	assert.True(t, math.IsNaN(col[0]))
	assert.True(t, math.IsNaN(col[1]))
	assert.InDelta(t, 2.0, col[2], 1e-9)
	assert.InDelta(t, 3.0, col[3], 1e-9)
	assert.InDelta(t, 4.0, col[4], 1e-9)
}

func TestSMA_InvalidParams(t *testing.T) {
	sma := SMA{}
	_, err := sma.Apply(closes(1, 2, 3), Params{"period": 10000})
	require.Error(t, err)

	_, err = sma.Apply(closes(1, 2, 3), Params{})
	require.Error(t, err)
}

func TestRSI_WarmupIsNull(t *testing.T) {
	rsi := RSI{}
	values := make([]float64, 20)
	for i := range values {
		values[i] = 100 + float64(i)
	}
	cols, err := rsi.Apply(closes(values...), Params{"period": 14})
	require.NoError(t, err)

	col := cols["rsi_14"]
	for i := 0; i < 14; i++ {
		assert.True(t, math.IsNaN(col[i]), "index %d should be NaN", i)
	}
	assert.False(t, math.IsNaN(col[14]))
	// Strictly increasing prices -> RSI should be 100 (no losses).
	assert.InDelta(t, 100.0, col[len(col)-1], 1e-9)
}

func TestShift_PrependsNullAndPreservesCausality(t *testing.T) {
	raw := columnSet{"x": {10, 20, 30}}
	shifted := shiftColumns(raw, 4)

	col, ok := shifted.Column("x")
	require.True(t, ok)
	require.Len(t, col, 4)
	assert.True(t, math.IsNaN(col[0]))
	assert.Equal(t, 10.0, col[1])
	assert.Equal(t, 20.0, col[2])
	assert.Equal(t, 30.0, col[3])

	assert.False(t, shifted.Ready("x", 0))
	assert.True(t, shifted.Ready("x", 1))
}

func TestEngine_ComputeCachesAcrossCalls(t *testing.T) {
	registry := NewRegistry()
	cache := NewFeatureCache(nil)
	engine := NewEngine(registry, cache)

	candles := closes(1, 2, 3, 4, 5, 6, 7, 8)
	specs := []Spec{{Name: "sma", Params: Params{"period": 3}}}

	s1, err := engine.Compute(context.Background(), candles, "hash-a", specs)
	require.NoError(t, err)
	s2, err := engine.Compute(context.Background(), candles, "hash-a", specs)
	require.NoError(t, err)

	c1, _ := s1.Column("sma_3")
	c2, _ := s2.Column("sma_3")
	assert.Equal(t, c1, c2)
}

func TestEngine_UnknownIndicator(t *testing.T) {
	engine := NewEngine(NewRegistry(), NewFeatureCache(nil))
	_, err := engine.Compute(context.Background(), closes(1, 2, 3), "hash", []Spec{{Name: "nope"}})
	require.Error(t, err)
}
