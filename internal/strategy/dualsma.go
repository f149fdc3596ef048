package strategy

import (
	"fmt"
	"math"

	"github.com/alphaforge/engine/internal/apperr"
	"github.com/alphaforge/engine/internal/dataset"
	"github.com/alphaforge/engine/internal/indicators"
)

// DualSMA is a crossover strategy: long while the fast SMA is above the
// slow SMA, short while below, flat during warm-up or a tie. Grounded on
// the concrete scenario S1 in spec §8 (`dual_sma(fast=5,slow=15)`).
type DualSMA struct{}

func (DualSMA) Name() string { return "dual_sma" }

func (DualSMA) Generate(candles []dataset.Candle, features indicators.Shifted, params map[string]any) ([]Signal, error) {
	fast, ok := intParam(params, "fast")
	if !ok {
		return nil, apperr.New(apperr.CodeInvalidParam, "dual_sma requires integer param 'fast'")
	}
	slow, ok := intParam(params, "slow")
	if !ok {
		return nil, apperr.New(apperr.CodeInvalidParam, "dual_sma requires integer param 'slow'")
	}

	fastCol, ok := features.Column(fmt.Sprintf("sma_%d", fast))
	if !ok {
		return nil, apperr.New(apperr.CodeIndicatorDepMissing, fmt.Sprintf("dual_sma requires sma_%d", fast))
	}
	slowCol, ok := features.Column(fmt.Sprintf("sma_%d", slow))
	if !ok {
		return nil, apperr.New(apperr.CodeIndicatorDepMissing, fmt.Sprintf("dual_sma requires sma_%d", slow))
	}

	signals := make([]Signal, len(candles))
	for i, c := range candles {
		signals[i] = Signal{TS: c.TS, Direction: Flat}
		if i >= len(fastCol) || i >= len(slowCol) {
			continue
		}
		f, s := fastCol[i], slowCol[i]
		if math.IsNaN(f) || math.IsNaN(s) {
			continue // warm-up: flat
		}
		switch {
		case f > s:
			signals[i].Direction = Long
		case f < s:
			signals[i].Direction = Short
		default:
			signals[i].Direction = Flat
		}
	}
	return signals, nil
}

func intParam(params map[string]any, key string) (int, bool) {
	v, ok := params[key]
	if !ok {
		return 0, false
	}
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		return int(t), true
	default:
		return 0, false
	}
}
