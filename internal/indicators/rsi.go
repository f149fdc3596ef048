package indicators

import (
	"fmt"
	"math"

	"github.com/alphaforge/engine/internal/dataset"
)

// RSI is Wilder's Relative Strength Index over `period` bars, adapted from
// the teacher's internal/domain/indicators/technical.go CalculateRSI: same
// Wilder smoothing recurrence, but warm-up bars are NaN (null) instead of
// the teacher's "neutral RSI = 50" sentinel, since spec §4.3 requires
// warm-up rows be null and excluded from strategy decisions rather than
// silently fed a domain-plausible default.
type RSI struct{}

func (RSI) Name() string { return "rsi" }
func (RSI) Version() int { return 1 }
func (RSI) ParamSchema() ParamSchema {
	return ParamSchema{Required: []string{"period"}, IntBounds: map[string][2]int{"period": {2, 1000}}}
}

func (r RSI) Apply(candles []dataset.Candle, params Params) (map[string][]float64, error) {
	if err := r.ParamSchema().Validate(params); err != nil {
		return nil, err
	}
	period, _ := toInt(params["period"])

	out := make([]float64, len(candles))
	for i := range out {
		out[i] = math.NaN()
	}
	if len(candles) < period+1 {
		colName := fmt.Sprintf("rsi_%d", period)
		return map[string][]float64{colName: out}, nil
	}

	avgGain, avgLoss := 0.0, 0.0
	for i := 1; i <= period; i++ {
		change := candles[i].Close - candles[i-1].Close
		if change > 0 {
			avgGain += change
		} else {
			avgLoss -= change
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	out[period] = rsiFromAverages(avgGain, avgLoss)

	alpha := 1.0 / float64(period)
	for i := period + 1; i < len(candles); i++ {
		change := candles[i].Close - candles[i-1].Close
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = avgGain*(1-alpha) + gain*alpha
		avgLoss = avgLoss*(1-alpha) + loss*alpha
		out[i] = rsiFromAverages(avgGain, avgLoss)
	}

	colName := fmt.Sprintf("rsi_%d", period)
	return map[string][]float64{colName: out}, nil
}

func rsiFromAverages(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50.0
		}
		return 100.0
	}
	rs := avgGain / avgLoss
	return 100.0 - (100.0 / (1.0 + rs))
}
