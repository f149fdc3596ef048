package strategy

import (
	"math"

	"github.com/alphaforge/engine/internal/dataset"
)

// FixedFraction sizes every signal to a constant fraction of equity (spec
// §4.4): target = signal * f, clamped to [-1,1].
type FixedFraction struct{}

func (FixedFraction) Name() string { return "fixed_fraction" }

func (FixedFraction) Size(candles []dataset.Candle, signals []Signal, params map[string]any) ([]TargetPosition, error) {
	f := floatParam(params, "f", 0)
	out := make([]TargetPosition, len(signals))
	for i, s := range signals {
		out[i] = TargetPosition{TS: s.TS, Fraction: clamp(float64(s.Direction)*f, -1, 1)}
	}
	return out, nil
}

// VolatilityTarget scales exposure inversely to realized volatility (spec
// §4.4): scale = target_vol / max(realized_vol(lookback), eps); target =
// clamp(signal * base * scale, -1, 1). Produces 0 during warm-up.
type VolatilityTarget struct{}

func (VolatilityTarget) Name() string { return "volatility_target" }

func (VolatilityTarget) Size(candles []dataset.Candle, signals []Signal, params map[string]any) ([]TargetPosition, error) {
	base := floatParam(params, "base", 1.0)
	targetVol := floatParam(params, "target_vol", 0.15)
	lookback := int(floatParam(params, "lookback", 20))
	const eps = 1e-9

	returns := logReturns(candles)
	out := make([]TargetPosition, len(signals))
	for i, s := range signals {
		out[i] = TargetPosition{TS: s.TS}
		if i < lookback || s.Direction == Flat {
			continue
		}
		vol := realizedVol(returns, i, lookback)
		scale := targetVol / math.Max(vol, eps)
		out[i].Fraction = clamp(float64(s.Direction)*base*scale, -1, 1)
	}
	return out, nil
}

// KellyFraction applies a capped Kelly criterion sizing (spec §4.4):
// target = signal * base * clamp(p - (1-p)/r, 0, 1).
type KellyFraction struct{}

func (KellyFraction) Name() string { return "kelly_fraction" }

func (KellyFraction) Size(candles []dataset.Candle, signals []Signal, params map[string]any) ([]TargetPosition, error) {
	base := floatParam(params, "base", 1.0)
	p := floatParam(params, "p", 0.5)
	r := floatParam(params, "r", 1.0)
	if r <= 0 {
		r = 1.0
	}

	kelly := clamp(p-(1-p)/r, 0, 1)
	out := make([]TargetPosition, len(signals))
	for i, s := range signals {
		out[i] = TargetPosition{TS: s.TS, Fraction: clamp(float64(s.Direction)*base*kelly, -1, 1)}
	}
	return out, nil
}

// NoRisk passes signals through as a full-size target, used only when
// risk.model = "none".
type NoRisk struct{}

func (NoRisk) Name() string { return "none" }

func (NoRisk) Size(candles []dataset.Candle, signals []Signal, params map[string]any) ([]TargetPosition, error) {
	out := make([]TargetPosition, len(signals))
	for i, s := range signals {
		out[i] = TargetPosition{TS: s.TS, Fraction: clamp(float64(s.Direction), -1, 1)}
	}
	return out, nil
}

func floatParam(params map[string]any, key string, def float64) float64 {
	v, ok := params[key]
	if !ok {
		return def
	}
	switch t := v.(type) {
	case float64:
		return t
	case int:
		return float64(t)
	case int64:
		return float64(t)
	default:
		return def
	}
}

func logReturns(candles []dataset.Candle) []float64 {
	out := make([]float64, len(candles))
	out[0] = math.NaN()
	for i := 1; i < len(candles); i++ {
		if candles[i-1].Close <= 0 || candles[i].Close <= 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = math.Log(candles[i].Close / candles[i-1].Close)
	}
	return out
}

// realizedVol is the population stdev (divided by n) of the last `lookback` log returns
// ending at index i, annualization left to the caller's target_vol scale.
func realizedVol(returns []float64, i, lookback int) float64 {
	start := i - lookback + 1
	if start < 1 {
		start = 1
	}
	var sum, sumSq float64
	n := 0
	for j := start; j <= i && j < len(returns); j++ {
		r := returns[j]
		if math.IsNaN(r) {
			continue
		}
		sum += r
		sumSq += r * r
		n++
	}
	if n < 2 {
		return 0
	}
	mean := sum / float64(n)
	variance := sumSq/float64(n) - mean*mean
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance)
}

// RiskRegistry resolves a risk model by name.
func RiskRegistry() map[string]RiskModel {
	return map[string]RiskModel{
		"fixed_fraction":    FixedFraction{},
		"volatility_target": VolatilityTarget{},
		"kelly_fraction":    KellyFraction{},
		"none":              NoRisk{},
	}
}

// StrategyRegistry resolves a strategy by name.
func StrategyRegistry() map[string]Strategy {
	return map[string]Strategy{
		"dual_sma": DualSMA{},
	}
}
