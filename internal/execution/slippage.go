package execution

import "math"

// NoSlippage leaves the reference price untouched.
type NoSlippage struct{}

func (NoSlippage) Name() string { return "none" }

func (NoSlippage) Adjust(refPrice, _ float64, _ int64, _ Side) float64 { return refPrice }

// SpreadPct crosses half the configured spread against the trader: buys pay
// refPrice*(1+halfSpread), sells receive refPrice*(1-halfSpread).
type SpreadPct struct {
	HalfSpread float64
}

func (SpreadPct) Name() string { return "spread_pct" }

func (s SpreadPct) Adjust(refPrice, _ float64, _ int64, side Side) float64 {
	if side == Buy {
		return refPrice * (1 + s.HalfSpread)
	}
	return refPrice * (1 - s.HalfSpread)
}

// ParticipationRate models market impact proportional to the trade's
// participation in the bar's volume (spec §4.5): impact =
// min(qty/volume, 1) * participationPct, applied against the trader.
type ParticipationRate struct {
	ParticipationPct float64
}

func (ParticipationRate) Name() string { return "participation_rate" }

func (p ParticipationRate) Adjust(refPrice, qty float64, barVolume int64, side Side) float64 {
	if barVolume <= 0 {
		return refPrice
	}
	participation := math.Min(qty/float64(barVolume), 1)
	impact := participation * p.ParticipationPct
	if side == Buy {
		return refPrice * (1 + impact)
	}
	return refPrice * (1 - impact)
}

// LookupSlippageAdapter resolves a slippage_model config key and its params.
func LookupSlippageAdapter(name string, halfSpread, participationPct float64) (SlippageAdapter, bool) {
	switch name {
	case "", "none":
		return NoSlippage{}, true
	case "spread_pct":
		return SpreadPct{HalfSpread: halfSpread}, true
	case "participation_rate":
		return ParticipationRate{ParticipationPct: participationPct}, true
	default:
		return nil, false
	}
}
