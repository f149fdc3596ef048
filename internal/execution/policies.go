package execution

import "github.com/alphaforge/engine/internal/dataset"

// OpenNext fills at the next bar's open (spec §4.5 default policy).
type OpenNext struct{}

func (OpenNext) Name() string { return "open_next" }

func (OpenNext) Price(next dataset.Candle) (float64, bool) {
	return next.Open, true
}

// MidNext fills at the next bar's (high+low)/2 midpoint.
type MidNext struct{}

func (MidNext) Name() string { return "mid_next" }

func (MidNext) Price(next dataset.Candle) (float64, bool) {
	return (next.High + next.Low) / 2, true
}

// VWAPNext approximates the next bar's volume-weighted average price as
// (open+high+low+close)/4, the typical-price proxy used when only OHLCV bars
// (not intra-bar trade ticks) are available. On a zero-volume bar the true
// VWAP is undefined; per the Open Question resolved in SPEC_FULL.md §E4,
// this falls back to the bar's open rather than failing the fill, consistent
// with the ingester already flagging zero-volume bars for downstream
// awareness (dataset.Candle.ZeroVolume).
type VWAPNext struct{}

func (VWAPNext) Name() string { return "vwap_next" }

func (VWAPNext) Price(next dataset.Candle) (float64, bool) {
	if next.ZeroVolume {
		return next.Open, true
	}
	return (next.Open + next.High + next.Low + next.Close) / 4, true
}

// LookupFillPolicy resolves a fill_price config key to its implementation.
func LookupFillPolicy(name string) (FillPricePolicy, bool) {
	switch name {
	case "", "open_next":
		return OpenNext{}, true
	case "mid_next":
		return MidNext{}, true
	case "vwap_next":
		return VWAPNext{}, true
	default:
		return nil, false
	}
}
