// Package execution implements the T+1 fill simulator (spec §4.5, C5):
// target positions decided on bar t execute on bar t+1 under a configurable
// fill-price policy, slippage adapter, commission schedule, and borrow-cost
// accrual, producing an ordered trade tape and a mark-to-market equity
// curve.
package execution

import "github.com/alphaforge/engine/internal/dataset"

// Side is the direction of a simulated trade.
type Side int

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Buy {
		return "BUY"
	}
	return "SELL"
}

// Trade is one simulated fill (spec §3 Trade/Fill).
type Trade struct {
	TS       int64   `json:"ts"`
	Side     Side    `json:"side"`
	Qty      float64 `json:"qty"`
	Price    float64 `json:"price"`
	Fees     float64 `json:"fees"`
	Slippage float64 `json:"slippage"`
}

// EquityPoint is one bar's mark-to-market equity observation.
type EquityPoint struct {
	TS         int64   `json:"ts"`
	Equity     float64 `json:"equity"`
	Position   float64 `json:"position"` // signed quantity held after this bar
	PeakEquity float64 `json:"peak_equity"`
	Drawdown   float64 `json:"drawdown"` // nav/peak_nav - 1, in [-1,0]
}

// FillPricePolicy resolves the reference price a fill executes at, given
// the bar immediately following the decision bar. Returns ok=false when the
// bar is unresolvable for this policy, and no fill takes place; the built-in
// policies always return ok=true (vwap_next uses the open on zero volume).
type FillPricePolicy interface {
	Name() string
	Price(next dataset.Candle) (price float64, ok bool)
}

// SlippageAdapter perturbs a reference price given trade qty and bar volume.
type SlippageAdapter interface {
	Name() string
	Adjust(refPrice float64, qty float64, barVolume int64, side Side) float64
}

// Config parameterizes one execution run (spec §4.5, §7.4 config keys).
type Config struct {
	FillPrice          string // open_next | mid_next | vwap_next
	SlippageModel      string // none | spread_pct | participation_rate
	HalfSpread         float64
	ParticipationPct   float64
	SlippageBps        float64
	FeeBps             float64
	CommissionPerShare float64
	BorrowBps          float64 // daily borrow rate on short notional, prorated per bar by BarSeconds/86400
	SkipZeroVolume     bool
	AutoFlattenEnd     bool
	InitialEquity      float64
	BarSeconds         float64 // nominal bar duration for borrow proration
}

// Result bundles the simulator's output artifacts.
type Result struct {
	Trades []Trade
	Equity []EquityPoint
}
