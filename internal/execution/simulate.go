package execution

import (
	"fmt"

	"github.com/alphaforge/engine/internal/apperr"
	"github.com/alphaforge/engine/internal/dataset"
	"github.com/alphaforge/engine/internal/strategy"
)

// Simulate runs the T+1 fill simulator over candles under target positions
// decided bar-by-bar (spec §4.5). targets must be the same length as
// candles, one target per decision bar. Returns a precondition violation if
// timestamps are non-monotonic or any volume is negative — both indicate an
// ingester defect rather than a market data property.
func Simulate(candles []dataset.Candle, targets []strategy.TargetPosition, cfg Config) (Result, error) {
	if len(candles) != len(targets) {
		return Result{}, apperr.New(apperr.CodeExecPrecondition, "candles and targets length mismatch")
	}
	if err := checkPreconditions(candles); err != nil {
		return Result{}, err
	}

	fillPolicy, ok := LookupFillPolicy(cfg.FillPrice)
	if !ok {
		return Result{}, apperr.New(apperr.CodeInvalidParam, fmt.Sprintf("unknown fill_price policy %q", cfg.FillPrice))
	}
	slip, ok := LookupSlippageAdapter(cfg.SlippageModel, cfg.HalfSpread, cfg.ParticipationPct)
	if !ok {
		return Result{}, apperr.New(apperr.CodeInvalidParam, fmt.Sprintf("unknown slippage_model %q", cfg.SlippageModel))
	}

	sim := &simulator{
		candles: candles,
		targets: targets,
		cfg:     cfg,
		fill:    fillPolicy,
		slip:    slip,
		equity:  cfg.InitialEquity,
		peak:    cfg.InitialEquity,
	}
	return sim.run()
}

func checkPreconditions(candles []dataset.Candle) error {
	for i, c := range candles {
		if c.Volume < 0 {
			return apperr.New(apperr.CodeExecPrecondition, fmt.Sprintf("negative volume at index %d", i)).
				WithDetails(map[string]any{"index": i, "ts": c.TS})
		}
		if i > 0 && c.TS <= candles[i-1].TS {
			return apperr.New(apperr.CodeExecPrecondition, fmt.Sprintf("non-monotonic timestamp at index %d", i)).
				WithDetails(map[string]any{"index": i, "ts": c.TS, "prev_ts": candles[i-1].TS})
		}
	}
	return nil
}

type simulator struct {
	candles []dataset.Candle
	targets []strategy.TargetPosition
	cfg     Config

	fill FillPricePolicy
	slip SlippageAdapter

	position float64 // signed qty currently held
	equity   float64
	peak     float64

	trades []Trade
	eqPts  []EquityPoint
}

func (s *simulator) run() (Result, error) {
	n := len(s.candles)
	for t := 0; t < n; t++ {
		desired := s.desiredQty(t)
		delta := desired - s.position

		if t+1 < n && delta != 0 {
			s.executeDelta(t, delta)
		}

		s.accrueBorrow(t)
		s.markToMarket(t)
	}

	if s.cfg.AutoFlattenEnd && s.position != 0 && n > 0 {
		s.flattenAtClose(n - 1)
		s.markToMarket(n - 1)
	}

	return Result{Trades: s.trades, Equity: s.eqPts}, nil
}

// desiredQty converts bar t's target fraction into a signed quantity,
// qty = target * equity / price_ref, using the decision bar's close as the
// reference price (spec §4.5). equity is marked to market: cash plus the
// current position valued at price_ref.
func (s *simulator) desiredQty(t int) float64 {
	priceRef := s.candles[t].Close
	if priceRef <= 0 {
		return s.position
	}
	target := s.targets[t].Fraction
	nav := s.equity + s.position*priceRef
	return target * nav / priceRef
}

func (s *simulator) executeDelta(t int, delta float64) {
	next := s.candles[t+1]
	if next.ZeroVolume && s.cfg.SkipZeroVolume {
		return // no fill, position unchanged, no reissue
	}

	refPrice, ok := s.fill.Price(next)
	if !ok {
		return
	}

	side := Buy
	qty := delta
	if delta < 0 {
		side = Sell
		qty = -delta
	}

	adjusted := s.slip.Adjust(refPrice, qty, next.Volume, side)
	slippageAmount := (adjusted - refPrice) * qty
	if side == Sell {
		slippageAmount = (refPrice - adjusted) * qty
	}

	execPrice := adjusted * (1 + signedBps(side, s.cfg.SlippageBps))
	notional := qty * execPrice
	fees := notional*(s.cfg.FeeBps/10000) + qty*s.cfg.CommissionPerShare

	s.position += delta
	s.equity -= fees
	if side == Sell {
		s.equity += notional
	} else {
		s.equity -= notional
	}

	s.trades = append(s.trades, Trade{
		TS:       next.TS,
		Side:     side,
		Qty:      qty,
		Price:    execPrice,
		Fees:     fees,
		Slippage: slippageAmount,
	})
}

// signedBps applies slippage_bps against the trader regardless of side.
func signedBps(side Side, bps float64) float64 {
	if side == Buy {
		return bps / 10000
	}
	return -bps / 10000
}

func (s *simulator) accrueBorrow(t int) {
	if s.position >= 0 || s.cfg.BorrowBps == 0 {
		return
	}
	shortNotional := -s.position * s.candles[t].Close
	dayFraction := s.cfg.BarSeconds / 86400
	s.equity -= shortNotional * (s.cfg.BorrowBps / 10000) * dayFraction
}

func (s *simulator) markToMarket(t int) {
	mtm := s.equity + s.position*s.candles[t].Close
	if mtm > s.peak {
		s.peak = mtm
	}
	drawdown := 0.0
	if s.peak > 0 {
		drawdown = mtm/s.peak - 1
	}
	s.eqPts = append(s.eqPts, EquityPoint{
		TS:         s.candles[t].TS,
		Equity:     mtm,
		Position:   s.position,
		PeakEquity: s.peak,
		Drawdown:   drawdown,
	})
}

func (s *simulator) flattenAtClose(t int) {
	price := s.candles[t].Close
	side := Sell
	qty := s.position
	if s.position < 0 {
		side = Buy
		qty = -s.position
	}
	notional := qty * price
	fees := notional * (s.cfg.FeeBps / 10000)
	if side == Sell {
		s.equity += notional
	} else {
		s.equity -= notional
	}
	s.equity -= fees
	s.trades = append(s.trades, Trade{TS: s.candles[t].TS, Side: side, Qty: qty, Price: price, Fees: fees})
	s.position = 0
}
