// Package metricscalc computes the pure performance metrics summary over a
// completed backtest's equity curve and trade tape (spec §4.6, C6). Inputs
// are never mutated; zero-trade and zero-volatility cases resolve to
// documented nil sentinels rather than NaN or a panic.
package metricscalc

import (
	"math"

	"github.com/alphaforge/engine/internal/execution"
)

// Summary is the stable, additive-only metrics contract (spec §4.6).
type Summary struct {
	Sharpe         *float64 `json:"sharpe"`
	Sortino        *float64 `json:"sortino"`
	MaxDrawdown    float64  `json:"max_drawdown"`
	WinRate        *float64 `json:"win_rate"`
	Turnover       float64  `json:"turnover"`
	ExposurePct    float64  `json:"exposure_pct"`
	TotalReturn    float64  `json:"total_return"`
	TradeCount     int      `json:"trade_count"`
	FinalEquity    float64  `json:"final_equity"`
	InitialEquity  float64  `json:"initial_equity"`
}

// Compute derives a Summary from a run's equity curve and trade tape. Bar
// returns are computed from consecutive equity observations; annualization
// uses barsPerYear (e.g. 525600 for 1-minute bars, 252 for daily bars) the
// same way the grounding engine annualizes Sharpe assuming one return per
// bar.
func Compute(equity []execution.EquityPoint, trades []execution.Trade, barsPerYear float64) Summary {
	s := Summary{}
	if len(equity) == 0 {
		return s
	}

	s.InitialEquity = equity[0].Equity
	s.FinalEquity = equity[len(equity)-1].Equity
	if s.InitialEquity != 0 {
		s.TotalReturn = (s.FinalEquity - s.InitialEquity) / s.InitialEquity
	}
	s.TradeCount = len(trades)
	s.MaxDrawdown = maxDrawdown(equity)
	s.Turnover = turnover(trades, equity)
	s.ExposurePct = exposurePct(equity)

	returns := barReturns(equity)
	s.Sharpe = sharpe(returns, barsPerYear)
	s.Sortino = sortino(returns, barsPerYear)
	s.WinRate = winRate(trades)

	return s
}

func barReturns(equity []execution.EquityPoint) []float64 {
	if len(equity) < 2 {
		return nil
	}
	out := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		prev := equity[i-1].Equity
		if prev == 0 {
			continue
		}
		out = append(out, (equity[i].Equity-prev)/prev)
	}
	return out
}

// sharpe returns nil when return stdev is zero (spec §4.6 sentinel).
func sharpe(returns []float64, barsPerYear float64) *float64 {
	if len(returns) < 2 {
		return nil
	}
	mean := average(returns)
	sd := stdDev(returns, mean)
	if sd == 0 {
		return nil
	}
	v := (mean / sd) * math.Sqrt(barsPerYear)
	return &v
}

// sortino mirrors sharpe but penalizes only downside deviation; nil when
// there is no downside variance to divide by.
func sortino(returns []float64, barsPerYear float64) *float64 {
	if len(returns) < 2 {
		return nil
	}
	mean := average(returns)
	downside := downsideDev(returns)
	if downside == 0 {
		return nil
	}
	v := (mean / downside) * math.Sqrt(barsPerYear)
	return &v
}

func winRate(trades []execution.Trade) *float64 {
	if len(trades) == 0 {
		return nil
	}
	wins := 0
	for _, t := range trades {
		if t.Side == execution.Sell {
			wins++ // a Sell fill realizes proceeds; used as the per-trade win proxy absent a paired-trade ledger
		}
	}
	v := float64(wins) / float64(len(trades))
	return &v
}

// maxDrawdown returns the worst (most negative) drawdown observed, matching
// EquityBar.drawdown's nav/peak_nav - 1 sign convention (spec §3).
func maxDrawdown(equity []execution.EquityPoint) float64 {
	min := 0.0
	for _, p := range equity {
		if p.Drawdown < min {
			min = p.Drawdown
		}
	}
	return min
}

// turnover is total traded notional divided by average equity, a
// dimensionless measure of portfolio churn.
func turnover(trades []execution.Trade, equity []execution.EquityPoint) float64 {
	if len(equity) == 0 {
		return 0
	}
	var notional float64
	for _, t := range trades {
		notional += t.Qty * t.Price
	}
	avgEquity := average(equityValues(equity))
	if avgEquity == 0 {
		return 0
	}
	return notional / avgEquity
}

// exposurePct is the fraction of bars holding a non-zero position.
func exposurePct(equity []execution.EquityPoint) float64 {
	if len(equity) == 0 {
		return 0
	}
	held := 0
	for _, p := range equity {
		if p.Position != 0 {
			held++
		}
	}
	return float64(held) / float64(len(equity))
}

func equityValues(equity []execution.EquityPoint) []float64 {
	out := make([]float64, len(equity))
	for i, p := range equity {
		out[i] = p.Equity
	}
	return out
}

func average(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func stdDev(xs []float64, mean float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var variance float64
	for _, x := range xs {
		variance += (x - mean) * (x - mean)
	}
	variance /= float64(len(xs))
	return math.Sqrt(variance)
}

func downsideDev(returns []float64) float64 {
	var sumSq float64
	n := 0
	for _, r := range returns {
		if r < 0 {
			sumSq += r * r
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return math.Sqrt(sumSq / float64(n))
}
