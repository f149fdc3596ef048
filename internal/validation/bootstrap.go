package validation

import (
	"context"
	"math"
	"sort"

	"github.com/alphaforge/engine/internal/apperr"
)

// BootstrapResult is the persisted output of an adaptive block bootstrap
// (spec §4.7 HADJ-BB).
type BootstrapResult struct {
	Method      string   `json:"method"`
	CILow       float64  `json:"ci_low"`
	CIHigh      float64  `json:"ci_high"`
	Mean        float64  `json:"mean"`
	Std         float64  `json:"std"`
	Trials      int      `json:"trials"`
	BlockLength *int     `json:"block_length"`
	Jitter      int      `json:"jitter"`
	Fallback    bool     `json:"fallback"`
}

// StatFunc reduces a resampled return series to the statistic under test.
type StatFunc func(returns []float64) float64

// Mean is the default StatFunc.
func Mean(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	var sum float64
	for _, r := range returns {
		sum += r
	}
	return sum / float64(len(returns))
}

// BlockBootstrap runs the adaptive block bootstrap described in spec §4.7:
// it picks a block length from the return series' autocorrelation, falls
// back to IID resampling when the series shows insufficient serial
// dependence or is too short, jitters the chosen block length
// deterministically, then resamples `trials` replicates and reports the
// confidence interval at `ciLevel` (e.g. 0.95).
func BlockBootstrap(ctx context.Context, returns []float64, trials int, ciLevel float64, seedRoot int64, stat StatFunc) (BootstrapResult, error) {
	if stat == nil {
		stat = Mean
	}
	n := len(returns)
	res := BootstrapResult{Method: "block_bootstrap", Trials: trials}

	k, fallback := chooseBlockLength(returns)
	var effectiveBlock int
	if fallback {
		res.Fallback = true
		res.BlockLength = nil
	} else {
		j := int((seedRoot+int64(k))%3) - 1
		effectiveBlock = k + j
		if effectiveBlock < 2 {
			effectiveBlock = 2
		}
		res.BlockLength = &effectiveBlock
		res.Jitter = j
	}

	replicates := make([]float64, 0, trials)
	for i := 0; i < trials; i++ {
		if i%cancellationCheckInterval == 0 {
			select {
			case <-ctx.Done():
				return res, apperr.New(apperr.CodeCancelled, "bootstrap cancelled").WithDetails(map[string]any{"completed_trials": i})
			default:
			}
		}

		rnd := NewTrialRand(seedRoot, "bootstrap", i)
		var sample []float64
		if res.Fallback {
			sample = resampleIID(returns, n, rnd)
		} else {
			sample = resampleBlocks(returns, n, effectiveBlock, rnd)
		}
		replicates = append(replicates, stat(sample))
	}

	res.Mean = Mean(replicates)
	res.Std = stdDevOf(replicates, res.Mean)
	res.CILow, res.CIHigh = percentileCI(replicates, ciLevel)
	return res, nil
}

// chooseBlockLength implements spec §4.7 steps 1-3: L_cap = min(50, N/4);
// compute ACF(1..L_cap); find the first local minimum k* with
// ACF(k*) < 0.10; fall back to IID if the series is too short relative to
// k or the autocorrelation magnitude over 1..k is too weak to justify
// blocking.
func chooseBlockLength(returns []float64) (k int, fallback bool) {
	n := len(returns)
	lCap := 50
	if n/4 < lCap {
		lCap = n / 4
	}
	if lCap < 1 {
		return 0, true
	}

	acf := make([]float64, lCap+1)
	for lag := 1; lag <= lCap; lag++ {
		acf[lag] = autocorrelation(returns, lag)
	}

	k = lCap
	for lag := 2; lag <= lCap; lag++ {
		if acf[lag-1] < acf[lag] && acf[lag-1] < 0.10 {
			k = lag - 1
			break
		}
	}

	if n < 5*k {
		return k, true
	}
	var sumAbs float64
	for lag := 1; lag <= k; lag++ {
		sumAbs += math.Abs(acf[lag])
	}
	if sumAbs/float64(k) < 0.05 {
		return k, true
	}
	return k, false
}

func autocorrelation(returns []float64, lag int) float64 {
	n := len(returns)
	if lag >= n {
		return 0
	}
	mean := Mean(returns)
	var num, den float64
	for i := 0; i < n; i++ {
		den += (returns[i] - mean) * (returns[i] - mean)
	}
	for i := 0; i < n-lag; i++ {
		num += (returns[i] - mean) * (returns[i+lag] - mean)
	}
	if den == 0 {
		return 0
	}
	return num / den
}

func resampleIID(returns []float64, n int, rnd randSource) []float64 {
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = returns[rnd.Intn(len(returns))]
	}
	return out
}

func resampleBlocks(returns []float64, n, blockLen int, rnd randSource) []float64 {
	out := make([]float64, 0, n)
	for len(out) < n {
		start := rnd.Intn(len(returns))
		for j := 0; j < blockLen && len(out) < n; j++ {
			out = append(out, returns[(start+j)%len(returns)])
		}
	}
	return out
}

func stdDevOf(xs []float64, mean float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var variance float64
	for _, x := range xs {
		variance += (x - mean) * (x - mean)
	}
	return math.Sqrt(variance / float64(len(xs)))
}

func percentileCI(replicates []float64, level float64) (lo, hi float64) {
	if len(replicates) == 0 {
		return 0, 0
	}
	sorted := make([]float64, len(replicates))
	copy(sorted, replicates)
	sort.Float64s(sorted)

	alpha := (1 - level) / 2
	loIdx := int(alpha * float64(len(sorted)))
	hiIdx := int((1 - alpha) * float64(len(sorted)))
	if hiIdx >= len(sorted) {
		hiIdx = len(sorted) - 1
	}
	return sorted[loIdx], sorted[hiIdx]
}

// CheckWidthGate returns StatsWidthExceeded if strict mode is enabled and
// the interval's width exceeds threshold (spec §4.7 CI width gate).
func CheckWidthGate(res BootstrapResult, strict bool, threshold float64) error {
	if !strict {
		return nil
	}
	width := res.CIHigh - res.CILow
	if width > threshold {
		return apperr.New(apperr.CodeStatsWidthExceeded, "confidence interval width exceeds threshold").
			WithDetails(map[string]any{"width": width, "threshold": threshold})
	}
	return nil
}
