package validation

import (
	"context"

	"github.com/alphaforge/engine/internal/apperr"
	"github.com/alphaforge/engine/internal/strategy"
)

// cancellationCheckInterval mirrors the spec's requirement that long trial
// loops check for cancellation at least every 64 iterations (spec §5).
const cancellationCheckInterval = 64

// MetricFunc recomputes the chosen validation metric for a given signal
// ordering (strategy → risk → execution → metricscalc re-run by the
// caller); the permutation test only shuffles signal order, never returns.
type MetricFunc func(signals []strategy.Signal) (float64, error)

// PermutationResult is the persisted output of a permutation test.
type PermutationResult struct {
	Method      string  `json:"method"`
	PValue      float64 `json:"p_value"`
	Trials      int     `json:"trials"`
	ActualValue float64 `json:"actual_value"`
	Skipped     bool    `json:"skipped"`
	SkipReason  string  `json:"skip_reason,omitempty"`
}

// PermutationTest shuffles signal order (not returns) `trials` times,
// recomputing the chosen metric via fn, and derives a one-sided p-value
// (spec §4.7): p = (#(metric_perm >= metric_actual) + 1) / (trials + 1).
// Skipped when tradeCount < 5.
func PermutationTest(ctx context.Context, signals []strategy.Signal, actual float64, tradeCount, trials int, seedRoot int64, fn MetricFunc) (PermutationResult, error) {
	res := PermutationResult{Method: "permutation", Trials: trials, ActualValue: actual}
	if tradeCount < 5 {
		res.Skipped = true
		res.SkipReason = "trade_count < 5"
		return res, nil
	}

	geCount := 0
	for i := 0; i < trials; i++ {
		if i%cancellationCheckInterval == 0 {
			select {
			case <-ctx.Done():
				return res, apperr.New(apperr.CodeCancelled, "permutation test cancelled").WithDetails(map[string]any{"completed_trials": i})
			default:
			}
		}

		shuffled := shuffleSignals(signals, NewTrialRand(seedRoot, "permutation", i))
		metric, err := fn(shuffled)
		if err != nil {
			return res, apperr.Wrap(apperr.CodeInternal, err, "permutation trial failed")
		}
		if metric >= actual {
			geCount++
		}
	}

	res.PValue = float64(geCount+1) / float64(trials+1)
	return res, nil
}

// shuffleSignals returns a copy of signals with directions permuted
// (Fisher-Yates), leaving timestamps untouched so the shuffled series can
// be re-sized and re-executed in place.
func shuffleSignals(signals []strategy.Signal, rnd randSource) []strategy.Signal {
	out := make([]strategy.Signal, len(signals))
	copy(out, signals)
	for i := len(out) - 1; i > 0; i-- {
		j := rnd.Intn(i + 1)
		out[i].Direction, out[j].Direction = out[j].Direction, out[i].Direction
	}
	return out
}

// randSource is the subset of *rand.Rand this package depends on, kept
// narrow so tests can supply a deterministic stub.
type randSource interface {
	Intn(n int) int
}
