package validation

import (
	"github.com/alphaforge/engine/internal/apperr"
)

// WalkForwardSegment reports the metric computed on one out-of-sample
// segment (spec §4.7).
type WalkForwardSegment struct {
	Index      int     `json:"index"`
	StartIndex int     `json:"start_index"`
	EndIndex   int     `json:"end_index"`
	Metric     float64 `json:"metric"`
	Profitable bool    `json:"profitable"`
}

// WalkForwardResult aggregates the per-segment results.
type WalkForwardResult struct {
	Segments             []WalkForwardSegment `json:"segments"`
	ProportionProfitable float64              `json:"proportion_profitable"`
	OOSReturnStd         float64              `json:"oos_return_std"`
}

// SegmentMetricFunc computes the OOS metric for bars [start,end), given the
// bars [0,start) as available history. No parameter optimization occurs in
// v1 (spec §4.7): the same strategy/risk parameters are reused verbatim for
// every segment.
type SegmentMetricFunc func(historyEnd, segmentStart, segmentEnd int) (metric float64, err error)

// WalkForward partitions [0,totalBars) into w sequential segments and
// evaluates segments 1..w-1 (segment 0 has no prior history to validate
// against) via fn.
func WalkForward(totalBars, w int, fn SegmentMetricFunc) (WalkForwardResult, error) {
	if w < 2 {
		return WalkForwardResult{}, apperr.New(apperr.CodeInvalidParam, "walk-forward requires at least 2 segments")
	}
	segLen := totalBars / w
	if segLen == 0 {
		return WalkForwardResult{}, apperr.New(apperr.CodeStatsInsufficient, "insufficient bars for requested segment count")
	}

	var result WalkForwardResult
	var returns []float64
	profitable := 0
	for i := 1; i < w; i++ {
		start := i * segLen
		end := start + segLen
		if i == w-1 {
			end = totalBars
		}
		metric, err := fn(start, start, end)
		if err != nil {
			return result, apperr.Wrap(apperr.CodeInternal, err, "walk-forward segment failed")
		}
		seg := WalkForwardSegment{Index: i, StartIndex: start, EndIndex: end, Metric: metric, Profitable: metric > 0}
		if seg.Profitable {
			profitable++
		}
		result.Segments = append(result.Segments, seg)
		returns = append(returns, metric)
	}

	if len(result.Segments) > 0 {
		result.ProportionProfitable = float64(profitable) / float64(len(result.Segments))
		result.OOSReturnStd = stdDevOf(returns, Mean(returns))
	}
	return result, nil
}
