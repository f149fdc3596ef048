package indicators

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/alphaforge/engine/internal/dataset"
)

// CodeVersion is mixed into the feature cache key so a binary upgrade that
// changes indicator semantics invalidates stale cache entries even when
// dataset_hash/params are unchanged.
const CodeVersion = "1"

// rowCap bounds the candle rows processed per chunk (spec §5 Resource
// ceilings: "row cap 2,000,000/chunk").
const rowCap = 2_000_000

// defaultLookback is the overlap carried into the next chunk when no spec
// declares a larger period, covering the built-in indicators' windows.
const defaultLookback = 200

// Engine computes a set of indicator specs over candles and returns the
// causality-shifted, strategy-safe view.
type Engine struct {
	registry *Registry
	cache    *FeatureCache

	// chunkPace throttles how fast the engine advances through chunks on
	// oversized datasets, the adaptive-sizing partner to the ~256 MB/chunk
	// target (spec §5): holding several chunks' raw columns in flight at
	// once is what the CI 1.5 GB RSS ceiling actually constrains.
	chunkPace *rate.Limiter
}

// NewEngine builds an indicator engine over registry, caching feature
// columns through cache (which may wrap Redis; see cache.go).
func NewEngine(registry *Registry, cache *FeatureCache) *Engine {
	return &Engine{
		registry:  registry,
		cache:     cache,
		chunkPace: rate.NewLimiter(rate.Limit(8), 1),
	}
}

// Compute evaluates every spec against candles (tagged with datasetHash for
// cache-key purposes; in chunked mode the tag also carries the chunk's row
// range) and returns the shifted feature view. Datasets larger
// than rowCap are processed in overlapping chunks (spec §5) so no single
// indicator pass has to hold the full candle set's working columns at once;
// the causal +1 shift is applied exactly once, over the fully stitched
// result, so chunk boundaries are invisible to callers.
func (e *Engine) Compute(ctx context.Context, candles []dataset.Candle, datasetHash string, specs []Spec) (Shifted, error) {
	if len(candles) <= rowCap {
		raw, err := e.computeChunk(ctx, candles, datasetHash, specs)
		if err != nil {
			return Shifted{}, err
		}
		return shiftColumns(raw, len(candles)), nil
	}

	lookback := lookbackFor(specs)
	merged := make(columnSet)
	start := 0
	first := true

	for start < len(candles) {
		if err := e.chunkPace.Wait(ctx); err != nil {
			return Shifted{}, err
		}

		end := start + rowCap
		if end > len(candles) {
			end = len(candles)
		}

		chunkHash := fmt.Sprintf("%s#rows[%d:%d]", datasetHash, start, end)
		raw, err := e.computeChunk(ctx, candles[start:end], chunkHash, specs)
		if err != nil {
			return Shifted{}, err
		}

		trim := 0
		if !first {
			trim = lookback
			if trim > end-start {
				trim = end - start
			}
		}
		for name, col := range raw {
			if trim > len(col) {
				trim = len(col)
			}
			merged[name] = append(merged[name], col[trim:]...)
		}

		first = false
		if end == len(candles) {
			break
		}
		start = end - lookback
		if start < 0 {
			start = 0
		}
	}

	return shiftColumns(merged, len(candles)), nil
}

// computeChunk evaluates every spec over one contiguous slice of candles,
// resolving each from the feature cache before falling back to the
// indicator's own Apply.
func (e *Engine) computeChunk(ctx context.Context, candles []dataset.Candle, datasetHash string, specs []Spec) (columnSet, error) {
	merged := make(columnSet)

	for _, spec := range specs {
		ind, err := e.registry.Lookup(spec.Name)
		if err != nil {
			return nil, err
		}
		if err := ind.ParamSchema().Validate(spec.Params); err != nil {
			return nil, err
		}

		key, err := CacheKey(datasetHash, ind.Name(), ind.Version(), spec.Params, CodeVersion)
		if err != nil {
			return nil, err
		}

		cols, hit := e.cache.Get(ctx, key)
		if !hit {
			cols, err = ind.Apply(candles, spec.Params)
			if err != nil {
				return nil, err
			}
			e.cache.Put(ctx, key, cols)
		}
		for name, col := range cols {
			merged[name] = col
		}
	}

	return merged, nil
}

// lookbackFor returns the overlap to carry between chunks: the largest
// "period" parameter named across specs, but never less than
// defaultLookback.
func lookbackFor(specs []Spec) int {
	lookback := defaultLookback
	for _, spec := range specs {
		if period, ok := toInt(spec.Params["period"]); ok && period > lookback {
			lookback = period
		}
	}
	return lookback
}
