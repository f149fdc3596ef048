// Package indicators implements the pure indicator registry and the
// causality guard (spec §4.3, C3): every indicator is a pure function of
// candles, and every output column is shifted by one bar before it is
// exposed to strategy code, so bar-t decisions can never see bar-t (or
// later) feature values.
package indicators

import (
	"math"

	"github.com/alphaforge/engine/internal/apperr"
	"github.com/alphaforge/engine/internal/dataset"
)

// columnSet is the raw, unshifted output of an indicator. It is
// deliberately unexported: the only way for calling code to obtain feature
// values is through Shifted, which enforces the causal shift at the
// package boundary (spec §9 Design Notes: "consumers cannot access the raw
// view").
type columnSet map[string][]float64

// Shifted is the causality-safe view of computed features: every column has
// already been shifted by +1 bar (index 0 is always null/NaN). Strategies
// consume only this type.
type Shifted struct {
	columns map[string][]float64
	n       int
}

// Column returns the shifted values for name, or (nil, false) if absent.
func (s Shifted) Column(name string) ([]float64, bool) {
	c, ok := s.columns[name]
	return c, ok
}

// At returns the shifted value of column name at bar index i, or NaN if
// the column is absent or the bar is in the warm-up prefix.
func (s Shifted) At(name string, i int) float64 {
	c, ok := s.columns[name]
	if !ok || i < 0 || i >= len(c) {
		return math.NaN()
	}
	return c[i]
}

// Ready reports whether column name has a non-null (non-NaN) value at bar i.
func (s Shifted) Ready(name string, i int) bool {
	return !math.IsNaN(s.At(name, i))
}

func shiftColumns(raw columnSet, n int) Shifted {
	out := make(map[string][]float64, len(raw))
	for name, col := range raw {
		shifted := make([]float64, n)
		shifted[0] = math.NaN()
		copy(shifted[1:], col)
		// col may be shorter than n-1 if an indicator under-produced;
		// anything beyond what was copied stays NaN via zero-value init
		// only for float64 which defaults to 0, so explicitly fill.
		for i := len(col) + 1; i < n; i++ {
			shifted[i] = math.NaN()
		}
		out[name] = shifted
	}
	return Shifted{columns: out, n: n}
}

// Params is an indicator parameter bag. Indicators validate their own
// expected keys/types against ParamSchema.
type Params map[string]any

// ParamSchema declares the accepted parameter names and bounds for an
// indicator, used to reject out-of-schema params (spec §4.3 Failure).
type ParamSchema struct {
	Required []string
	IntBounds map[string][2]int // name -> [min,max]
}

func (s ParamSchema) Validate(p Params) error {
	for _, name := range s.Required {
		if _, ok := p[name]; !ok {
			return apperr.New(apperr.CodeInvalidIndicator, "missing required param "+name)
		}
	}
	for name, bounds := range s.IntBounds {
		v, ok := p[name]
		if !ok {
			continue
		}
		iv, ok := toInt(v)
		if !ok {
			return apperr.New(apperr.CodeInvalidIndicator, "param "+name+" must be an integer")
		}
		if iv < bounds[0] || iv > bounds[1] {
			return apperr.New(apperr.CodeInvalidIndicator, "param "+name+" out of bounds")
		}
	}
	return nil
}

func toInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		return int(t), true
	default:
		return 0, false
	}
}

// Indicator is the fixed capability set every indicator variant implements
// (spec §9 Design Notes: "tagged variants rather than open inheritance").
type Indicator interface {
	Name() string
	Version() int
	ParamSchema() ParamSchema
	Apply(candles []dataset.Candle, params Params) (map[string][]float64, error)
}
