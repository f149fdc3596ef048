package indicators

import (
	"fmt"
	"math"

	"github.com/alphaforge/engine/internal/dataset"
)

// SMA is the simple moving average of close price over `period` bars.
// Grounded on the teacher's technical.go RSI implementation style: warm-up
// bars are NaN rather than a sentinel numeric value, matching spec §4.3
// ("Warm-up rows ... are null").
type SMA struct{}

func (SMA) Name() string    { return "sma" }
func (SMA) Version() int    { return 1 }
func (SMA) ParamSchema() ParamSchema {
	return ParamSchema{Required: []string{"period"}, IntBounds: map[string][2]int{"period": {1, 5000}}}
}

func (s SMA) Apply(candles []dataset.Candle, params Params) (map[string][]float64, error) {
	if err := s.ParamSchema().Validate(params); err != nil {
		return nil, err
	}
	period, _ := toInt(params["period"])

	out := make([]float64, len(candles))
	sum := 0.0
	for i, c := range candles {
		sum += c.Close
		if i >= period {
			sum -= candles[i-period].Close
		}
		if i < period-1 {
			out[i] = math.NaN()
			continue
		}
		out[i] = sum / float64(period)
	}
	colName := fmt.Sprintf("sma_%d", period)
	return map[string][]float64{colName: out}, nil
}
