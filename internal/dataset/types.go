// Package dataset implements the deterministic OHLCV ingestion and
// normalization pipeline (spec §4.2, C2): parse → UTC convert → dedupe →
// drop future rows → flag zero-volume → timeframe check → gap
// classification → canonical digest → immutable candle cache.
package dataset

import "time"

// Candle is one immutable OHLCV observation, timestamped in UTC
// milliseconds (spec §3 Candle).
type Candle struct {
	TS         int64 `json:"ts"`
	Open       float64 `json:"o"`
	High       float64 `json:"h"`
	Low        float64 `json:"l"`
	Close      float64 `json:"c"`
	Volume     int64   `json:"v"`
	ZeroVolume bool    `json:"zero_volume"`
}

// AnomalyCounters tallies the non-fatal ingestion anomalies recorded during
// normalization (spec §4.2 steps 1,3,4,5,7).
type AnomalyCounters struct {
	RowsDroppedMissing  int64    `json:"rows_dropped_missing"`
	DuplicatesDropped   int64    `json:"duplicates_dropped"`
	DuplicateSamples    []int64  `json:"duplicate_samples,omitempty"` // up to 5 sample ts
	FutureRowsDropped   int64    `json:"future_rows_dropped"`
	ZeroVolumeRows      int64    `json:"zero_volume_rows"`
	ExpectedClosures    int64    `json:"expected_closures"`
	UnexpectedGaps      int64    `json:"unexpected_gaps"`
}

// Metadata describes a normalized, cached dataset (spec §3 DatasetMetadata).
// Keyed by (Symbol, Timeframe).
type Metadata struct {
	Symbol             string          `json:"symbol"`
	Timeframe          string          `json:"timeframe"`
	DataHash           string          `json:"data_hash"`
	CalendarID         string          `json:"calendar_id"`
	FirstTS            int64           `json:"first_ts"`
	LastTS             int64           `json:"last_ts"`
	RowCount           int             `json:"row_count"`
	AnomalyCounters    AnomalyCounters `json:"anomaly_counters"`
	ObservedBarSeconds float64         `json:"observed_bar_seconds"`
	DeclaredBarSeconds float64         `json:"declared_bar_seconds"`
	TimeframeOK        bool            `json:"timeframe_ok"`
}

// Key returns the (symbol, timeframe) identity used by the dataset cache.
func (m Metadata) Key() Key { return Key{Symbol: m.Symbol, Timeframe: m.Timeframe} }

// Key identifies a cached dataset.
type Key struct {
	Symbol    string
	Timeframe string
}

// IngestInput declares the source of a dataset ingestion (spec §4.2 Input).
type IngestInput struct {
	Path       string
	Symbol     string
	Timeframe  string
	SourceTZ   string
	CalendarID string
	StrictTimeframe bool // AF_TIMEFRAME_STRICT
	Now        time.Time // injected clock for future-row detection & determinism in tests
}

// Dataset is the immutable, normalized candle sequence plus its metadata.
type Dataset struct {
	Meta    Metadata
	Candles []Candle
}

// Slice returns an immutable view of candles with TS in [startMS, endMS).
// Never mutates the underlying dataset (spec §4.2 Slicing).
func (d *Dataset) Slice(startMS, endMS int64) []Candle {
	lo := searchFirstGE(d.Candles, startMS)
	hi := searchFirstGE(d.Candles, endMS)
	out := make([]Candle, hi-lo)
	copy(out, d.Candles[lo:hi])
	return out
}

func searchFirstGE(candles []Candle, ts int64) int {
	lo, hi := 0, len(candles)
	for lo < hi {
		mid := (lo + hi) / 2
		if candles[mid].TS < ts {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}
