package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/alphaforge/engine/internal/apperr"
	"github.com/alphaforge/engine/internal/canon"
)

// csvColumns is the required header; adj_close is accepted but ignored
// (spec §6 Dataset input).
var csvColumns = []string{"timestamp", "open", "high", "low", "close", "volume"}

type rawRow struct {
	ts                   time.Time
	o, h, l, c           float64
	v                    int64
	ok                   bool
}

// Ingest runs the full deterministic pipeline (spec §4.2) and returns a
// normalized, immutable Dataset. All anomalies beyond the three fatal
// conditions are recorded as counters, never raised as errors.
func Ingest(in IngestInput) (*Dataset, error) {
	f, err := os.Open(in.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperr.New(apperr.CodeDatasetMissing, fmt.Sprintf("dataset not found: %s", in.Path))
		}
		return nil, apperr.Wrap(apperr.CodeDatasetUnreadable, err, fmt.Sprintf("cannot open dataset: %s", in.Path))
	}
	defer f.Close()

	loc, err := time.LoadLocation(in.SourceTZ)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInvalidParam, err, fmt.Sprintf("unknown source_tz: %s", in.SourceTZ))
	}

	rows, counters, err := parseAndNormalize(f, loc, in.Now)
	if err != nil {
		return nil, err
	}

	candles := make([]Candle, len(rows))
	for i, r := range rows {
		candles[i] = Candle{
			TS:         r.ts.UTC().UnixMilli(),
			Open:       r.o,
			High:       r.h,
			Low:        r.l,
			Close:      r.c,
			Volume:     r.v,
			ZeroVolume: r.v == 0,
		}
		if candles[i].ZeroVolume {
			counters.ZeroVolumeRows++
		}
	}

	observed := observedBarSeconds(candles)
	declared := declaredBarSeconds(in.Timeframe)
	timeframeOK := declared <= 0 || observed <= 0 || math.Abs(observed-declared)/declared < 0.05

	if in.StrictTimeframe && !timeframeOK {
		return nil, apperr.New(apperr.CodeSchemaMismatch,
			fmt.Sprintf("observed bar seconds %.2f does not match declared timeframe %s (%.2fs)", observed, in.Timeframe, declared))
	}

	cal := LookupCalendar(in.CalendarID)
	classifyGaps(candles, observed, cal, &counters)

	dataHash, err := computeDataHash(candles)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "failed to compute data_hash")
	}

	meta := Metadata{
		Symbol:             in.Symbol,
		Timeframe:          in.Timeframe,
		DataHash:           dataHash,
		CalendarID:         cal.ID(),
		AnomalyCounters:    counters,
		ObservedBarSeconds: observed,
		DeclaredBarSeconds: declared,
		TimeframeOK:        timeframeOK,
		RowCount:           len(candles),
	}
	if len(candles) > 0 {
		meta.FirstTS = candles[0].TS
		meta.LastTS = candles[len(candles)-1].TS
	}

	log.Info().Str("symbol", in.Symbol).Str("timeframe", in.Timeframe).
		Int("rows", len(candles)).Str("data_hash", dataHash).
		Int64("rows_dropped_missing", counters.RowsDroppedMissing).
		Int64("duplicates_dropped", counters.DuplicatesDropped).
		Int64("future_rows_dropped", counters.FutureRowsDropped).
		Msg("dataset ingested")

	return &Dataset{Meta: meta, Candles: candles}, nil
}

func parseAndNormalize(r io.Reader, loc *time.Location, now time.Time) ([]rawRow, AnomalyCounters, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, AnomalyCounters{}, apperr.Wrap(apperr.CodeSchemaMismatch, err, "empty or unreadable CSV")
	}
	colIdx, err := resolveColumns(header)
	if err != nil {
		return nil, AnomalyCounters{}, err
	}

	var counters AnomalyCounters
	var rows []rawRow

	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			counters.RowsDroppedMissing++
			continue
		}

		row, ok := parseRow(rec, colIdx, loc)
		if !ok {
			counters.RowsDroppedMissing++
			continue
		}
		rows = append(rows, row)
	}

	// Step 3: sort ascending, dedupe keeping first occurrence.
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].ts.Before(rows[j].ts) })
	rows, counters = dedupe(rows, counters)

	// Step 4: drop future rows.
	rows, counters = dropFuture(rows, now, counters)

	return rows, counters, nil
}

func resolveColumns(header []string) (map[string]int, error) {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[h] = i
	}
	for _, col := range csvColumns {
		if _, ok := idx[col]; !ok {
			return nil, apperr.New(apperr.CodeSchemaMismatch, fmt.Sprintf("missing required column %q", col))
		}
	}
	return idx, nil
}

func parseRow(rec []string, idx map[string]int, loc *time.Location) (rawRow, bool) {
	get := func(col string) (string, bool) {
		i, ok := idx[col]
		if !ok || i >= len(rec) {
			return "", false
		}
		return rec[i], true
	}

	tsStr, ok := get("timestamp")
	if !ok || tsStr == "" {
		return rawRow{}, false
	}
	ts, err := parseTimestamp(tsStr, loc)
	if err != nil {
		return rawRow{}, false
	}

	vals := make([]float64, 5)
	fields := []string{"open", "high", "low", "close", "volume"}
	for i, col := range fields {
		sv, ok := get(col)
		if !ok || sv == "" {
			return rawRow{}, false
		}
		f, err := strconv.ParseFloat(sv, 64)
		if err != nil {
			return rawRow{}, false
		}
		vals[i] = f
	}

	return rawRow{
		ts: ts,
		o:  vals[0], h: vals[1], l: vals[2], c: vals[3],
		v:  int64(vals[4]),
		ok: true,
	}, true
}

// parseTimestamp accepts RFC3339 or an integer unix-seconds/millis literal,
// interpreting naive timestamps in loc.
func parseTimestamp(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n > 10_000_000_000 { // milliseconds
			return time.UnixMilli(n).In(loc), nil
		}
		return time.Unix(n, 0).In(loc), nil
	}
	layouts := []string{"2006-01-02 15:04:05", "2006-01-02T15:04:05", "2006-01-02"}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}

func dedupe(rows []rawRow, counters AnomalyCounters) ([]rawRow, AnomalyCounters) {
	out := rows[:0:0]
	var lastTS int64 = math.MinInt64
	for _, r := range rows {
		ts := r.ts.UnixMilli()
		if len(out) > 0 && ts == lastTS {
			counters.DuplicatesDropped++
			if len(counters.DuplicateSamples) < 5 {
				counters.DuplicateSamples = append(counters.DuplicateSamples, ts)
			}
			continue
		}
		out = append(out, r)
		lastTS = ts
	}
	return out, counters
}

func dropFuture(rows []rawRow, now time.Time, counters AnomalyCounters) ([]rawRow, AnomalyCounters) {
	out := rows[:0:0]
	nowMS := now.UnixMilli()
	for _, r := range rows {
		if r.ts.UnixMilli() > nowMS {
			counters.FutureRowsDropped++
			continue
		}
		out = append(out, r)
	}
	return out, counters
}

func observedBarSeconds(candles []Candle) float64 {
	if len(candles) < 2 {
		return 0
	}
	deltas := make([]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		deltas = append(deltas, float64(candles[i].TS-candles[i-1].TS)/1000.0)
	}
	return median(deltas)
}

func median(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func declaredBarSeconds(timeframe string) float64 {
	switch timeframe {
	case "1m":
		return 60
	case "5m":
		return 300
	case "15m":
		return 900
	case "1h":
		return 3600
	case "4h":
		return 14400
	case "1d":
		return 86400
	default:
		return 0
	}
}

func classifyGaps(candles []Candle, barSeconds float64, cal Calendar, counters *AnomalyCounters) {
	if barSeconds <= 0 {
		return
	}
	tolerance := barSeconds * 1.5
	for i := 1; i < len(candles); i++ {
		deltaSeconds := float64(candles[i].TS-candles[i-1].TS) / 1000.0
		if deltaSeconds <= tolerance {
			continue
		}
		if cal.IsExpectedClosure(candles[i-1].TS, candles[i].TS, barSeconds) {
			counters.ExpectedClosures++
		} else {
			counters.UnexpectedGaps++
		}
	}
}

// computeDataHash canonicalizes the [ts,o,h,l,c,v,zero_volume] columns and
// digests them (spec §4.2 step 8, §3 DatasetMetadata.data_hash).
func computeDataHash(candles []Candle) (string, error) {
	rows := make([]any, len(candles))
	for i, c := range candles {
		rows[i] = map[string]any{
			"ts":          c.TS,
			"o":           c.Open,
			"h":           c.High,
			"l":           c.Low,
			"c":           c.Close,
			"v":           c.Volume,
			"zero_volume": c.ZeroVolume,
		}
	}
	return canon.Digest(rows)
}
