package dataset

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCSV(t *testing.T, dir string, rows []string) string {
	t.Helper()
	path := filepath.Join(dir, "data.csv")
	content := "timestamp,open,high,low,close,volume\n"
	for _, r := range rows {
		content += r + "\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func baseInput(path string) IngestInput {
	return IngestInput{
		Path:       path,
		Symbol:     "TEST",
		Timeframe:  "1m",
		SourceTZ:   "UTC",
		CalendarID: "247",
		Now:        time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
	}
}

func TestIngest_BasicNormalization(t *testing.T) {
	dir := t.TempDir()
	path := writeCSV(t, dir, []string{
		"2024-01-01T00:00:00Z,100,101,99,100.5,1000",
		"2024-01-01T00:01:00Z,100.5,102,100,101,1500",
		"2024-01-01T00:02:00Z,101,101.5,100.5,101.2,0",
	})

	ds, err := Ingest(baseInput(path))
	require.NoError(t, err)
	require.Len(t, ds.Candles, 3)
	assert.True(t, ds.Candles[2].ZeroVolume)
	assert.EqualValues(t, 1, ds.Meta.AnomalyCounters.ZeroVolumeRows)
	assert.NotEmpty(t, ds.Meta.DataHash)
}

func TestIngest_DuplicateTimestampKeepsFirst(t *testing.T) {
	dir := t.TempDir()
	path := writeCSV(t, dir, []string{
		"2024-01-01T00:00:00Z,100,101,99,100.5,1000",
		"2024-01-01T00:00:00Z,999,999,999,999,999", // duplicate ts, should be dropped
		"2024-01-01T00:01:00Z,100.5,102,100,101,1500",
	})

	ds, err := Ingest(baseInput(path))
	require.NoError(t, err)
	require.Len(t, ds.Candles, 2)
	assert.Equal(t, 100.5, ds.Candles[0].Close)
	assert.EqualValues(t, 1, ds.Meta.AnomalyCounters.DuplicatesDropped)
}

func TestIngest_DropsFutureRows(t *testing.T) {
	dir := t.TempDir()
	path := writeCSV(t, dir, []string{
		"2024-01-01T00:00:00Z,100,101,99,100.5,1000",
		"2025-06-01T00:00:00Z,100,101,99,100.5,1000", // after Now in baseInput
	})

	ds, err := Ingest(baseInput(path))
	require.NoError(t, err)
	require.Len(t, ds.Candles, 1)
	assert.EqualValues(t, 1, ds.Meta.AnomalyCounters.FutureRowsDropped)
}

func TestIngest_DropsUnparseableRows(t *testing.T) {
	dir := t.TempDir()
	path := writeCSV(t, dir, []string{
		"2024-01-01T00:00:00Z,100,101,99,100.5,1000",
		"not-a-timestamp,100,101,99,100.5,1000",
		",100,101,99,100.5,1000",
	})

	ds, err := Ingest(baseInput(path))
	require.NoError(t, err)
	require.Len(t, ds.Candles, 1)
	assert.EqualValues(t, 2, ds.Meta.AnomalyCounters.RowsDroppedMissing)
}

func TestIngest_MissingSourceFile(t *testing.T) {
	_, err := Ingest(baseInput("/no/such/file.csv"))
	require.Error(t, err)
}

func TestIngest_SchemaMismatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.csv")
	require.NoError(t, os.WriteFile(path, []byte("foo,bar\n1,2\n"), 0o644))

	_, err := Ingest(baseInput(path))
	require.Error(t, err)
}

func TestIngest_DataHashIndependentOfDuplicateCount(t *testing.T) {
	dir := t.TempDir()
	p1 := writeCSV(t, dir, []string{
		"2024-01-01T00:00:00Z,100,101,99,100.5,1000",
		"2024-01-01T00:01:00Z,100.5,102,100,101,1500",
	})
	ds1, err := Ingest(baseInput(p1))
	require.NoError(t, err)

	p2 := writeCSV(t, dir, []string{
		"2024-01-01T00:00:00Z,100,101,99,100.5,1000",
		"2024-01-01T00:00:00Z,1,1,1,1,1",
		"2024-01-01T00:01:00Z,100.5,102,100,101,1500",
	})
	ds2, err := Ingest(baseInput(p2))
	require.NoError(t, err)
	assert.Equal(t, ds1.Meta.DataHash, ds2.Meta.DataHash)
}

func TestIngest_StrictTimeframeMismatchFails(t *testing.T) {
	dir := t.TempDir()
	path := writeCSV(t, dir, []string{
		"2024-01-01T00:00:00Z,100,101,99,100.5,1000",
		"2024-01-01T01:00:00Z,100.5,102,100,101,1500", // 1h gap, declared 1m
	})

	in := baseInput(path)
	in.StrictTimeframe = true
	_, err := Ingest(in)
	require.Error(t, err)
}

func TestDataset_Slice(t *testing.T) {
	ds := &Dataset{Candles: []Candle{
		{TS: 100}, {TS: 200}, {TS: 300}, {TS: 400},
	}}
	sliced := ds.Slice(200, 400)
	require.Len(t, sliced, 2)
	assert.Equal(t, int64(200), sliced[0].TS)
	assert.Equal(t, int64(300), sliced[1].TS)
}

func TestCache_SingleFlight(t *testing.T) {
	c := NewCache()
	calls := 0
	load := func() (*Dataset, error) {
		calls++
		return &Dataset{Meta: Metadata{Symbol: "X"}}, nil
	}

	key := Key{Symbol: "X", Timeframe: "1m"}
	ds1, err := c.GetOrLoad(key, load)
	require.NoError(t, err)
	ds2, err := c.GetOrLoad(key, load)
	require.NoError(t, err)

	assert.Same(t, ds1, ds2)
	assert.Equal(t, 1, calls)
}
