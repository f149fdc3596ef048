package artifacts

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/alphaforge/engine/internal/apperr"
	"github.com/alphaforge/engine/internal/execution"
)

// Writer emits a single run's artifact bundle into a content-addressed
// directory named by run_hash (spec §4.8 "Content-addressed layout").
type Writer struct {
	runHash string
	dir     string
	entries []FileEntry
}

// NewWriter creates the run directory (if absent) and returns a Writer
// ready to emit artifacts in the spec's fixed order.
func NewWriter(baseDir, runHash string) (*Writer, error) {
	dir := filepath.Join(baseDir, runHash)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperr.Wrap(apperr.CodePersistFailed, err, "failed to create run artifact directory")
	}
	return &Writer{runHash: runHash, dir: dir}, nil
}

// WriteMetrics emits metrics.json (first in emission order).
func (w *Writer) WriteMetrics(v any) error { return w.writeJSON("metrics.json", v) }

// WriteValidation emits validation.json.
func (w *Writer) WriteValidation(v any) error { return w.writeJSON("validation.json", v) }

// WriteSummary emits summary.json.
func (w *Writer) WriteSummary(v any) error { return w.writeJSON("summary.json", v) }

// writeJSON atomically writes v as pretty JSON via a temp-file-then-rename
// (grounded on teacher's manifest.IO.Save), then records a FileEntry with
// its sha256 digest and size.
func (w *Writer) writeJSON(name string, v any) error {
	finalPath := filepath.Join(w.dir, name)
	tempPath := finalPath + ".tmp"

	body, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return apperr.Wrap(apperr.CodePersistFailed, err, fmt.Sprintf("failed to marshal %s", name))
	}

	if err := os.WriteFile(tempPath, body, 0o644); err != nil {
		return apperr.Wrap(apperr.CodePersistFailed, err, fmt.Sprintf("failed to write %s", name))
	}
	if err := os.Rename(tempPath, finalPath); err != nil {
		os.Remove(tempPath)
		return apperr.Wrap(apperr.CodePersistFailed, err, fmt.Sprintf("failed to publish %s", name))
	}

	sum := sha256.Sum256(body)
	w.entries = append(w.entries, FileEntry{
		Name:   name,
		SHA256: hex.EncodeToString(sum[:]),
		Bytes:  int64(len(body)),
	})
	return nil
}

// equityParquetRow mirrors execution.EquityPoint for columnar storage.
type equityParquetRow struct {
	TS         int64   `parquet:"name=ts, type=INT64"`
	Equity     float64 `parquet:"name=equity, type=DOUBLE"`
	Position   float64 `parquet:"name=position, type=DOUBLE"`
	PeakEquity float64 `parquet:"name=peak_equity, type=DOUBLE"`
	Drawdown   float64 `parquet:"name=drawdown, type=DOUBLE"`
}

type tradeParquetRow struct {
	TS       int64   `parquet:"name=ts, type=INT64"`
	Side     string  `parquet:"name=side, type=BYTE_ARRAY, convertedtype=UTF8"`
	Qty      float64 `parquet:"name=qty, type=DOUBLE"`
	Price    float64 `parquet:"name=price, type=DOUBLE"`
	Fees     float64 `parquet:"name=fees, type=DOUBLE"`
	Slippage float64 `parquet:"name=slippage, type=DOUBLE"`
}

// WriteEquity emits equity.parquet.
func (w *Writer) WriteEquity(points []execution.EquityPoint) error {
	rows := make([]equityParquetRow, len(points))
	for i, p := range points {
		rows[i] = equityParquetRow{TS: p.TS, Equity: p.Equity, Position: p.Position, PeakEquity: p.PeakEquity, Drawdown: p.Drawdown}
	}
	return w.writeParquet("equity.parquet", new(equityParquetRow), rowSlice(rows))
}

// WriteDrawdown emits drawdown.parquet — the same bars as equity.parquet,
// projected down to the drawdown series so downstream tools can read it
// without decoding the full equity schema.
func (w *Writer) WriteDrawdown(points []execution.EquityPoint) error {
	type drawdownRow struct {
		TS       int64   `parquet:"name=ts, type=INT64"`
		Drawdown float64 `parquet:"name=drawdown, type=DOUBLE"`
	}
	rows := make([]drawdownRow, len(points))
	for i, p := range points {
		rows[i] = drawdownRow{TS: p.TS, Drawdown: p.Drawdown}
	}
	return w.writeParquet("drawdown.parquet", new(drawdownRow), rowSlice(rows))
}

// WriteTrades emits trades.parquet.
func (w *Writer) WriteTrades(trades []execution.Trade) error {
	rows := make([]tradeParquetRow, len(trades))
	for i, t := range trades {
		rows[i] = tradeParquetRow{TS: t.TS, Side: t.Side.String(), Qty: t.Qty, Price: t.Price, Fees: t.Fees, Slippage: t.Slippage}
	}
	return w.writeParquet("trades.parquet", new(tradeParquetRow), rowSlice(rows))
}

func rowSlice[T any](rows []T) []any {
	out := make([]any, len(rows))
	for i := range rows {
		out[i] = &rows[i]
	}
	return out
}

func (w *Writer) writeParquet(name string, schema any, rows []any) error {
	finalPath := filepath.Join(w.dir, name)
	tempPath := finalPath + ".tmp"

	fw, err := local.NewLocalFileWriter(tempPath)
	if err != nil {
		return apperr.Wrap(apperr.CodePersistFailed, err, fmt.Sprintf("failed to open %s for writing", name))
	}
	pw, err := writer.NewParquetWriter(fw, schema, 1)
	if err != nil {
		fw.Close()
		os.Remove(tempPath)
		return apperr.Wrap(apperr.CodePersistFailed, err, fmt.Sprintf("failed to create parquet writer for %s", name))
	}
	for _, row := range rows {
		if err := pw.Write(row); err != nil {
			pw.WriteStop()
			fw.Close()
			os.Remove(tempPath)
			return apperr.Wrap(apperr.CodePersistFailed, err, fmt.Sprintf("failed to write row to %s", name))
		}
	}
	if err := pw.WriteStop(); err != nil {
		fw.Close()
		os.Remove(tempPath)
		return apperr.Wrap(apperr.CodePersistFailed, err, fmt.Sprintf("failed to finalize %s", name))
	}
	if err := fw.Close(); err != nil {
		os.Remove(tempPath)
		return apperr.Wrap(apperr.CodePersistFailed, err, fmt.Sprintf("failed to close %s", name))
	}
	if err := os.Rename(tempPath, finalPath); err != nil {
		os.Remove(tempPath)
		return apperr.Wrap(apperr.CodePersistFailed, err, fmt.Sprintf("failed to publish %s", name))
	}

	body, err := os.ReadFile(finalPath)
	if err != nil {
		return apperr.Wrap(apperr.CodePersistFailed, err, fmt.Sprintf("failed to hash %s", name))
	}
	sum := sha256.Sum256(body)
	w.entries = append(w.entries, FileEntry{Name: name, SHA256: hex.EncodeToString(sum[:]), Bytes: int64(len(body))})
	return nil
}

// Finalize writes manifest.json last, chaining to chainPrev (the prior
// completed run's manifest_hash, nil for a genesis run).
func (w *Writer) Finalize(chainPrev *string) (Manifest, error) {
	m := Manifest{
		RunHash:   w.runHash,
		ChainPrev: chainPrev,
		Files:     w.entries,
		CreatedAt: time.Now().UTC(),
	}
	hash, err := computeManifestHash(m)
	if err != nil {
		return Manifest{}, apperr.Wrap(apperr.CodeInternal, err, "failed to compute manifest hash")
	}
	m.ManifestHash = hash

	if err := w.writeJSON("manifest.json", m); err != nil {
		return Manifest{}, err
	}
	return m, nil
}
