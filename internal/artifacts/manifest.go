// Package artifacts implements the content-addressed artifact writer and
// integrity-chained manifest (spec §4.8, C8). Artifacts are emitted in a
// fixed order, each write appending a sha256-identified entry to the
// manifest; the manifest itself is written last and chains to the prior
// completed run's manifest_hash.
package artifacts

import (
	"time"

	"github.com/alphaforge/engine/internal/canon"
)

// Whitelist is the fixed set of artifact names the manifest listing API
// exposes (spec §4.8 "non-whitelisted artifacts may exist but are not
// listed"). Emission order matters: metrics before equity before drawdown
// before trades before validation before summary; manifest is always last.
var Whitelist = []string{
	"metrics.json",
	"equity.parquet",
	"drawdown.parquet",
	"trades.parquet",
	"validation.json",
	"summary.json",
	"manifest.json",
}

// FileEntry is one artifact's content-addressed record.
type FileEntry struct {
	Name   string `json:"name"`
	SHA256 string `json:"sha256"`
	Bytes  int64  `json:"bytes"`
}

// Manifest is the run's integrity-chained artifact index (spec §4.8).
type Manifest struct {
	RunHash      string      `json:"run_hash"`
	ChainPrev    *string     `json:"chain_prev"`
	Files        []FileEntry `json:"files"`
	CreatedAt    time.Time   `json:"created_at"`
	ManifestHash string      `json:"manifest_hash"`
}

// computeManifestHash digests the manifest with manifest_hash excluded, per
// spec §4.8: manifest_hash = digest(manifest_without_hash).
func computeManifestHash(m Manifest) (string, error) {
	m.ManifestHash = ""
	return canon.Digest(m)
}
