package retention

import (
	"fmt"
	"os"
	"path/filepath"
)

// bulkArtifacts are the files evicted on demotion to manifest_only; manifest,
// metrics, validation, and summary JSON are always retained (spec §4.11:
// "retain manifest, metrics summary, SQLite rows, content hashes; evict bulk
// artifacts").
var bulkArtifacts = []string{"equity.parquet", "drawdown.parquet", "trades.parquet"}

// Demoter evicts the bulk artifacts for one run, leaving its manifest and
// summary metadata in place.
type Demoter interface {
	Demote(runHash string) error
}

// ArtifactsDemoter removes the bulk artifact files from a run's
// content-addressed directory under baseDir.
type ArtifactsDemoter struct {
	BaseDir string
}

// Demote deletes the run's bulk artifact files, if present. Missing files
// are not an error (a prior partial demotion, or a run that never produced
// them, should still succeed).
func (d ArtifactsDemoter) Demote(runHash string) error {
	dir := filepath.Join(d.BaseDir, runHash)
	for _, name := range bulkArtifacts {
		path := filepath.Join(dir, name)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to evict %s for run %s: %w", name, runHash, err)
		}
	}
	return nil
}

// ApplyResult reports the outcome of executing a Plan.
type ApplyResult struct {
	Demoted []string // run hashes successfully demoted
	Errors  []string
}

// Apply executes plan.ToDemote against demoter, continuing past individual
// failures so one bad run doesn't block eviction of the rest; every failure
// is collected into Errors.
func Apply(plan Plan, demoter Demoter) ApplyResult {
	var result ApplyResult
	for _, runHash := range plan.ToDemote {
		if err := demoter.Demote(runHash); err != nil {
			result.Errors = append(result.Errors, err.Error())
			continue
		}
		result.Demoted = append(result.Demoted, runHash)
	}
	return result
}
