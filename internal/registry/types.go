// Package registry implements the durable run registry (spec §4.12, C12):
// one row per run, indexed by run_hash, carrying the canonical config blob,
// the manifest blob and its hash, retention state, the primary metric, and
// structured failure detail when present.
package registry

import "time"

// RunRow is the persisted record for one run (spec §4.12 "Persists per-run:
// run_hash, config canonical blob, manifest blob + hash, retention_state,
// primary_metric_value, timestamps, error (if any)").
type RunRow struct {
	RunHash            string    `db:"run_hash" json:"run_hash"`
	StrategyID         string    `db:"strategy_id" json:"strategy_id"`
	ConfigJSON         []byte    `db:"config_json" json:"config_json"`
	ManifestJSON       []byte    `db:"manifest_json" json:"manifest_json,omitempty"`
	ManifestHash       *string   `db:"manifest_hash" json:"manifest_hash,omitempty"`
	RetentionState     string    `db:"retention_state" json:"retention_state"`
	PrimaryMetricValue *float64  `db:"primary_metric_value" json:"primary_metric_value,omitempty"`
	Status             string    `db:"status" json:"status"` // running | completed | failed | cancelled
	ErrorCode          *string   `db:"error_code" json:"error_code,omitempty"`
	ErrorMessage       *string   `db:"error_message" json:"error_message,omitempty"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time `db:"updated_at" json:"updated_at"`
}
