// Package httpapi implements the framework-level binding of the wire API
// (spec §6) over internal/orchestrator, internal/retention, and
// internal/artifacts, grounded on the teacher's internal/interfaces/http
// package.
package httpapi

import (
	"time"

	"github.com/alphaforge/engine/internal/apperr"
	"github.com/alphaforge/engine/internal/artifacts"
	"github.com/alphaforge/engine/internal/orchestrator"
)

// SubmitRunResponse is the body of a successful POST /runs (spec §6:
// "returns {run_hash, status, reused?}").
type SubmitRunResponse struct {
	RunHash string `json:"run_hash"`
	Status  string `json:"status"`
	Reused  bool   `json:"reused,omitempty"`
}

// RunSummary is one entry in GET /runs.
type RunSummary struct {
	RunHash   string    `json:"run_hash"`
	Status    string    `json:"status"`
	Symbol    string    `json:"symbol"`
	Timeframe string    `json:"timeframe"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// ListRunsResponse is the body of GET /runs.
type ListRunsResponse struct {
	Runs []RunSummary `json:"runs"`
}

// RunDetailResponse is the body of GET /runs/{run_hash} (spec §6: "Includes
// manifest_hash, data_hash, calendar_id, validation_summary, optional
// anomaly_counters when include_anomalies=true").
type RunDetailResponse struct {
	RunHash           string                 `json:"run_hash"`
	Status            string                 `json:"status"`
	Config            orchestrator.RunConfig `json:"config"`
	ManifestHash      *string                `json:"manifest_hash,omitempty"`
	DataHash          string                 `json:"data_hash,omitempty"`
	CalendarID        string                 `json:"calendar_id,omitempty"`
	ValidationSummary map[string]any         `json:"validation_summary,omitempty"`
	AnomalyCounters   map[string]int         `json:"anomaly_counters,omitempty"`
	Error             *apperr.Error          `json:"error,omitempty"`
}

// CancelRunResponse is the body of POST /runs/{run_hash}/cancel.
type CancelRunResponse struct {
	RunHash string `json:"run_hash"`
	Status  string `json:"status"`
}

// EventsSnapshotResponse is the body of GET /runs/{run_hash}/events.
type EventsSnapshotResponse struct {
	RunHash string `json:"run_hash"`
	Events  []any  `json:"events"`
}

// ArtifactsResponse is the body of GET /runs/{run_hash}/artifacts.
type ArtifactsResponse = artifacts.Manifest

// HashesResponse is the body of GET /runs/{run_hash}/hashes (spec §6
// Attestation).
type HashesResponse struct {
	ManifestHash    *string `json:"manifest_hash,omitempty"`
	MetricsHash     *string `json:"metrics_hash,omitempty"`
	EquityCurveHash *string `json:"equity_curve_hash,omitempty"`
	ProvenanceHash  *string `json:"provenance_hash,omitempty"`
}

// ErrorDetail is the body of the {error:{...}} envelope (spec §6).
type ErrorDetail struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Details   string `json:"details,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

// ErrorResponse wraps ErrorDetail per spec §6's error envelope.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}
