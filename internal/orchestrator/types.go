// Package orchestrator implements the phase-sequential run state machine
// (spec §4.10, C10): idempotent submission keyed by run_hash, cooperative
// cancellation at phase boundaries, and structured failure handling with
// atomic partial-artifact cleanup.
package orchestrator

import (
	"time"

	"github.com/alphaforge/engine/internal/dataset"
	"github.com/alphaforge/engine/internal/execution"
	"github.com/alphaforge/engine/internal/indicators"
)

// State is a node in the orchestrator's phase-sequential state machine
// (spec §4.10).
type State string

const (
	StateInit            State = "init"
	StateDataLoading     State = "data_loading"
	StateFeatureCompute  State = "feature_compute"
	StateStrategy        State = "strategy"
	StateRiskSizing      State = "risk_sizing"
	StateExecution       State = "execution"
	StateMetrics         State = "metrics"
	StateValidation      State = "validation"
	StateArtifacts       State = "artifacts"
	StateCompleted       State = "completed"
	StateFailed          State = "failed"
	StateCancelled       State = "cancelled"
)

// phaseOrder is the fixed sequential path every run follows absent failure
// or cancellation.
var phaseOrder = []State{
	StateDataLoading,
	StateFeatureCompute,
	StateStrategy,
	StateRiskSizing,
	StateExecution,
	StateMetrics,
	StateValidation,
	StateArtifacts,
}

// ValidationConfig parameterizes C7 for one run.
type ValidationConfig struct {
	SeedRoot            int64
	PermutationTrials   int
	BootstrapTrials     int
	CILevel             float64
	WalkForwardSegments int
	StrictMode          bool
	CIWidthThreshold    float64
}

// RunConfig is the canonical, hashable submission for one backtest (spec
// §4.1, §4.10).
type RunConfig struct {
	Symbol          string              `json:"symbol"`
	Timeframe       string              `json:"timeframe"`
	StartMS         int64               `json:"start_ms"`
	EndMS           int64               `json:"end_ms"`
	SourceTZ        string              `json:"source_tz"`
	CalendarID      string              `json:"calendar_id"`
	StrictTimeframe bool                `json:"strict_timeframe"`
	Indicators      []indicators.Spec   `json:"indicators"`
	StrategyName    string              `json:"strategy_name"`
	StrategyParams  map[string]any      `json:"strategy_params"`
	RiskModel       string              `json:"risk_model"`
	RiskParams      map[string]any      `json:"risk_params"`
	Execution       execution.Config    `json:"execution"`
	Validation      ValidationConfig    `json:"validation"`
}

// IngestInput derives the dataset ingestion parameters this config implies.
func (c RunConfig) IngestInput(path string, now time.Time) dataset.IngestInput {
	return dataset.IngestInput{
		Path:            path,
		Symbol:          c.Symbol,
		Timeframe:       c.Timeframe,
		SourceTZ:        c.SourceTZ,
		CalendarID:      c.CalendarID,
		StrictTimeframe: c.StrictTimeframe,
		Now:             now,
	}
}

// hashable is the value actually digested into run_hash: the canonical
// config plus the resolved dataset's data_hash (spec §4.10 step 1).
type hashable struct {
	Config   RunConfig `json:"config"`
	DataHash string    `json:"data_hash"`
}
