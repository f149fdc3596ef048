package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/alphaforge/engine/internal/apperr"
	"github.com/alphaforge/engine/internal/artifacts"
	"github.com/alphaforge/engine/internal/canon"
	"github.com/alphaforge/engine/internal/dataset"
	"github.com/alphaforge/engine/internal/execution"
	"github.com/alphaforge/engine/internal/indicators"
	"github.com/alphaforge/engine/internal/metricscalc"
	"github.com/alphaforge/engine/internal/strategy"
	"github.com/alphaforge/engine/internal/validation"
)

// Orchestrator owns the registry of in-flight and terminal runs, single-
// flighting identical submissions by run_hash (spec §4.10, §5).
type Orchestrator struct {
	mu   sync.Mutex
	runs map[string]*Run

	datasetCache    *dataset.Cache
	indicatorEngine *indicators.Engine
	artifactsDir    string

	// ChainPrevLookup resolves the manifest_hash to chain this run's
	// manifest onto; defaults to genesis (nil) until wired to a registry.
	ChainPrevLookup func() (*string, error)

	// Now is the injected clock, overridable in tests for determinism.
	Now func() time.Time
}

// New creates an Orchestrator. artifactsDir is the root directory under
// which each run's content-addressed artifact bundle is written.
func New(datasetCache *dataset.Cache, engine *indicators.Engine, artifactsDir string) *Orchestrator {
	return &Orchestrator{
		runs:            make(map[string]*Run),
		datasetCache:    datasetCache,
		indicatorEngine: engine,
		artifactsDir:    artifactsDir,
		ChainPrevLookup: func() (*string, error) { return nil, nil },
		Now:             func() time.Time { return time.Now().UTC() },
	}
}

// Submit resolves the dataset, computes run_hash, and either attaches to an
// existing run or starts a new one (spec §4.10 Idempotency).
func (o *Orchestrator) Submit(ctx context.Context, cfg RunConfig, datasetPath string) (*Run, error) {
	key := dataset.Key{Symbol: cfg.Symbol, Timeframe: cfg.Timeframe}
	ds, err := o.datasetCache.GetOrLoad(key, func() (*dataset.Dataset, error) {
		return dataset.Ingest(cfg.IngestInput(datasetPath, o.Now()))
	})
	if err != nil {
		return nil, err
	}

	runHash, err := canon.Digest(hashable{Config: cfg, DataHash: ds.Meta.DataHash})
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "failed to compute run_hash")
	}

	o.mu.Lock()
	if existing, ok := o.runs[runHash]; ok {
		o.mu.Unlock()
		if isTerminal(existing.State()) {
			existing.mu.Lock()
			existing.reused = true
			existing.mu.Unlock()
		}
		return existing, nil
	}
	run := newRun(runHash, cfg)
	o.runs[runHash] = run
	o.mu.Unlock()

	go o.execute(run, ds)
	return run, nil
}

// Lookup returns an existing run by hash, if any.
func (o *Orchestrator) Lookup(runHash string) (*Run, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	r, ok := o.runs[runHash]
	return r, ok
}

// List returns every run this orchestrator process has observed, in no
// particular order; callers needing newest-first ordering (spec §6 GET
// /runs) should sort by the run's own CreatedAt, which this in-memory view
// does not track — that ordering is authoritative in the registry (C12).
func (o *Orchestrator) List() []*Run {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]*Run, 0, len(o.runs))
	for _, r := range o.runs {
		out = append(out, r)
	}
	return out
}

// Cancel requests cooperative cancellation of an in-flight run. A no-op on
// unknown or already-terminal runs (spec §4.10).
func (o *Orchestrator) Cancel(runHash string) {
	o.mu.Lock()
	run, ok := o.runs[runHash]
	o.mu.Unlock()
	if !ok {
		return
	}
	run.RequestCancel()
}

func (o *Orchestrator) execute(run *Run, ds *dataset.Dataset) {
	correlationID := uuid.New().String()
	defer func() {
		if r := recover(); r != nil {
			o.fail(run, apperr.New(apperr.CodeInternal, fmt.Sprintf("panic: %v", r)).
				WithPhase(string(run.atPhase)).
				WithCorrelationID(correlationID))
		}
	}()

	candles := ds.Candles

	var shifted indicators.Shifted
	var signals []strategy.Signal
	var targets []strategy.TargetPosition
	var execResult execution.Result
	var metricsSummary metricscalc.Summary
	var permResult validation.PermutationResult
	var bootResult validation.BootstrapResult
	var wfResult validation.WalkForwardResult

	for _, phase := range phaseOrder {
		if o.checkCancelled(run) {
			return
		}
		run.transition(phase)
		run.Buffer.Append(string(phase), nil)

		var err error
		switch phase {
		case StateDataLoading:
			// dataset already resolved by Submit; nothing further to do.
		case StateFeatureCompute:
			shifted, err = o.indicatorEngine.Compute(context.Background(), candles, ds.Meta.DataHash, run.Config.Indicators)
		case StateStrategy:
			signals, err = runStrategy(run.Config, candles, shifted)
		case StateRiskSizing:
			targets, err = runRisk(run.Config, candles, signals)
		case StateExecution:
			execResult, err = execution.Simulate(candles, targets, run.Config.Execution)
		case StateMetrics:
			metricsSummary = metricscalc.Compute(execResult.Equity, execResult.Trades, barsPerYear(run.Config.Timeframe))
		case StateValidation:
			permResult, bootResult, wfResult, err = runValidation(context.Background(), run.Config, signals, execResult, metricsSummary)
		case StateArtifacts:
			err = o.writeArtifacts(run, metricsSummary, execResult, permResult, bootResult, wfResult)
		}

		if err != nil {
			o.fail(run, asAppErr(err, phase))
			return
		}
	}

	run.Buffer.Append(string(StateCompleted), nil)
	run.finishTerminal(StateCompleted)
}

func (o *Orchestrator) checkCancelled(run *Run) bool {
	if !run.cancelRequested.Load() {
		return false
	}
	run.mu.Lock()
	run.atPhase = run.state
	run.mu.Unlock()
	run.Buffer.Append(string(StateCancelled), map[string]any{"at_phase": run.atPhase})
	run.finishTerminal(StateCancelled)
	return true
}

func (o *Orchestrator) fail(run *Run, e *apperr.Error) {
	log.Error().Str("run_hash", run.RunHash).Str("code", string(e.Code)).Str("phase", e.Phase).Msg("run failed")
	run.mu.Lock()
	run.failErr = e
	run.mu.Unlock()
	run.Buffer.Append(string(StateFailed), map[string]any{"code": e.Code, "phase": e.Phase, "message": e.Message})
	run.finishTerminal(StateFailed)

	// Partial artifacts are deleted atomically (spec §4.10).
	dir := filepath.Join(o.artifactsDir, run.RunHash)
	if _, statErr := os.Stat(dir); statErr == nil {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			log.Error().Err(rmErr).Str("run_hash", run.RunHash).Msg("failed to clean up partial artifacts")
		}
	}
}

func asAppErr(err error, phase State) *apperr.Error {
	if e, ok := apperr.As(err); ok {
		return e.WithPhase(string(phase))
	}
	return apperr.Wrap(apperr.CodeInternal, err, err.Error()).WithPhase(string(phase))
}

func runStrategy(cfg RunConfig, candles []dataset.Candle, shifted indicators.Shifted) ([]strategy.Signal, error) {
	strat, ok := strategy.StrategyRegistry()[cfg.StrategyName]
	if !ok {
		return nil, apperr.New(apperr.CodeInvalidParam, fmt.Sprintf("unknown strategy %q", cfg.StrategyName))
	}
	return strat.Generate(candles, shifted, cfg.StrategyParams)
}

func runRisk(cfg RunConfig, candles []dataset.Candle, signals []strategy.Signal) ([]strategy.TargetPosition, error) {
	risk, ok := strategy.RiskRegistry()[cfg.RiskModel]
	if !ok {
		return nil, apperr.New(apperr.CodeInvalidParam, fmt.Sprintf("unknown risk model %q", cfg.RiskModel))
	}
	return risk.Size(candles, signals, cfg.RiskParams)
}

func runValidation(ctx context.Context, cfg RunConfig, signals []strategy.Signal, execResult execution.Result, summary metricscalc.Summary) (validation.PermutationResult, validation.BootstrapResult, validation.WalkForwardResult, error) {
	vc := cfg.Validation

	actual := 0.0
	if summary.Sharpe != nil {
		actual = *summary.Sharpe
	}
	perm, err := validation.PermutationTest(ctx, signals, actual, len(execResult.Trades), vc.PermutationTrials, vc.SeedRoot,
		func(shuffled []strategy.Signal) (float64, error) {
			return permutationMetric(shuffled, execResult), nil
		})
	if err != nil {
		return validation.PermutationResult{}, validation.BootstrapResult{}, validation.WalkForwardResult{}, err
	}

	returns := barReturnsFromEquity(execResult.Equity)
	boot, err := validation.BlockBootstrap(ctx, returns, vc.BootstrapTrials, vc.CILevel, vc.SeedRoot, validation.Mean)
	if err != nil {
		return perm, validation.BootstrapResult{}, validation.WalkForwardResult{}, err
	}
	if err := validation.CheckWidthGate(boot, vc.StrictMode, vc.CIWidthThreshold); err != nil {
		return perm, boot, validation.WalkForwardResult{}, err
	}

	var wf validation.WalkForwardResult
	if vc.WalkForwardSegments >= 2 {
		wf, err = validation.WalkForward(len(execResult.Equity), vc.WalkForwardSegments, func(historyEnd, start, end int) (float64, error) {
			if start >= len(execResult.Equity) || end > len(execResult.Equity) || start >= end {
				return 0, apperr.New(apperr.CodeStatsInsufficient, "walk-forward segment out of range")
			}
			seg := execResult.Equity[start:end]
			if len(seg) < 2 || seg[0].Equity == 0 {
				return 0, nil
			}
			return (seg[len(seg)-1].Equity - seg[0].Equity) / seg[0].Equity, nil
		})
		if err != nil {
			return perm, boot, validation.WalkForwardResult{}, err
		}
	}

	return perm, boot, wf, nil
}

// permutationMetric scores shuffled signal directions against the unchanged
// price path without re-running strategy, risk or execution: it returns the
// mean of the realized equity-curve bar returns, each multiplied by the
// shuffled direction at the same index, over the shorter of the two series.
func permutationMetric(shuffled []strategy.Signal, execResult execution.Result) float64 {
	returns := barReturnsFromEquity(execResult.Equity)
	if len(returns) == 0 || len(shuffled) == 0 {
		return 0
	}
	n := len(returns)
	if len(shuffled) < n {
		n = len(shuffled)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += returns[i] * float64(shuffled[i].Direction)
	}
	return sum / float64(n)
}

func barReturnsFromEquity(equity []execution.EquityPoint) []float64 {
	if len(equity) < 2 {
		return nil
	}
	out := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		prev := equity[i-1].Equity
		if prev == 0 {
			continue
		}
		out = append(out, (equity[i].Equity-prev)/prev)
	}
	return out
}

func (o *Orchestrator) writeArtifacts(run *Run, summary metricscalc.Summary, execResult execution.Result, perm validation.PermutationResult, boot validation.BootstrapResult, wf validation.WalkForwardResult) error {
	w, err := artifacts.NewWriter(o.artifactsDir, run.RunHash)
	if err != nil {
		return err
	}
	if err := w.WriteMetrics(summary); err != nil {
		return err
	}
	if err := w.WriteEquity(execResult.Equity); err != nil {
		return err
	}
	if err := w.WriteDrawdown(execResult.Equity); err != nil {
		return err
	}
	if err := w.WriteTrades(execResult.Trades); err != nil {
		return err
	}
	if err := w.WriteValidation(map[string]any{"permutation": perm, "bootstrap": boot, "walk_forward": wf}); err != nil {
		return err
	}
	if err := w.WriteSummary(map[string]any{"run_hash": run.RunHash, "status": "completed"}); err != nil {
		return err
	}

	chainPrev, err := o.ChainPrevLookup()
	if err != nil {
		return apperr.Wrap(apperr.CodeInternal, err, "failed to resolve manifest chain_prev")
	}
	_, err = w.Finalize(chainPrev)
	return err
}

// barsPerYear approximates the annualization factor from a timeframe
// string, used by metricscalc.Compute.
func barsPerYear(timeframe string) float64 {
	switch timeframe {
	case "1m":
		return 525600
	case "5m":
		return 105120
	case "15m":
		return 35040
	case "1h":
		return 8760
	case "4h":
		return 2190
	case "1d":
		return 252
	default:
		return 252
	}
}
