package orchestrator

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alphaforge/engine/internal/dataset"
	"github.com/alphaforge/engine/internal/execution"
	"github.com/alphaforge/engine/internal/indicators"
)

func testCSV(t *testing.T) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "candles-*.csv")
	require.NoError(t, err)
	_, err = f.WriteString(
		"ts,open,high,low,close,volume\n" +
			"1700000000000,10,11,9,10.5,100\n" +
			"1700000060000,10.5,11.5,10,11,110\n" +
			"1700000120000,11,12,10.5,11.5,120\n" +
			"1700000180000,11.5,12.5,11,12,130\n" +
			"1700000240000,12,13,11.5,12.5,140\n" +
			"1700000300000,12.5,13.5,12,13,150\n",
	)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	return f.Name()
}

func baseConfig() RunConfig {
	return RunConfig{
		Symbol:     "BTC-USD",
		Timeframe:  "1m",
		SourceTZ:   "UTC",
		CalendarID: "crypto-24x7",
		Indicators: []indicators.Spec{
			{Name: "sma", Params: map[string]any{"period": float64(2)}},
			{Name: "sma", Params: map[string]any{"period": float64(3)}},
		},
		StrategyName: "dual_sma",
		StrategyParams: map[string]any{
			"fast": float64(2),
			"slow": float64(3),
		},
		RiskModel:  "fixed_fraction",
		RiskParams: map[string]any{"f": 0.5},
		Execution: execution.Config{
			FillPrice:     "open_next",
			SlippageModel: "none",
			FeeBps:        5,
			InitialEquity: 10000,
			BarSeconds:    60,
		},
		Validation: ValidationConfig{
			SeedRoot:            42,
			PermutationTrials:   8,
			BootstrapTrials:     8,
			CILevel:             0.95,
			WalkForwardSegments: 0,
			StrictMode:          false,
			CIWidthThreshold:    1,
		},
	}
}

func newTestOrchestrator(t *testing.T) *Orchestrator {
	t.Helper()
	registry := indicators.NewRegistry()
	cache := indicators.NewFeatureCache(nil)
	engine := indicators.NewEngine(registry, cache)
	o := New(dataset.NewCache(), engine, t.TempDir())
	o.Now = func() time.Time { return time.Unix(1700000400, 0).UTC() }
	return o
}

func TestOrchestrator_SubmitRunsToCompletion(t *testing.T) {
	o := newTestOrchestrator(t)
	run, err := o.Submit(context.Background(), baseConfig(), testCSV(t))
	require.NoError(t, err)

	select {
	case <-run.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("run did not complete in time")
	}

	assert.Equal(t, StateCompleted, run.State())
	assert.Nil(t, run.Error())
}

func TestOrchestrator_IdempotentSubmissionReusesRun(t *testing.T) {
	o := newTestOrchestrator(t)
	path := testCSV(t)
	cfg := baseConfig()

	run1, err := o.Submit(context.Background(), cfg, path)
	require.NoError(t, err)
	<-run1.Done()

	run2, err := o.Submit(context.Background(), cfg, path)
	require.NoError(t, err)
	assert.Same(t, run1, run2)
}

func TestOrchestrator_UnknownStrategyFailsWithInvalidParam(t *testing.T) {
	o := newTestOrchestrator(t)
	cfg := baseConfig()
	cfg.StrategyName = "does_not_exist"

	run, err := o.Submit(context.Background(), cfg, testCSV(t))
	require.NoError(t, err)
	<-run.Done()

	assert.Equal(t, StateFailed, run.State())
	require.NotNil(t, run.Error())
	assert.Equal(t, "strategy", run.Error().Phase)
}

func TestOrchestrator_CancelBeforeExecutionStopsRun(t *testing.T) {
	o := newTestOrchestrator(t)
	cfg := baseConfig()

	run, err := o.Submit(context.Background(), cfg, testCSV(t))
	require.NoError(t, err)
	run.RequestCancel()

	select {
	case <-run.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("run did not reach terminal state in time")
	}

	assert.Contains(t, []State{StateCancelled, StateCompleted}, run.State())
}
