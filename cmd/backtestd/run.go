package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/alphaforge/engine/internal/config"
	"github.com/alphaforge/engine/internal/dataset"
	"github.com/alphaforge/engine/internal/indicators"
	"github.com/alphaforge/engine/internal/orchestrator"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute a single backtest run to completion",
	Long: `Loads a run configuration JSON file and a candle dataset, executes the
full orchestrator phase sequence in-process, and prints the resulting
run_hash, status, and artifact directory once the run reaches a terminal
state. Exits non-zero if the run fails.`,
	RunE: runBacktest,
}

func init() {
	runCmd.Flags().String("run-config", "", "Path to a run configuration JSON file (required)")
	runCmd.Flags().String("dataset", "", "Path to the candle dataset CSV (required)")
	runCmd.Flags().Duration("timeout", 10*time.Minute, "Maximum wall-clock time to wait for completion")
	runCmd.MarkFlagRequired("run-config")
	runCmd.MarkFlagRequired("dataset")
}

func runBacktest(cmd *cobra.Command, args []string) error {
	runConfigPath, _ := cmd.Flags().GetString("run-config")
	datasetPath, _ := cmd.Flags().GetString("dataset")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	cfg, err := config.Load(configPath(cmd))
	if err != nil {
		return err
	}

	raw, err := os.ReadFile(runConfigPath)
	if err != nil {
		return fmt.Errorf("failed to read run config: %w", err)
	}
	var runCfg orchestrator.RunConfig
	if err := json.Unmarshal(raw, &runCfg); err != nil {
		return fmt.Errorf("failed to parse run config: %w", err)
	}
	runCfg.StrictTimeframe = runCfg.StrictTimeframe || cfg.Server.TimeframeStrict

	registry := indicators.NewRegistry()
	cache := indicators.NewFeatureCache(nil)
	engine := indicators.NewEngine(registry, cache)

	artifactsDir, err := filepath.Abs(cfg.Server.ArtifactsDir)
	if err != nil {
		return fmt.Errorf("failed to resolve artifacts directory: %w", err)
	}
	orch := orchestrator.New(dataset.NewCache(), engine, artifactsDir)

	log.Info().Str("symbol", runCfg.Symbol).Str("timeframe", runCfg.Timeframe).
		Str("strategy", runCfg.StrategyName).Msg("submitting run")

	run, err := orch.Submit(context.Background(), runCfg, datasetPath)
	if err != nil {
		return fmt.Errorf("submit failed: %w", err)
	}

	select {
	case <-run.Done():
	case <-time.After(timeout):
		orch.Cancel(run.RunHash)
		return fmt.Errorf("run %s did not reach a terminal state within %v", run.RunHash, timeout)
	}

	status := string(run.State())
	fmt.Printf("run_hash: %s\n", run.RunHash)
	fmt.Printf("status: %s\n", status)

	if run.State() == orchestrator.StateFailed {
		appErr := run.Error()
		fmt.Printf("error: %s\n", appErr.Error())
		return fmt.Errorf("run failed: %s", appErr.Code)
	}

	fmt.Printf("artifacts: %s\n", filepath.Join(artifactsDir, run.RunHash))
	return nil
}
