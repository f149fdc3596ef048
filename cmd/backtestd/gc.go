package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/alphaforge/engine/internal/config"
)

var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Apply the tiered retention policy, demoting overflow runs",
	Long: `Evaluates the newest-N-global / top-K-per-strategy retention policy
(spec §4.11) over every run in the registry and demotes whatever the plan
calls for, evicting bulk artifact files and recording one audit entry per
demoted run. Pinned runs are never touched.`,
	RunE: runGC,
}

func init() {
	gcCmd.Flags().String("actor", "cli", "Actor recorded in the audit log")
	gcCmd.Flags().String("reason", "scheduled gc", "Reason recorded in the audit log")
	gcCmd.Flags().Bool("dry-run", false, "Print how many tracked runs the policy would evaluate, without demoting anything (the plan itself is not printed)")
}

func runGC(cmd *cobra.Command, args []string) error {
	actor, _ := cmd.Flags().GetString("actor")
	reason, _ := cmd.Flags().GetString("reason")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	cfg, err := config.Load(configPath(cmd))
	if err != nil {
		return err
	}
	artifactsDir, err := filepath.Abs(cfg.Server.ArtifactsDir)
	if err != nil {
		return err
	}

	db, reg, err := openRegistry(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	mgr, err := hydrateManager(ctx, cfg, reg, artifactsDir)
	if err != nil {
		return err
	}

	if dryRun {
		rows, err := reg.List(ctx, 0)
		if err != nil {
			return err
		}
		fmt.Printf("retention plan would evaluate %d tracked runs (dry-run: no changes made)\n", len(rows))
		return nil
	}

	_, result, err := mgr.ApplyRetention(actor, reason)
	if err != nil {
		fmt.Printf("gc completed with errors: %v\n", err)
	}

	for _, runHash := range result.Demoted {
		if updateErr := reg.UpdateRetentionState(ctx, runHash, "manifest_only"); updateErr != nil {
			fmt.Printf("warning: demoted %s but failed to persist registry state: %v\n", runHash, updateErr)
		}
	}

	fmt.Printf("demoted %d runs to manifest_only\n", len(result.Demoted))
	if len(result.Errors) > 0 {
		fmt.Printf("%d demotions failed:\n", len(result.Errors))
		for _, e := range result.Errors {
			fmt.Printf("  - %s\n", e)
		}
	}
	return nil
}
