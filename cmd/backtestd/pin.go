package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/alphaforge/engine/internal/config"
)

var pinCmd = &cobra.Command{
	Use:   "pin <run_hash>",
	Short: "Pin a run so it is never demoted by retention",
	Args:  cobra.ExactArgs(1),
	RunE:  makePinUnpin(true),
}

var unpinCmd = &cobra.Command{
	Use:   "unpin <run_hash>",
	Short: "Restore a pinned run to the tier it occupied before pinning",
	Args:  cobra.ExactArgs(1),
	RunE:  makePinUnpin(false),
}

func init() {
	for _, c := range []*cobra.Command{pinCmd, unpinCmd} {
		c.Flags().String("actor", "cli", "Actor recorded in the audit log")
		c.Flags().String("reason", "", "Reason recorded in the audit log")
	}
}

// makePinUnpin builds the shared pin/unpin RunE, which differ only in which
// Manager method they call and which retention_state they persist back.
func makePinUnpin(pin bool) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		runHash := args[0]
		actor, _ := cmd.Flags().GetString("actor")
		reason, _ := cmd.Flags().GetString("reason")

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

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		mgr, err := hydrateManager(ctx, cfg, reg, artifactsDir)
		if err != nil {
			return err
		}

		if pin {
			err = mgr.Pin(runHash, actor, reason)
		} else {
			err = mgr.Unpin(runHash, actor, reason)
		}
		if err != nil {
			return err
		}

		rec, _ := mgr.Get(runHash)
		if err := reg.UpdateRetentionState(ctx, runHash, string(rec.State)); err != nil {
			return fmt.Errorf("pin/unpin succeeded in-memory but failed to persist to registry: %w", err)
		}

		verb := "pinned"
		if !pin {
			verb = "unpinned"
		}
		fmt.Printf("run %s %s (now %s)\n", runHash, verb, rec.State)
		return nil
	}
}
