package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver

	"github.com/alphaforge/engine/internal/config"
	"github.com/alphaforge/engine/internal/registry"
	"github.com/alphaforge/engine/internal/registry/postgres"
	"github.com/alphaforge/engine/internal/retention"
)

// openRegistry connects to the Postgres run registry named in cfg. The
// pin/unpin/gc subcommands run as one-shot processes independent of any
// running serve instance, so each invocation opens its own connection
// rather than sharing the server's pool.
func openRegistry(cfg *config.Config) (*sqlx.DB, registry.Registry, error) {
	if !cfg.Registry.Enabled {
		return nil, nil, fmt.Errorf("registry.enabled is false; pin/unpin/gc require a configured run registry")
	}

	db, err := sqlx.Open("postgres", cfg.Registry.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open registry: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to ping registry: %w", err)
	}

	reg := postgres.NewRunRegistry(db, time.Duration(cfg.Registry.TimeoutSeconds)*time.Second)
	return db, reg, nil
}

// hydrateManager builds a retention.Manager from the registry's current
// state, since the Manager's bookkeeping is in-memory and each CLI
// invocation is a fresh process (spec §4.11 C11).
func hydrateManager(ctx context.Context, cfg *config.Config, reg registry.Registry, artifactsDir string) (*retention.Manager, error) {
	rows, err := reg.List(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list registry rows: %w", err)
	}

	auditLog := retention.NewAuditLog(filepath.Join(artifactsDir, "retention_audit.jsonl"))
	demoter := retention.ArtifactsDemoter{BaseDir: artifactsDir}
	mgr := retention.NewManager(retention.Config{NGlobal: cfg.Retention.NGlobal, K: cfg.Retention.K}, auditLog, demoter, nil)

	for _, row := range rows {
		var metric float64
		if row.PrimaryMetricValue != nil {
			metric = *row.PrimaryMetricValue
		}
		mgr.Restore(retention.RunRecord{
			RunHash:            row.RunHash,
			StrategyID:         row.StrategyID,
			CreatedAt:          row.CreatedAt,
			PrimaryMetricValue: metric,
			State:              retention.State(row.RetentionState),
		})
	}

	return mgr, nil
}
