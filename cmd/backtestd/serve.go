package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/alphaforge/engine/internal/config"
	"github.com/alphaforge/engine/internal/dataset"
	"github.com/alphaforge/engine/internal/httpapi"
	"github.com/alphaforge/engine/internal/indicators"
	"github.com/alphaforge/engine/internal/orchestrator"
	"github.com/alphaforge/engine/internal/registry"
	"github.com/alphaforge/engine/internal/registry/postgres"
	"github.com/alphaforge/engine/internal/retention"
	"github.com/alphaforge/engine/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the run control-plane HTTP server",
	Long: `Starts the HTTP server (spec §6): run submission, status, SSE event
streaming, and artifact retrieval. Wires the Redis feature cache and
Postgres run registry when enabled in config.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "Override server.addr from config")
	serveCmd.Flags().String("metrics-addr", ":9090", "Address for the Prometheus /metrics endpoint")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath(cmd))
	if err != nil {
		return err
	}
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.Server.Addr = addr
	}

	var featureCache *redis.Client
	if cfg.Cache.Enabled {
		featureCache = redis.NewClient(&redis.Options{Addr: cfg.Cache.Addr})
		defer featureCache.Close()
		log.Info().Str("addr", cfg.Cache.Addr).Msg("feature cache enabled")
	}

	registryEngine := indicators.NewRegistry()
	cache := indicators.NewFeatureCache(featureCache)
	engine := indicators.NewEngine(registryEngine, cache)

	artifactsDir, err := filepath.Abs(cfg.Server.ArtifactsDir)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(artifactsDir, 0o755); err != nil {
		return err
	}
	orch := orchestrator.New(dataset.NewCache(), engine, artifactsDir)

	auditLog := retention.NewAuditLog(filepath.Join(artifactsDir, "retention_audit.jsonl"))
	demoter := retention.ArtifactsDemoter{BaseDir: artifactsDir}
	retentionMgr := retention.NewManager(retention.Config{NGlobal: cfg.Retention.NGlobal, K: cfg.Retention.K}, auditLog, demoter, nil)

	var db *sqlx.DB
	if cfg.Registry.Enabled {
		db, err = sqlx.Open("postgres", cfg.Registry.DSN)
		if err != nil {
			return err
		}
		defer db.Close()

		pingCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			return err
		}
		reg := postgres.NewRunRegistry(db, time.Duration(cfg.Registry.TimeoutSeconds)*time.Second)
		orch.ChainPrevLookup = chainPrevLookup(reg)
		log.Info().Msg("run registry enabled")
	}

	metrics := telemetry.NewRegistry()
	go serveMetrics(cmd, metrics)

	serverCfg := httpapi.DefaultConfig()
	serverCfg.Addr = cfg.Server.Addr
	serverCfg.ArtifactsDir = artifactsDir
	server := httpapi.NewServer(serverCfg, orch, retentionMgr)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
		log.Info().Msg("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(ctx)
	}
}

// chainPrevLookup resolves the orchestrator's manifest chain_prev from the
// most recently created row in the registry, genesis (nil) if the registry
// is empty (spec §4.10 step, §9 manifest chaining).
func chainPrevLookup(reg registry.Registry) func() (*string, error) {
	return func() (*string, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		rows, err := reg.List(ctx, 1)
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			return nil, nil
		}
		return rows[0].ManifestHash, nil
	}
}

func serveMetrics(cmd *cobra.Command, reg *telemetry.Registry) {
	addr, _ := cmd.Flags().GetString("metrics-addr")
	mux := http.NewServeMux()
	mux.Handle("/metrics", reg.Handler())
	log.Info().Str("addr", addr).Msg("starting metrics server")
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error().Err(err).Msg("metrics server stopped")
	}
}
