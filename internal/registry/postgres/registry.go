// Package postgres implements registry.Registry against PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/alphaforge/engine/internal/registry"
)

// runRegistry implements registry.Registry for PostgreSQL.
type runRegistry struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewRunRegistry creates a new PostgreSQL-backed run registry.
func NewRunRegistry(db *sqlx.DB, timeout time.Duration) registry.Registry {
	return &runRegistry{db: db, timeout: timeout}
}

// Upsert inserts row, or updates it in place if run_hash already exists.
func (r *runRegistry) Upsert(ctx context.Context, row registry.RunRow) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO run_registry (
			run_hash, strategy_id, config_json, manifest_json, manifest_hash,
			retention_state, primary_metric_value, status, error_code,
			error_message, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
		ON CONFLICT (run_hash) DO UPDATE SET
			manifest_json = EXCLUDED.manifest_json,
			manifest_hash = EXCLUDED.manifest_hash,
			retention_state = EXCLUDED.retention_state,
			primary_metric_value = EXCLUDED.primary_metric_value,
			status = EXCLUDED.status,
			error_code = EXCLUDED.error_code,
			error_message = EXCLUDED.error_message,
			updated_at = EXCLUDED.updated_at`

	_, err := r.db.ExecContext(ctx, query,
		row.RunHash, row.StrategyID, row.ConfigJSON, row.ManifestJSON, row.ManifestHash,
		row.RetentionState, row.PrimaryMetricValue, row.Status, row.ErrorCode,
		row.ErrorMessage, row.CreatedAt)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return fmt.Errorf("duplicate run_hash %s: %w", row.RunHash, err)
		}
		return fmt.Errorf("failed to upsert run row: %w", err)
	}

	return nil
}

// Get returns the row for runHash, or (RunRow{}, false, nil) if absent.
func (r *runRegistry) Get(ctx context.Context, runHash string) (registry.RunRow, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT run_hash, strategy_id, config_json, manifest_json, manifest_hash,
			retention_state, primary_metric_value, status, error_code,
			error_message, created_at, updated_at
		FROM run_registry
		WHERE run_hash = $1`

	var row registry.RunRow
	err := r.db.GetContext(ctx, &row, query, runHash)
	if err != nil {
		if err == sql.ErrNoRows {
			return registry.RunRow{}, false, nil
		}
		return registry.RunRow{}, false, fmt.Errorf("failed to get run row: %w", err)
	}

	return row, true, nil
}

// List returns up to limit rows ordered by created_at desc.
func (r *runRegistry) List(ctx context.Context, limit int) ([]registry.RunRow, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT run_hash, strategy_id, config_json, manifest_json, manifest_hash,
			retention_state, primary_metric_value, status, error_code,
			error_message, created_at, updated_at
		FROM run_registry
		ORDER BY created_at DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	return r.queryRows(ctx, query)
}

// ListByStrategy returns up to limit rows for strategyID, newest first.
func (r *runRegistry) ListByStrategy(ctx context.Context, strategyID string, limit int) ([]registry.RunRow, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT run_hash, strategy_id, config_json, manifest_json, manifest_hash,
			retention_state, primary_metric_value, status, error_code,
			error_message, created_at, updated_at
		FROM run_registry
		WHERE strategy_id = $1
		ORDER BY created_at DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	return r.queryRowsArgs(ctx, query, strategyID)
}

// UpdateRetentionState flips the retention_state column for runHash.
func (r *runRegistry) UpdateRetentionState(ctx context.Context, runHash, state string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `UPDATE run_registry SET retention_state = $1, updated_at = $2 WHERE run_hash = $3`
	res, err := r.db.ExecContext(ctx, query, state, time.Now().UTC(), runHash)
	if err != nil {
		return fmt.Errorf("failed to update retention state: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("run %s not found", runHash)
	}

	return nil
}

func (r *runRegistry) queryRows(ctx context.Context, query string) ([]registry.RunRow, error) {
	rows, err := r.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query run rows: %w", err)
	}
	defer rows.Close()
	return scanRunRows(rows)
}

func (r *runRegistry) queryRowsArgs(ctx context.Context, query string, args ...any) ([]registry.RunRow, error) {
	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query run rows: %w", err)
	}
	defer rows.Close()
	return scanRunRows(rows)
}

func scanRunRows(rows *sqlx.Rows) ([]registry.RunRow, error) {
	var out []registry.RunRow
	for rows.Next() {
		var row registry.RunRow
		if err := rows.StructScan(&row); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating run rows: %w", err)
	}
	return out, nil
}
