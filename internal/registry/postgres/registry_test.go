package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alphaforge/engine/internal/registry"
	"github.com/alphaforge/engine/internal/registry/postgres"
)

func newMockRegistry(t *testing.T) (registry.Registry, sqlmock.Sqlmock, func()) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	sqlxDB := sqlx.NewDb(mockDB, "postgres")
	reg := postgres.NewRunRegistry(sqlxDB, 5*time.Second)
	return reg, mock, func() { mockDB.Close() }
}

func TestRunRegistry_UpsertInsertsRow(t *testing.T) {
	reg, mock, closeFn := newMockRegistry(t)
	defer closeFn()

	row := registry.RunRow{
		RunHash:        "hash-1",
		StrategyID:     "dual_sma",
		ConfigJSON:     []byte(`{"symbol":"BTC-USD"}`),
		RetentionState: "full",
		Status:         "completed",
		CreatedAt:      time.Now().UTC(),
	}

	mock.ExpectExec("INSERT INTO run_registry").
		WithArgs(row.RunHash, row.StrategyID, row.ConfigJSON, row.ManifestJSON, row.ManifestHash,
			row.RetentionState, row.PrimaryMetricValue, row.Status, row.ErrorCode,
			row.ErrorMessage, row.CreatedAt).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := reg.Upsert(context.Background(), row)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunRegistry_GetReturnsFalseWhenAbsent(t *testing.T) {
	reg, mock, closeFn := newMockRegistry(t)
	defer closeFn()

	cols := []string{"run_hash", "strategy_id", "config_json", "manifest_json", "manifest_hash",
		"retention_state", "primary_metric_value", "status", "error_code",
		"error_message", "created_at", "updated_at"}

	mock.ExpectQuery("SELECT (.|\n)* FROM run_registry WHERE run_hash = \\$1").
		WithArgs("missing-hash").
		WillReturnRows(sqlmock.NewRows(cols))

	_, ok, err := reg.Get(context.Background(), "missing-hash")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunRegistry_GetReturnsRowWhenPresent(t *testing.T) {
	reg, mock, closeFn := newMockRegistry(t)
	defer closeFn()

	now := time.Now().UTC()
	cols := []string{"run_hash", "strategy_id", "config_json", "manifest_json", "manifest_hash",
		"retention_state", "primary_metric_value", "status", "error_code",
		"error_message", "created_at", "updated_at"}

	mock.ExpectQuery("SELECT (.|\n)* FROM run_registry WHERE run_hash = \\$1").
		WithArgs("hash-1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(
			"hash-1", "dual_sma", []byte(`{}`), nil, nil,
			"full", nil, "completed", nil, nil, now, now))

	row, ok, err := reg.Get(context.Background(), "hash-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "hash-1", row.RunHash)
	assert.Equal(t, "dual_sma", row.StrategyID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunRegistry_ListOrdersByCreatedAtDesc(t *testing.T) {
	reg, mock, closeFn := newMockRegistry(t)
	defer closeFn()

	now := time.Now().UTC()
	cols := []string{"run_hash", "strategy_id", "config_json", "manifest_json", "manifest_hash",
		"retention_state", "primary_metric_value", "status", "error_code",
		"error_message", "created_at", "updated_at"}

	mock.ExpectQuery("SELECT (.|\n)* FROM run_registry ORDER BY created_at DESC LIMIT 2").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("hash-new", "dual_sma", []byte(`{}`), nil, nil, "full", nil, "completed", nil, nil, now, now).
			AddRow("hash-old", "dual_sma", []byte(`{}`), nil, nil, "full", nil, "completed", nil, nil, now.Add(-time.Hour), now))

	rows, err := reg.List(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "hash-new", rows[0].RunHash)
	assert.Equal(t, "hash-old", rows[1].RunHash)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunRegistry_UpdateRetentionStateNotFound(t *testing.T) {
	reg, mock, closeFn := newMockRegistry(t)
	defer closeFn()

	mock.ExpectExec("UPDATE run_registry SET retention_state").
		WithArgs("manifest_only", sqlmock.AnyArg(), "missing-hash").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := reg.UpdateRetentionState(context.Background(), "missing-hash", "manifest_only")
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
