package registry

import "context"

// Registry persists and queries run rows (spec §4.12). Implementations must
// make Upsert idempotent on run_hash: re-submitting the same run_hash updates
// the existing row rather than creating a duplicate, matching the
// orchestrator's idempotent-submission contract (C10).
type Registry interface {
	// Upsert inserts row, or updates it in place if run_hash already exists.
	Upsert(ctx context.Context, row RunRow) error

	// Get returns the row for runHash, or (RunRow{}, false, nil) if absent.
	Get(ctx context.Context, runHash string) (RunRow, bool, error)

	// List returns up to limit rows ordered by created_at desc (spec §4.12:
	// "secondary ordering by created_at desc"). limit<=0 means no limit.
	List(ctx context.Context, limit int) ([]RunRow, error)

	// ListByStrategy returns up to limit rows for strategyID, newest first.
	ListByStrategy(ctx context.Context, strategyID string, limit int) ([]RunRow, error)

	// UpdateRetentionState flips the retention_state column for runHash,
	// keeping the registry in sync with internal/retention's in-memory view.
	UpdateRetentionState(ctx context.Context, runHash, state string) error
}
