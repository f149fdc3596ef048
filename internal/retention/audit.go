package retention

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/alphaforge/engine/internal/apperr"
)

// AuditEntry is one immutable pin/unpin/evict/rehydrate record (spec §4.11
// Audit: "{event, run_id, ts, actor, reason}").
type AuditEntry struct {
	Event   string    `json:"event"`
	RunHash string    `json:"run_hash"`
	TS      time.Time `json:"ts"`
	Actor   string    `json:"actor"`
	Reason  string    `json:"reason"`
}

// AuditLog is an append-only JSONL log, one line per entry, grounded on the
// teacher's line-oriented JSONL artifact format (internal/artifacts/compact
// reads/writes one JSON object per line rather than a JSON array).
type AuditLog struct {
	mu   sync.Mutex
	path string
}

// NewAuditLog returns a log that appends to the JSONL file at path. The
// file is not touched here; each Record opens it, creating it if absent.
func NewAuditLog(path string) *AuditLog {
	return &AuditLog{path: path}
}

// Record appends entry to the log, flushing before returning so every
// pin/unpin/evict/rehydrate is durable before the caller observes success.
func (a *AuditLog) Record(entry AuditEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	f, err := os.OpenFile(a.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return apperr.Wrap(apperr.CodePersistFailed, err, "failed to open audit log")
	}
	defer f.Close()

	body, err := json.Marshal(entry)
	if err != nil {
		return apperr.Wrap(apperr.CodeInternal, err, "failed to marshal audit entry")
	}
	if _, err := f.Write(append(body, '\n')); err != nil {
		return apperr.Wrap(apperr.CodePersistFailed, err, "failed to append audit entry")
	}
	return nil
}
