package retention

import (
	"fmt"
	"sync"
	"time"

	"github.com/alphaforge/engine/internal/apperr"
)

// RehydrateFunc deterministically rebuilds a demoted run's bulk artifacts
// from cached inputs (spec §4.11: "deterministic rebuild from cached inputs
// if sources still available; else fail RehydrateUnavailable").
type RehydrateFunc func(runHash string) error

// Manager owns the in-memory retention state for all tracked runs and
// applies the tiered policy at finalize (spec §4.11).
type Manager struct {
	mu        sync.Mutex
	records   map[string]*RunRecord
	cfg       Config
	audit     *AuditLog
	demoter   Demoter
	rehydrate RehydrateFunc

	// Now is the injected clock, overridable in tests for determinism.
	Now func() time.Time
}

// NewManager builds a Manager. rehydrate may be nil, in which case
// Rehydrate always fails with RehydrateUnavailable.
func NewManager(cfg Config, audit *AuditLog, demoter Demoter, rehydrate RehydrateFunc) *Manager {
	return &Manager{
		records:   make(map[string]*RunRecord),
		cfg:       cfg,
		audit:     audit,
		demoter:   demoter,
		rehydrate: rehydrate,
		Now:       func() time.Time { return time.Now().UTC() },
	}
}

// Track registers a newly completed run, defaulting it to the full tier.
func (m *Manager) Track(runHash, strategyID string, createdAt time.Time, primaryMetric float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[runHash] = &RunRecord{
		RunHash:            runHash,
		StrategyID:         strategyID,
		CreatedAt:          createdAt,
		PrimaryMetricValue: primaryMetric,
		State:              StateFull,
	}
}

// Restore registers a run with an already-known retention state, used to
// rebuild the in-memory view from a persisted registry (spec §4.12 C12)
// rather than defaulting every run to the full tier the way Track does.
func (m *Manager) Restore(rec RunRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := rec
	m.records[rec.RunHash] = &cp
}

// Get returns a copy of the tracked record for runHash, if any.
func (m *Manager) Get(runHash string) (RunRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[runHash]
	if !ok {
		return RunRecord{}, false
	}
	return *r, true
}

// Pin marks runHash as pinned, never to be demoted by ApplyRetention, and
// records the prior tier so Unpin can restore it exactly (spec §8 S5:
// pin(unpin(r)) = r).
func (m *Manager) Pin(runHash, actor, reason string) error {
	m.mu.Lock()
	rec, ok := m.records[runHash]
	if !ok {
		m.mu.Unlock()
		return apperr.New(apperr.CodeNotFound, fmt.Sprintf("run %s not tracked", runHash))
	}
	if rec.State != StatePinned {
		rec.PreviousState = rec.State
		rec.State = StatePinned
		now := m.Now()
		rec.PinnedBy = &actor
		rec.PinnedAt = &now
	}
	m.mu.Unlock()

	return m.audit.Record(AuditEntry{Event: "pin", RunHash: runHash, TS: m.Now(), Actor: actor, Reason: reason})
}

// Unpin restores runHash to the tier it occupied before it was pinned.
// Idempotent: unpinning an already-unpinned run is a no-op besides the
// audit entry.
func (m *Manager) Unpin(runHash, actor, reason string) error {
	m.mu.Lock()
	rec, ok := m.records[runHash]
	if !ok {
		m.mu.Unlock()
		return apperr.New(apperr.CodeNotFound, fmt.Sprintf("run %s not tracked", runHash))
	}
	if rec.State == StatePinned {
		rec.State = rec.PreviousState
		rec.PinnedBy = nil
		rec.PinnedAt = nil
	}
	m.mu.Unlock()

	return m.audit.Record(AuditEntry{Event: "unpin", RunHash: runHash, TS: m.Now(), Actor: actor, Reason: reason})
}

// Rehydrate attempts to rebuild a manifest_only run's bulk artifacts.
func (m *Manager) Rehydrate(runHash, actor, reason string) error {
	m.mu.Lock()
	_, ok := m.records[runHash]
	m.mu.Unlock()
	if !ok {
		return apperr.New(apperr.CodeNotFound, fmt.Sprintf("run %s not tracked", runHash))
	}
	if m.rehydrate == nil {
		return apperr.New(apperr.CodeRehydrateUnavail, fmt.Sprintf("rehydration unavailable for run %s", runHash))
	}

	if err := m.rehydrate(runHash); err != nil {
		return apperr.Wrap(apperr.CodeRehydrateUnavail, err, fmt.Sprintf("rehydration failed for run %s", runHash))
	}

	m.mu.Lock()
	if rec, ok := m.records[runHash]; ok && rec.State == StateManifestOnly {
		rec.State = StateFull
	}
	m.mu.Unlock()

	return m.audit.Record(AuditEntry{Event: "rehydrate", RunHash: runHash, TS: m.Now(), Actor: actor, Reason: reason})
}

// ApplyRetention evaluates the tiered policy over all tracked runs and
// demotes whatever the plan calls for, recording one "evict" audit entry per
// successfully demoted run.
func (m *Manager) ApplyRetention(actor, reason string) (Plan, ApplyResult, error) {
	m.mu.Lock()
	records := make([]RunRecord, 0, len(m.records))
	for _, r := range m.records {
		records = append(records, *r)
	}
	m.mu.Unlock()

	plan := CreatePlan(records, m.cfg)
	result := Apply(plan, m.demoter)

	m.mu.Lock()
	for _, runHash := range result.Demoted {
		if rec, ok := m.records[runHash]; ok {
			rec.State = StateManifestOnly
		}
	}
	m.mu.Unlock()

	var auditErr error
	for _, runHash := range result.Demoted {
		if err := m.audit.Record(AuditEntry{Event: "evict", RunHash: runHash, TS: m.Now(), Actor: actor, Reason: reason}); err != nil {
			auditErr = err
		}
	}

	return plan, result, auditErr
}
