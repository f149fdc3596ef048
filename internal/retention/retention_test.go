package retention

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runHashAt(i int) string   { return fmt.Sprintf("run-%d", i) }
func strategyAt(i int) string { return fmt.Sprintf("strategy-%d", i) }

func recordsAt(t *testing.T, n int, strategyCount int, base time.Time) []RunRecord {
	t.Helper()
	out := make([]RunRecord, n)
	for i := 0; i < n; i++ {
		out[i] = RunRecord{
			RunHash:            runHashAt(i),
			StrategyID:         strategyAt(i % strategyCount),
			CreatedAt:          base.Add(time.Duration(i) * time.Minute),
			PrimaryMetricValue: float64(i % 7),
			State:              StateFull,
		}
	}
	return out
}

func TestCreatePlan_KeepsNewestNGlobalAndTopKPerStrategy(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	records := recordsAt(t, 60, 3, base)

	plan := CreatePlan(records, Config{NGlobal: 50, K: 5})

	assert.LessOrEqual(t, len(plan.ToDemote)+len(plan.ToKeepFull), 60)
	for _, h := range plan.ToKeepFull {
		assert.NotEmpty(t, plan.ReasonToKeep[h])
	}
	// The very newest run (index 59) must be kept.
	assert.Contains(t, plan.ToKeepFull, runHashAt(59))
}

func TestCreatePlan_PinnedRunsAlwaysKept(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	records := recordsAt(t, 60, 3, base)
	records[0].State = StatePinned // oldest, lowest metric, would otherwise be demoted

	plan := CreatePlan(records, Config{NGlobal: 50, K: 5})
	assert.Contains(t, plan.ToKeepFull, runHashAt(0))
	assert.Contains(t, plan.ReasonToKeep[runHashAt(0)], "pinned")
	assert.NotContains(t, plan.ToDemote, runHashAt(0))
}

func TestCreatePlan_AlreadyManifestOnlyIsNotReDemoted(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	records := recordsAt(t, 60, 3, base)
	records[0].State = StateManifestOnly

	plan := CreatePlan(records, Config{NGlobal: 50, K: 5})
	assert.NotContains(t, plan.ToDemote, runHashAt(0))
}

func TestApply_EvictsBulkArtifactsKeepsManifest(t *testing.T) {
	dir := t.TempDir()
	runHash := "run-under-test"
	runDir := filepath.Join(dir, runHash)
	require.NoError(t, os.MkdirAll(runDir, 0o755))
	for _, name := range append(bulkArtifacts, "manifest.json", "metrics.json") {
		require.NoError(t, os.WriteFile(filepath.Join(runDir, name), []byte("{}"), 0o644))
	}

	plan := Plan{ToDemote: []string{runHash}}
	result := Apply(plan, ArtifactsDemoter{BaseDir: dir})

	assert.Equal(t, []string{runHash}, result.Demoted)
	assert.Empty(t, result.Errors)
	for _, name := range bulkArtifacts {
		_, err := os.Stat(filepath.Join(runDir, name))
		assert.True(t, os.IsNotExist(err))
	}
	_, err := os.Stat(filepath.Join(runDir, "manifest.json"))
	assert.NoError(t, err)
}

func TestManager_PinThenUnpinIsIdentity(t *testing.T) {
	m := NewManager(DefaultConfig(), NewAuditLog(filepath.Join(t.TempDir(), "audit.jsonl")), ArtifactsDemoter{BaseDir: t.TempDir()}, nil)
	m.Track("run-a", "strategy-0", time.Now(), 1.0)

	require.NoError(t, m.Pin("run-a", "operator", "manual review"))
	rec, ok := m.Get("run-a")
	require.True(t, ok)
	assert.Equal(t, StatePinned, rec.State)

	require.NoError(t, m.Unpin("run-a", "operator", "done reviewing"))
	rec, ok = m.Get("run-a")
	require.True(t, ok)
	assert.Equal(t, StateFull, rec.State)
}

func TestManager_RehydrateFailsWithoutHook(t *testing.T) {
	m := NewManager(DefaultConfig(), NewAuditLog(filepath.Join(t.TempDir(), "audit.jsonl")), ArtifactsDemoter{BaseDir: t.TempDir()}, nil)
	m.Track("run-a", "strategy-0", time.Now(), 1.0)

	err := m.Rehydrate("run-a", "operator", "need artifacts back")
	require.Error(t, err)
}

func TestManager_ApplyRetentionDemotesAndAudits(t *testing.T) {
	auditPath := filepath.Join(t.TempDir(), "audit.jsonl")
	baseDir := t.TempDir()
	m := NewManager(Config{NGlobal: 1, K: 0}, NewAuditLog(auditPath), ArtifactsDemoter{BaseDir: baseDir}, nil)

	base := time.Now()
	m.Track("run-old", "strategy-0", base.Add(-time.Hour), 0.1)
	m.Track("run-new", "strategy-0", base, 0.2)

	for _, h := range []string{"run-old", "run-new"} {
		require.NoError(t, os.MkdirAll(filepath.Join(baseDir, h), 0o755))
	}

	plan, result, err := m.ApplyRetention("system", "scheduled gc")
	require.NoError(t, err)
	assert.Contains(t, plan.ToDemote, "run-old")
	assert.Contains(t, result.Demoted, "run-old")

	rec, ok := m.Get("run-old")
	require.True(t, ok)
	assert.Equal(t, StateManifestOnly, rec.State)

	body, err := os.ReadFile(auditPath)
	require.NoError(t, err)
	assert.Contains(t, string(body), "\"event\":\"evict\"")
}
