package retention

import (
	"sort"
	"time"
)

// Config parameterizes the retention policy (spec §4.11).
type Config struct {
	NGlobal int // newest runs globally kept full, default 50
	K       int // additional top-K per strategy kept full, default 5
}

// DefaultConfig returns the spec's documented defaults.
func DefaultConfig() Config {
	return Config{NGlobal: 50, K: 5}
}

// Plan is the outcome of evaluating the retention policy against a set of
// run records, without mutating anything (spec §4.11 "applied at finalize").
type Plan struct {
	CreatedAt    time.Time
	ToKeepFull   []string
	ToDemote     []string
	ReasonToKeep map[string][]string
}

// CreatePlan evaluates the tiered policy over records: pinned runs are
// always kept full; the newest NGlobal runs (by CreatedAt desc, tie-broken
// by RunHash ascending per spec §8's recommended secondary ordering) are
// kept full; within each remaining strategy, the top K runs by
// PrimaryMetricValue are additionally kept full; everything else demotes to
// manifest_only (a no-op for runs already at that tier).
func CreatePlan(records []RunRecord, cfg Config) Plan {
	plan := Plan{CreatedAt: time.Now().UTC(), ReasonToKeep: make(map[string][]string)}

	keep := make(map[string]bool)
	addReason := func(runHash, reason string) {
		if !keep[runHash] {
			keep[runHash] = true
			plan.ToKeepFull = append(plan.ToKeepFull, runHash)
		}
		plan.ReasonToKeep[runHash] = append(plan.ReasonToKeep[runHash], reason)
	}

	var pinned, unpinned []RunRecord
	for _, r := range records {
		if r.State == StatePinned {
			pinned = append(pinned, r)
		} else {
			unpinned = append(unpinned, r)
		}
	}
	for _, r := range pinned {
		addReason(r.RunHash, "pinned")
	}

	byNewest := make([]RunRecord, len(unpinned))
	copy(byNewest, unpinned)
	sort.Slice(byNewest, func(i, j int) bool {
		if !byNewest[i].CreatedAt.Equal(byNewest[j].CreatedAt) {
			return byNewest[i].CreatedAt.After(byNewest[j].CreatedAt)
		}
		return byNewest[i].RunHash < byNewest[j].RunHash
	})
	for i, r := range byNewest {
		if i >= cfg.NGlobal {
			break
		}
		addReason(r.RunHash, "within_n_global")
	}

	byStrategy := make(map[string][]RunRecord)
	for _, r := range unpinned {
		byStrategy[r.StrategyID] = append(byStrategy[r.StrategyID], r)
	}
	strategies := make([]string, 0, len(byStrategy))
	for s := range byStrategy {
		strategies = append(strategies, s)
	}
	sort.Strings(strategies)

	for _, strat := range strategies {
		group := byStrategy[strat]
		sort.Slice(group, func(i, j int) bool {
			if group[i].PrimaryMetricValue != group[j].PrimaryMetricValue {
				return group[i].PrimaryMetricValue > group[j].PrimaryMetricValue
			}
			if !group[i].CreatedAt.Equal(group[j].CreatedAt) {
				return group[i].CreatedAt.After(group[j].CreatedAt)
			}
			return group[i].RunHash < group[j].RunHash
		})
		for i, r := range group {
			if i >= cfg.K {
				break
			}
			addReason(r.RunHash, "top_k_per_strategy")
		}
	}

	for _, r := range unpinned {
		if keep[r.RunHash] {
			continue
		}
		if r.State == StateManifestOnly {
			continue // already demoted: applying the policy twice is a no-op
		}
		plan.ToDemote = append(plan.ToDemote, r.RunHash)
	}

	return plan
}
