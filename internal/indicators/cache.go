package indicators

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/alphaforge/engine/internal/canon"
)

// CacheKey is the feature-cache identity (spec §4.3 Caching): digest of
// {dataset_hash, indicator_name, version, params_sorted, code_version}.
func CacheKey(datasetHash, name string, version int, params Params, codeVersion string) (string, error) {
	return canon.Digest(map[string]any{
		"dataset_hash": datasetHash,
		"indicator":    name,
		"version":      version,
		"params":       params,
		"code_version": codeVersion,
	})
}

// FeatureCache returns an immutable column view for a cache hit (spec
// §4.3: "Cache hits return an immutable column view"). It is a two-tier
// cache: an in-process map (L1, always present) backed optionally by Redis
// (L2, shared across process restarts). L2 access is wrapped in a circuit
// breaker so a degraded Redis never blocks feature computation — a miss or
// breaker-open simply falls through to recomputation.
type FeatureCache struct {
	mu   sync.RWMutex
	l1   map[string]map[string][]float64
	rdb  *redis.Client
	cb   *gobreaker.CircuitBreaker[[]byte]
	ttl  time.Duration
}

// NewFeatureCache builds a cache. rdb may be nil, in which case only the L1
// in-memory tier is used.
func NewFeatureCache(rdb *redis.Client) *FeatureCache {
	var cb *gobreaker.CircuitBreaker[[]byte]
	if rdb != nil {
		cb = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
			Name:        "feature-cache-redis",
			MaxRequests: 1,
			Interval:    30 * time.Second,
			Timeout:     10 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
					Msg("feature cache redis breaker state change")
			},
		})
	}
	return &FeatureCache{
		l1:  make(map[string]map[string][]float64),
		rdb: rdb,
		cb:  cb,
		ttl: 24 * time.Hour,
	}
}

// Get returns the cached columns for key, checking L1 then L2.
func (c *FeatureCache) Get(ctx context.Context, key string) (map[string][]float64, bool) {
	c.mu.RLock()
	v, ok := c.l1[key]
	c.mu.RUnlock()
	if ok {
		return v, true
	}

	if c.rdb == nil || c.cb == nil {
		return nil, false
	}

	raw, err := c.cb.Execute(func() ([]byte, error) {
		return c.rdb.Get(ctx, "feat:"+key).Bytes()
	})
	if err != nil {
		return nil, false
	}

	var cols map[string][]float64
	if err := json.Unmarshal(raw, &cols); err != nil {
		return nil, false
	}

	c.mu.Lock()
	c.l1[key] = cols
	c.mu.Unlock()
	return cols, true
}

// Put stores columns under key in both tiers (L2 best-effort).
func (c *FeatureCache) Put(ctx context.Context, key string, cols map[string][]float64) {
	c.mu.Lock()
	c.l1[key] = cols
	c.mu.Unlock()

	if c.rdb == nil || c.cb == nil {
		return
	}
	raw, err := json.Marshal(cols)
	if err != nil {
		return
	}
	_, _ = c.cb.Execute(func() ([]byte, error) {
		return nil, c.rdb.Set(ctx, "feat:"+key, raw, c.ttl).Err()
	})
}
