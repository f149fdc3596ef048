package dataset

import "sync"

// Cache is the process-wide, read-only-after-first-load dataset cache (spec
// §5 Shared resources: "Dataset cache: shared, read-only after first
// successful load; concurrent readers; single-flight population"). It is
// owned explicitly by the root coordinator (orchestrator) rather than kept
// as a package-level global (spec §9 Design Notes: avoid ambient globals).
type Cache struct {
	mu      sync.Mutex
	entries map[Key]*entry
}

type entry struct {
	ds      *Dataset
	err     error
	loading chan struct{}
}

// NewCache constructs an empty dataset cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[Key]*entry)}
}

// GetOrLoad returns the cached Dataset for key, loading it via load exactly
// once even under concurrent callers (single-flight), and serving cached
// reads thereafter without re-running load.
func (c *Cache) GetOrLoad(key Key, load func() (*Dataset, error)) (*Dataset, error) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok {
		e = &entry{loading: make(chan struct{})}
		c.entries[key] = e
		c.mu.Unlock()

		e.ds, e.err = load()
		close(e.loading)
		return e.ds, e.err
	}
	c.mu.Unlock()

	<-e.loading
	return e.ds, e.err
}

// Peek returns the cached dataset for key without loading, and whether it
// was present.
func (c *Cache) Peek(key Key) (*Dataset, bool) {
	c.mu.Lock()
	e, ok := c.entries[key]
	c.mu.Unlock()
	if !ok {
		return nil, false
	}
	select {
	case <-e.loading:
		return e.ds, e.err == nil
	default:
		return nil, false
	}
}
