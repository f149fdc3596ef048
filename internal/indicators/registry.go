package indicators

import (
	"fmt"
	"sort"

	"github.com/alphaforge/engine/internal/apperr"
)

// Registry is the fixed set of known indicator variants (spec §9 Design
// Notes: "tagged variants rather than open inheritance; additions are
// additive").
type Registry struct {
	byName map[string]Indicator
}

// NewRegistry returns a Registry pre-populated with the built-in indicators.
func NewRegistry() *Registry {
	r := &Registry{byName: make(map[string]Indicator)}
	r.Register(SMA{})
	r.Register(RSI{})
	return r
}

// Register adds (or replaces) an indicator variant.
func (r *Registry) Register(ind Indicator) {
	r.byName[ind.Name()] = ind
}

// Lookup resolves an indicator by name.
func (r *Registry) Lookup(name string) (Indicator, error) {
	ind, ok := r.byName[name]
	if !ok {
		return nil, apperr.New(apperr.CodeInvalidIndicator, fmt.Sprintf("unknown indicator %q", name))
	}
	return ind, nil
}

// Names returns all registered indicator names, sorted for determinism.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for n := range r.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Spec names one indicator instance to compute: which variant and with
// which parameters.
type Spec struct {
	Name   string
	Params Params
}
