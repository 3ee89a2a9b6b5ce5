// Package provider defines quote source adapters and the registry the
// waterfall executor draws them from.
package provider

import (
	"context"
	"sort"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/sells-group/spreadwatch/internal/model"
)

// ErrNoFields reports a reachable source from which no field could be
// extracted.
var ErrNoFields = eris.New("provider: no fields extracted")

// Provider is one external quote source.
type Provider interface {
	// Name identifies the source in provenance and configuration.
	Name() string
	// Tier orders sources; lower tiers are attempted first.
	Tier() int
	// Fields returns the fields this source is able to supply.
	Fields() []model.FieldKey
	// Query fetches the source and returns whatever fields it could read.
	// Network failures, block pages and extraction misses are ordinary
	// errors; only *ConfigError is fatal to a run.
	Query(ctx context.Context) (model.FieldMap, error)
}

// ConfigError reports a malformed source definition.
type ConfigError struct {
	Source string
	Err    error
}

func (e *ConfigError) Error() string {
	return "provider: invalid source " + e.Source + ": " + e.Err.Error()
}

func (e *ConfigError) Unwrap() error { return e.Err }

// IsFatal reports whether err must abort the run instead of being treated as
// an empty contribution.
func IsFatal(err error) bool {
	var ce *ConfigError
	return eris.As(err, &ce)
}

// CanProvide reports whether p declares field k.
func CanProvide(p Provider, k model.FieldKey) bool {
	for _, f := range p.Fields() {
		if f == k {
			return true
		}
	}
	return false
}

// Registry holds the configured providers in declaration order.
type Registry struct {
	mu        sync.RWMutex
	providers []Provider
	byName    map[string]Provider
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Provider)}
}

// Register adds a provider. Duplicate names are a configuration error.
func (r *Registry) Register(p Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.byName[p.Name()]; dup {
		return &ConfigError{Source: p.Name(), Err: eris.New("duplicate source name")}
	}
	r.providers = append(r.providers, p)
	r.byName[p.Name()] = p
	return nil
}

// Get returns a provider by name, or nil if not found.
func (r *Registry) Get(name string) Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byName[name]
}

// Ordered returns providers sorted by tier. Providers sharing a tier keep
// their registration order.
func (r *Registry) Ordered() []Provider {
	r.mu.RLock()
	out := make([]Provider, len(r.providers))
	copy(out, r.providers)
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Tier() < out[j].Tier()
	})
	return out
}

// Names returns provider names in priority order.
func (r *Registry) Names() []string {
	ordered := r.Ordered()
	names := make([]string, len(ordered))
	for i, p := range ordered {
		names[i] = p.Name()
	}
	return names
}

// Len returns the number of registered providers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers)
}
