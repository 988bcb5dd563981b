package breaker

import (
	"log/slog"
	"sort"
	"sync"
)

// Registry maps downstream service names to their shared breaker instance.
// Constructed once at startup and passed by handle to every component that
// issues downstream calls; there is no ambient global lookup.
type Registry struct {
	mu        sync.RWMutex
	defaults  Config
	overrides map[string]Config
	breakers  map[string]*Breaker
	log       *slog.Logger
}

// NewRegistry creates a registry whose breakers default to defaults.
func NewRegistry(defaults Config, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		defaults:  defaults,
		overrides: make(map[string]Config),
		breakers:  make(map[string]*Breaker),
		log:       log,
	}
}

// Configure sets a per-service config. Takes effect for breakers created
// after the call; configure targets before the first dispatch.
func (r *Registry) Configure(service string, cfg Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.overrides[service] = cfg
}

// Get returns the breaker for service, creating it on first use.
func (r *Registry) Get(service string) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[service]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[service]; ok {
		return b
	}
	cfg := r.defaults
	if override, ok := r.overrides[service]; ok {
		cfg = override
	}
	b = New(service, cfg, r.log)
	r.breakers[service] = b
	return b
}

// Stats returns a snapshot of every breaker, sorted by service name.
func (r *Registry) Stats() []Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Stats, 0, len(r.breakers))
	for _, b := range r.breakers {
		out = append(out, b.Stats())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Service < out[j].Service })
	return out
}

// Reset forces one service's breaker closed. Reports whether it existed.
func (r *Registry) Reset(service string) bool {
	r.mu.RLock()
	b, ok := r.breakers[service]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	b.Reset()
	return true
}

// ResetAll forces every breaker closed.
func (r *Registry) ResetAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, b := range r.breakers {
		b.Reset()
	}
}
