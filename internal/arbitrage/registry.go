package arbitrage

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds named scoring strategies for selection by config.
type Registry struct {
	strategies map[string]Strategy
	mu         sync.RWMutex
}

// NewRegistry returns a registry preloaded with the built-in strategies.
func NewRegistry() *Registry {
	r := &Registry{strategies: make(map[string]Strategy)}
	for _, s := range []Strategy{
		ArbitrageBest{},
		Volatility{},
		Volume{},
		Momentum{},
	} {
		r.Register(s)
	}
	return r
}

// Register adds a strategy under its own name.
func (r *Registry) Register(s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[s.Name()] = s
}

// Get returns the strategy by name, or an error if not found.
func (r *Registry) Get(name string) (Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.strategies[name]
	if !ok {
		return nil, fmt.Errorf("arbitrage: strategy %q not found", name)
	}
	return s, nil
}

// List returns all registered strategy names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.strategies))
	for n := range r.strategies {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
