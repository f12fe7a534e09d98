package llm

import (
	"strings"
	"sync"

	"github.com/conciergehq/concierge/types"
)

// Registry holds named providers and resolves models to them.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	fallback  string
}

// NewRegistry creates an empty registry with the given default provider key.
func NewRegistry(defaultProvider string) *Registry {
	return &Registry{
		providers: make(map[string]Provider),
		fallback:  defaultProvider,
	}
}

// Register adds a provider under its Name. Later registrations replace
// earlier ones with the same name.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// Get returns the provider registered under name.
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	if !ok {
		return nil, types.Newf(types.ErrProviderUnavailable, "provider %q not registered", name)
	}
	return p, nil
}

// ForModel resolves a model name to a provider by prefix convention
// (claude-* -> anthropic, deepseek-* -> deepseek, gemini-* -> gemini),
// falling back to the default provider.
func (r *Registry) ForModel(model string) (Provider, error) {
	name := r.fallback
	switch {
	case strings.HasPrefix(model, "claude"):
		name = "anthropic"
	case strings.HasPrefix(model, "deepseek"):
		name = "deepseek"
	case strings.HasPrefix(model, "gemini"):
		name = "gemini"
	}
	return r.Get(name)
}

// Names returns the registered provider names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for n := range r.providers {
		names = append(names, n)
	}
	return names
}
