package crews

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/conciergehq/concierge/types"
)

// Registry holds the runnable crews, keyed by crew key. Replace swaps
// the whole set atomically on reload.
type Registry struct {
	mu    sync.RWMutex
	crews map[string]*Crew
	deps  Deps
}

// NewRegistry binds every definition into a runnable crew.
func NewRegistry(defs map[string]*Definition, deps Deps) (*Registry, error) {
	r := &Registry{deps: deps}
	if err := r.Replace(defs); err != nil {
		return nil, err
	}
	return r, nil
}

// Get returns the crew for a key.
func (r *Registry) Get(key string) (*Crew, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	crew, ok := r.crews[key]
	if !ok {
		return nil, types.Newf(types.ErrCrewNotFound, "unknown crew %q", key)
	}
	return crew, nil
}

// Has reports whether a crew key exists.
func (r *Registry) Has(key string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.crews[key]
	return ok
}

// Keys returns all crew keys, sorted.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.crews))
	for k := range r.crews {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Definitions returns all definitions, sorted by key. Used by the
// classifier prompt and the crews API endpoint.
func (r *Registry) Definitions() []*Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]*Definition, 0, len(r.crews))
	for _, c := range r.crews {
		defs = append(defs, c.def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Key < defs[j].Key })
	return defs
}

// Replace swaps in a new definition set. Tool references are checked
// against the tool registry first so a renamed or missing tool fails
// the whole reload instead of silently stripping it from agents.
func (r *Registry) Replace(defs map[string]*Definition) error {
	if err := r.checkToolRefs(defs); err != nil {
		return err
	}
	crews := make(map[string]*Crew, len(defs))
	for key, def := range defs {
		crews[key] = New(def, r.deps)
	}
	r.mu.Lock()
	r.crews = crews
	r.mu.Unlock()
	if r.deps.Logger != nil {
		r.deps.Logger.Info("crew registry loaded", zap.Int("crews", len(crews)))
	}
	return nil
}

func (r *Registry) checkToolRefs(defs map[string]*Definition) error {
	if r.deps.Tools == nil {
		return nil
	}
	keys := make([]string, 0, len(defs))
	for k := range defs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		for _, agent := range defs[key].Agents {
			for _, tool := range agent.Tools {
				if !r.deps.Tools.Has(tool) {
					return types.Newf(types.ErrToolNotFound,
						"crew %s: agent %s references unregistered tool %q", key, agent.Name, tool)
				}
			}
		}
	}
	return nil
}
