package tools

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/conciergehq/concierge/llm"
	"github.com/conciergehq/concierge/types"
)

// Func is the tool function signature.
type Func func(ctx context.Context, args json.RawMessage) (json.RawMessage, error)

// Metadata describes a registered tool.
type Metadata struct {
	Schema  llm.ToolSchema
	Timeout time.Duration // per-call timeout; executor default applies when zero
}

// Registry holds the available tools.
type Registry struct {
	mu       sync.RWMutex
	tools    map[string]Func
	metadata map[string]Metadata
	logger   *zap.Logger
}

// NewRegistry creates an empty tool registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		tools:    make(map[string]Func),
		metadata: make(map[string]Metadata),
		logger:   logger.With(zap.String("component", "tools")),
	}
}

// Register adds a tool. Re-registering a name replaces the previous tool.
func (r *Registry) Register(fn Func, md Metadata) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := md.Schema.Name
	if _, exists := r.tools[name]; exists {
		r.logger.Warn("replacing registered tool", zap.String("tool", name))
	}
	r.tools[name] = fn
	r.metadata[name] = md
}

// Get returns the tool and metadata for name.
func (r *Registry) Get(name string) (Func, Metadata, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.tools[name]
	if !ok {
		return nil, Metadata{}, types.Newf(types.ErrToolNotFound, "tool %q not registered", name)
	}
	return fn, r.metadata[name], nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// Schemas returns the schemas for the named tools, skipping unknown names.
// With no names it returns every registered schema, sorted for stable
// prompt construction.
func (r *Registry) Schemas(names ...string) []llm.ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []llm.ToolSchema
	if len(names) == 0 {
		for name := range r.tools {
			names = append(names, name)
		}
		sort.Strings(names)
	}
	for _, name := range names {
		if md, ok := r.metadata[name]; ok {
			out = append(out, md.Schema)
		}
	}
	return out
}
