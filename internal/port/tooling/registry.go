package tooling

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maps tool names onto handlers. Registration happens
// explicitly at wiring time, never from init side effects, so the
// full tool surface is visible in one place.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Definition
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Definition)}
}

// Register adds a tool definition. Duplicate names and nil handlers
// are wiring bugs, so both panic.
func (r *Registry) Register(def Definition) {
	if def.Name == "" {
		panic("tooling: register with empty name")
	}
	if def.Handler == nil {
		panic(fmt.Sprintf("tooling: nil handler for %q", def.Name))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[def.Name]; exists {
		panic(fmt.Sprintf("tooling: duplicate registration for %q", def.Name))
	}
	r.tools[def.Name] = def
}

// Get returns the definition for name, or ErrUnknownTool.
func (r *Registry) Get(name string) (Definition, error) {
	r.mu.RLock()
	def, ok := r.tools[name]
	r.mu.RUnlock()

	if !ok {
		return Definition{}, fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}
	return def, nil
}

// Names returns all registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions returns all registered tools, sorted by name.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]Definition, 0, len(r.tools))
	for _, def := range r.tools {
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}
