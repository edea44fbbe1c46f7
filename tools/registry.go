package tools

import (
	"sort"
	"sync"

	"github.com/aschepis/backscratcher/converse/llm"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// Registry maps tool names to definitions. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Definition

	logger zerolog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger zerolog.Logger) *Registry {
	logger = logger.With().Str("component", "tool_registry").Logger()
	return &Registry{
		tools:  make(map[string]Definition),
		logger: logger,
	}
}

// Register adds a tool. Registering an existing name replaces the previous definition.
func (r *Registry) Register(def Definition) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[def.Name]; exists {
		r.logger.Debug().Str("name", def.Name).Msg("Replacing tool definition")
	} else {
		r.logger.Debug().Str("name", def.Name).Msg("Registering tool")
	}
	r.tools[def.Name] = def
}

// Unregister removes a tool. Unknown names are ignored.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.tools[name]
	return def, ok
}

// Names returns the registered tool names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := lo.Keys(r.tools)
	sort.Strings(names)
	return names
}

// Specs returns the schema of every registered tool, sorted by name.
func (r *Registry) Specs() []llm.ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	specs := lo.MapToSlice(r.tools, func(_ string, def Definition) llm.ToolSpec {
		return def.Spec()
	})
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}
