package agentloop

import (
	"context"
	"sync"
)

// ToolSpec describes a tool's name, argument shape, and usage line. The
// usage lines are rendered into the system prompt; the argument shape
// drives invocation parsing.
type ToolSpec struct {
	Name string

	// ArgCount is the exact number of arguments, counting the final one.
	ArgCount int

	// Greedy marks the final argument as consuming the remainder of the
	// invocation line, allowing embedded spaces.
	Greedy bool

	// TakesBody marks the final argument as also consuming subsequent
	// lines up to the next invocation line or end of stream.
	TakesBody bool

	// Usage is the one-line call shape shown to the model,
	// e.g. "list_files <directory>".
	Usage string

	// Description explains what the tool does, shown after the usage line.
	Description string
}

// ToolHandler executes one parsed tool call against the environment and
// returns the success payload, or an *ExecError describing the failure.
type ToolHandler func(ctx context.Context, env *LocalEnvironment, call ToolCall) (string, error)

// RegisteredTool pairs a tool spec with its handler.
type RegisteredTool struct {
	Spec    ToolSpec
	Handler ToolHandler
}

// ToolRegistry manages tool registration and lookup. Registration order is
// preserved so the system prompt lists tools deterministically.
type ToolRegistry struct {
	tools map[string]*RegisteredTool
	order []string
	mu    sync.RWMutex
}

// NewToolRegistry creates an empty ToolRegistry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{
		tools: make(map[string]*RegisteredTool),
	}
}

// Register adds or replaces a tool in the registry.
func (r *ToolRegistry) Register(tool RegisteredTool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[tool.Spec.Name]; !exists {
		r.order = append(r.order, tool.Spec.Name)
	}
	r.tools[tool.Spec.Name] = &tool
}

// Get returns a registered tool by name, or nil if not found.
func (r *ToolRegistry) Get(name string) *RegisteredTool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Specs returns all tool specs in registration order.
func (r *ToolRegistry) Specs() []ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	specs := make([]ToolSpec, 0, len(r.order))
	for _, name := range r.order {
		specs = append(specs, r.tools[name].Spec)
	}
	return specs
}

// Names returns the names of all registered tools in registration order.
func (r *ToolRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// Count returns the number of registered tools.
func (r *ToolRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// TakesBody reports whether the named tool's final argument continues onto
// subsequent lines. Unknown tools never take a body, so stray text after a
// malformed invocation stays visible as display text.
func (r *ToolRegistry) TakesBody(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return ok && tool.Spec.TakesBody
}
