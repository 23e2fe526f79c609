package tool

import (
	"errors"
	"fmt"
	"sync"

	"github.com/hupe1980/toolmesh/logging"
)

// Definition pairs a descriptor with the handler implementing it.
type Definition struct {
	Descriptor
	Handler Handler
}

// Provider is a source of tool definitions, typically one per domain
// (weather, math, search).
type Provider interface {
	Tools() []Definition
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func() []Definition

// Tools implements Provider.
func (f ProviderFunc) Tools() []Definition { return f() }

// ErrDuplicateTool is returned when a tool name is registered twice.
var ErrDuplicateTool = errors.New("tool already registered")

// RegistryOptions configures a Registry.
type RegistryOptions struct {
	Logger logging.Logger
}

// Registry builds and stores tools. It is populated during startup and read
// concurrently afterwards.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]Tool
	order  []string
	logger logging.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(optFns ...func(o *RegistryOptions)) *Registry {
	opts := RegistryOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Registry{
		tools:  make(map[string]Tool),
		logger: logging.OrNoOp(opts.Logger),
	}
}

// Register builds one tool per definition of p and returns the tools that
// were built. A definition that cannot be built (empty or duplicate name,
// missing handler, uncompilable schema, panic) is logged and skipped; the
// remaining definitions are still registered.
func (r *Registry) Register(p Provider) []Tool {
	defs := r.collect(p)

	built := make([]Tool, 0, len(defs))
	for _, def := range defs {
		t, err := r.build(def)
		if err != nil {
			r.logger.Warn("tool.registry.skip", "tool", def.Name, "error", err.Error())
			continue
		}

		if err := r.RegisterTool(t); err != nil {
			r.logger.Warn("tool.registry.skip", "tool", def.Name, "error", err.Error())
			continue
		}

		built = append(built, t)
	}

	return built
}

func (r *Registry) collect(p Provider) (defs []Definition) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("tool.registry.provider_panic", "recover", rec)
			defs = nil
		}
	}()

	return p.Tools()
}

func (r *Registry) build(def Definition) (t Tool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic while building tool: %v", rec)
		}
	}()

	if def.Name == "" {
		return nil, errors.New("tool name is empty")
	}

	if def.Handler == nil {
		return nil, errors.New("tool handler is nil")
	}

	return NewFunctionToolFromDescriptor(def.Descriptor, def.Handler)
}

// RegisterTool adds an already constructed tool.
func (r *Registry) RegisterTool(t Tool) error {
	name := t.Name()
	if name == "" {
		return errors.New("tool name is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, name)
	}

	r.tools[name] = t
	r.order = append(r.order, name)

	r.logger.Debug("tool.registry.registered", "tool", name)

	return nil
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tools[name]

	return t, ok
}

// Lookup returns the tools with the given names, skipping unknown names.
func (r *Registry) Lookup(names ...string) []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Tool, 0, len(names))
	for _, n := range names {
		if t, ok := r.tools[n]; ok {
			out = append(out, t)
		}
	}

	return out
}

// List returns all tools in registration order.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Tool, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, r.tools[n])
	}

	return out
}

// Names returns all tool names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]string(nil), r.order...)
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.order)
}
