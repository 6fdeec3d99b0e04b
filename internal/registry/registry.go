package registry

import (
	"sort"
	"sync"

	"github.com/flowstack-dev/flowstack/pkg/schema"
)

// Registry is the thread-safe component catalog. It is populated once at
// startup and read-only afterwards.
type Registry struct {
	mu         sync.RWMutex
	components map[schema.ComponentType]*schema.ComponentDefinition
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		components: make(map[schema.ComponentType]*schema.ComponentDefinition),
	}
}

// Register adds a component definition. Returns an error on a duplicate
// type or an empty type key.
func (r *Registry) Register(def *schema.ComponentDefinition) error {
	if def == nil {
		return schema.NewError(schema.ErrCodeValidation, "component definition is nil")
	}
	if def.Type == "" {
		return schema.NewError(schema.ErrCodeValidation, "component type is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.components[def.Type]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "component %q already registered", def.Type)
	}

	r.components[def.Type] = def
	return nil
}

// Get retrieves a component definition by type.
func (r *Registry) Get(ct schema.ComponentType) (*schema.ComponentDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.components[ct]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeUnknownComponent, "component %q not registered", ct)
	}
	return def, nil
}

// Has checks if a component type is registered.
func (r *Registry) Has(ct schema.ComponentType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.components[ct]
	return ok
}

// List returns all registered definitions, sorted by type.
func (r *Registry) List() []*schema.ComponentDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]*schema.ComponentDefinition, 0, len(r.components))
	for _, d := range r.components {
		defs = append(defs, d)
	}
	sort.Slice(defs, func(i, j int) bool {
		return defs[i].Type < defs[j].Type
	})
	return defs
}

// Count returns the number of registered components.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.components)
}
