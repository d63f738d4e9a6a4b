package webhooks

import (
	"sync"

	"udl-core/domain/graph"
	"udl-core/udlerrors"
)

// ValidatePluginName reports whether name is a legal webhook path segment
// (spec.md §4.6 grammar, delegating to domain/graph.ValidatePluginName).
func ValidatePluginName(name string) bool {
	return graph.ValidatePluginName(name) == nil
}

// Registry maps plugin name to webhook registration. Grounded on the
// HandlerRegistry, narrowed from many-handlers-per-event-type to
// exactly one handler per plugin.
type Registry struct {
	mu            sync.RWMutex
	registrations map[string]Registration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{registrations: make(map[string]Registration)}
}

// Register installs a plugin's handler. Duplicate registration of the same
// plugin name fails with KindAlreadyExists (spec.md §4.6).
func (r *Registry) Register(pluginName string, reg Registration) error {
	if !ValidatePluginName(pluginName) {
		return udlerrors.Validation("invalid plugin name: " + pluginName).WithResource("webhook")
	}
	if reg.Handler == nil {
		return udlerrors.Validation("handler is required").WithResource("webhook")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.registrations[pluginName]; exists {
		return udlerrors.AlreadyExists("plugin already registered: " + pluginName).WithResource("webhook")
	}
	r.registrations[pluginName] = reg
	return nil
}

// RegisterDefault installs reg only if pluginName has no registration yet,
// used to auto-install the Default Webhook Handler (spec.md §4.6 "A default
// handler may be auto-installed for plugins that register none").
func (r *Registry) RegisterDefault(pluginName string, reg Registration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.registrations[pluginName]; !exists {
		r.registrations[pluginName] = reg
	}
}

// Lookup returns the registration for pluginName, if any.
func (r *Registry) Lookup(pluginName string) (Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.registrations[pluginName]
	return reg, ok
}
