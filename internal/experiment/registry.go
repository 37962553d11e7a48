package experiment

import (
	"fmt"
	"sync"
)

// Factory constructs a fresh, unconfigured Experiment instance for one
// class name. Experiments are stateful once Set/Run, so a worker needs a
// new instance per job rather than a shared one.
type Factory func() Experiment

// Registry maps experiment_class names to Factory functions, letting a
// worker process reconstruct the right Experiment type from the class
// name a remote executor sends across the wire (spec §6, Class doc
// comment). Safe for concurrent use across worker goroutines.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: map[string]Factory{}}
}

// Register binds class to factory, replacing any prior binding.
func (r *Registry) Register(class string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.factories[class] = factory
}

// ErrUnknownClass-style formatting is done inline since the caller needs
// the offending class name; New returns a plain error instead of a
// sentinel so callers don't need errors.Is for this.

// New constructs a fresh Experiment for class, or an error if nothing is
// registered under that name.
func (r *Registry) New(class string) (Experiment, error) {
	r.mu.RLock()
	factory, ok := r.factories[class]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("experiment: no factory registered for class %q", class)
	}

	return factory(), nil
}

// Classes returns every registered class name, in no particular order.
func (r *Registry) Classes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	classes := make([]string, 0, len(r.factories))
	for class := range r.factories {
		classes = append(classes, class)
	}

	return classes
}
