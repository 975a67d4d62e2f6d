package model

import (
	"slices"
	"strings"
	"sync"
)

// Registry tracks artifact instances by ID.
type Registry struct {
	artifacts map[string]*Instance
	mu        sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		artifacts: make(map[string]*Instance),
	}
}

// Set adds or replaces an instance.
func (r *Registry) Set(instance *Instance) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.artifacts[instance.ID] = instance
}

// Get returns a copy of the instance with the given ID.
func (r *Registry) Get(id string) (Instance, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	instance, ok := r.artifacts[id]
	if !ok {
		return Instance{}, false
	}

	return *instance, true
}

// Update applies fn to the instance with the given ID under the write lock.
func (r *Registry) Update(id string, fn func(*Instance)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	instance, ok := r.artifacts[id]
	if !ok {
		return ErrNotFound
	}
	fn(instance)

	return nil
}

// List returns copies of all instances ordered by ID.
func (r *Registry) List() []Instance {
	r.mu.RLock()
	defer r.mu.RUnlock()

	instances := make([]Instance, 0, len(r.artifacts))
	for _, instance := range r.artifacts {
		instances = append(instances, *instance)
	}
	slices.SortFunc(instances, func(a, b Instance) int {
		return strings.Compare(a.ID, b.ID)
	})

	return instances
}

// Delete deletes the instance with the given ID.
func (r *Registry) Delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.artifacts, id)
}
