package providers

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrProviderNotFound is returned when a provider is not registered
	ErrProviderNotFound = errors.New("provider not found")

	// ErrProviderAlreadyRegistered is returned when trying to register a duplicate provider
	ErrProviderAlreadyRegistered = errors.New("provider already registered")
)

type entry struct {
	descriptor Descriptor
	adapter    Adapter
}

// Registry maps provider names to their descriptor and wire adapter.
// It is built once at startup and never mutated afterwards, so it can be
// shared across requests without locking.
type Registry struct {
	entries map[string]entry
}

// Lookup returns a copy of the descriptor and the adapter for a provider
func (r *Registry) Lookup(name string) (Descriptor, Adapter, error) {
	if r == nil {
		return Descriptor{}, nil, ErrProviderNotFound
	}
	e, ok := r.entries[strings.ToLower(name)]
	if !ok {
		return Descriptor{}, nil, fmt.Errorf("%w: %s", ErrProviderNotFound, name)
	}
	return e.descriptor, e.adapter, nil
}

// Descriptor returns a copy of the named descriptor
func (r *Registry) Descriptor(name string) (Descriptor, bool) {
	d, _, err := r.Lookup(name)
	return d, err == nil
}

// Names returns all registered provider names, sorted
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Configured returns the names of providers holding a usable credential, sorted
func (r *Registry) Configured() []string {
	var names []string
	for _, name := range r.Names() {
		if r.entries[name].descriptor.HasCredential() {
			names = append(names, name)
		}
	}
	return names
}

// Len returns the number of registered providers
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.entries)
}

// RegistryBuilder helps build a registry with multiple providers
type RegistryBuilder struct {
	adapters map[string]Adapter
	entries  map[string]entry
	errs     []error
}

// NewRegistryBuilder creates a new registry builder
func NewRegistryBuilder() *RegistryBuilder {
	return &RegistryBuilder{
		adapters: make(map[string]Adapter),
		entries:  make(map[string]entry),
	}
}

// WithAdapter registers the adapter used for a provider name
func (rb *RegistryBuilder) WithAdapter(name string, adapter Adapter) *RegistryBuilder {
	rb.adapters[strings.ToLower(name)] = adapter
	return rb
}

// WithProvider adds a descriptor
func (rb *RegistryBuilder) WithProvider(d Descriptor) *RegistryBuilder {
	name := strings.ToLower(strings.TrimSpace(d.Name))
	if name == "" {
		rb.errs = append(rb.errs, errors.New("provider name cannot be empty"))
		return rb
	}
	if _, exists := rb.entries[name]; exists {
		rb.errs = append(rb.errs, fmt.Errorf("%w: %s", ErrProviderAlreadyRegistered, name))
		return rb
	}
	d.Name = name
	rb.entries[name] = entry{descriptor: d}
	return rb
}

// Build resolves adapters and returns the registry
func (rb *RegistryBuilder) Build() (*Registry, error) {
	if len(rb.errs) > 0 {
		return nil, errors.Join(rb.errs...)
	}

	entries := make(map[string]entry, len(rb.entries))
	for name, e := range rb.entries {
		adapter, ok := rb.adapters[name]
		if !ok {
			return nil, fmt.Errorf("no adapter registered for provider %s", name)
		}
		e.adapter = adapter
		entries[name] = e
	}

	return &Registry{entries: entries}, nil
}
