package core

import (
	"fmt"
	"strings"
	"sync"
)

// Integration bundles the two provider-facing surfaces for one remote
// service: the OAuth token endpoint and the task collection.
type Integration interface {
	TokenProvider
	TaskSource
}

type Registry interface {
	Register(integration Integration) error
	Get(providerID string) (Integration, bool)
	List() []Integration
}

type ProviderRegistry struct {
	mu      sync.RWMutex
	entries map[string]Integration
}

func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{
		entries: map[string]Integration{},
	}
}

func (r *ProviderRegistry) Register(integration Integration) error {
	if r == nil {
		return fmt.Errorf("core: provider registry is not configured")
	}
	if integration == nil {
		return fmt.Errorf("core: integration is required")
	}
	id := strings.TrimSpace(strings.ToLower(integration.ID()))
	if id == "" {
		return fmt.Errorf("core: integration id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[id]; exists {
		return fmt.Errorf("core: integration %q already registered", id)
	}
	r.entries[id] = integration
	return nil
}

func (r *ProviderRegistry) Get(providerID string) (Integration, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	integration, ok := r.entries[strings.TrimSpace(strings.ToLower(providerID))]
	r.mu.RUnlock()
	return integration, ok
}

func (r *ProviderRegistry) List() []Integration {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Integration, 0, len(r.entries))
	for _, integration := range r.entries {
		out = append(out, integration)
	}
	return out
}

var _ Registry = (*ProviderRegistry)(nil)
