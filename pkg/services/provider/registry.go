package provider

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/de-tools/cloud-sentinel/pkg/models/domain"
)

// Factory connects to the live API of one cloud provider.
type Factory func(ctx context.Context) (ResourceProvider, error)

// Registry manages cloud provider factories
type Registry interface {
	// Register adds a new provider factory
	Register(provider domain.Provider, factory Factory) error
	// Factory returns the registered factory of a provider
	Factory(provider domain.Provider) (Factory, error)
	// ListProviders returns the registered providers, sorted
	ListProviders() []domain.Provider
}

type registry struct {
	mu        sync.RWMutex
	factories map[domain.Provider]Factory
}

func NewRegistry(factories map[domain.Provider]Factory) (Registry, error) {
	r := &registry{
		factories: make(map[domain.Provider]Factory),
	}
	for p, f := range factories {
		if err := r.Register(p, f); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *registry) Register(provider domain.Provider, factory Factory) error {
	if provider == "" || provider == domain.ProviderAll {
		return fmt.Errorf("invalid provider name: %q", provider)
	}
	if factory == nil {
		return fmt.Errorf("factory cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[provider]; exists {
		return fmt.Errorf("provider %q is already registered", provider)
	}

	r.factories[provider] = factory
	return nil
}

func (r *registry) Factory(provider domain.Provider) (Factory, error) {
	r.mu.RLock()
	factory, exists := r.factories[provider]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("provider %q is not registered", provider)
	}
	return factory, nil
}

func (r *registry) ListProviders() []domain.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	providers := make([]domain.Provider, 0, len(r.factories))
	for p := range r.factories {
		providers = append(providers, p)
	}
	sort.Slice(providers, func(i, j int) bool { return providers[i] < providers[j] })
	return providers
}

// Resolve expands ALL into every registered provider.
func Resolve(r Registry, requested domain.Provider) ([]domain.Provider, error) {
	if requested == domain.ProviderAll {
		return r.ListProviders(), nil
	}
	if _, err := r.Factory(requested); err != nil {
		return nil, err
	}
	return []domain.Provider{requested}, nil
}
