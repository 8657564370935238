package providers

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/de-tools/market-atlas/pkg/models/domain"
	"github.com/de-tools/market-atlas/pkg/services/config"
)

// Factory builds an adapter from its secrets profile.
type Factory func(profile config.Profile, opts ClientOptions) (Adapter, error)

// Registry manages provider adapter factories
type Registry interface {
	// Register adds a new provider factory
	Register(provider domain.Provider, factory Factory) error
	// Create instantiates an adapter for the provider using the given profile
	Create(provider domain.Provider, profile config.Profile, opts ClientOptions) (Adapter, error)
	// ListProviders returns registered providers in registration order
	ListProviders() []domain.Provider
}

type registry struct {
	mu        sync.RWMutex
	factories map[domain.Provider]Factory
	order     []domain.Provider
}

func NewRegistry() Registry {
	return &registry{
		factories: make(map[domain.Provider]Factory),
	}
}

func (r *registry) Register(provider domain.Provider, factory Factory) error {
	if provider == "" {
		return fmt.Errorf("provider name cannot be empty")
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
	r.order = append(r.order, provider)
	return nil
}

func (r *registry) Create(provider domain.Provider, profile config.Profile, opts ClientOptions) (Adapter, error) {
	r.mu.RLock()
	factory, exists := r.factories[provider]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("provider %q is not registered", provider)
	}

	return factory(profile, opts)
}

func (r *registry) ListProviders() []domain.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Provider, len(r.order))
	copy(out, r.order)
	return out
}

type registration struct {
	provider domain.Provider
	factory  Factory
}

var builtins = []registration{
	{domain.ProviderMoz, NewMoz},
	{domain.ProviderSerpstack, NewSerpstack},
	{domain.ProviderDataForSEO, NewDataForSEO},
	{domain.ProviderTwitter, NewTwitter},
	{domain.ProviderSocialBladeInstagram, NewSocialBladeInstagram},
	{domain.ProviderSocialBladeFacebook, NewSocialBladeFacebook},
	{domain.ProviderMention, NewMention},
	{domain.ProviderGA4, NewGA4},
	{domain.ProviderMetaInsights, NewMetaInsights},
	{domain.ProviderGoogleBusiness, NewGoogleBusiness},
	{domain.ProviderShopify, NewShopify},
}

// DefaultRegistry registers every built-in adapter.
func DefaultRegistry() Registry {
	return mustRegister(builtins)
}

func mustRegister(entries []registration) Registry {
	r := NewRegistry()
	for _, e := range entries {
		if err := r.Register(e.provider, e.factory); err != nil {
			panic(err)
		}
	}
	return r
}

// Build instantiates every registered provider that has a usable profile.
// Providers whose secrets are absent are left out and logged.
func Build(ctx context.Context, reg Registry, profiles config.Registry, opts ClientOptions) ([]Adapter, error) {
	logger := zerolog.Ctx(ctx)

	var adapters []Adapter
	for _, p := range reg.ListProviders() {
		profile, err := profiles.GetProfile(ctx, profileName(p))
		if err != nil {
			profile = config.Profile{Name: string(p)}
		}

		a, err := reg.Create(p, profile, opts)
		if errors.Is(err, ErrNotConfigured) {
			logger.Info().Str("provider", string(p)).Msg("provider not configured, skipping")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create %s adapter: %w", p, err)
		}
		adapters = append(adapters, a)
	}
	return adapters, nil
}

// profileName maps providers sharing one account onto a single section.
func profileName(p domain.Provider) string {
	switch p {
	case domain.ProviderSocialBladeInstagram, domain.ProviderSocialBladeFacebook:
		return "socialblade"
	default:
		return string(p)
	}
}

// Set is an immutable ordered collection of adapters.
type Set struct {
	adapters []Adapter
}

func NewSet(adapters ...Adapter) *Set {
	out := make([]Adapter, len(adapters))
	copy(out, adapters)
	return &Set{adapters: out}
}

func (s *Set) All() []Adapter {
	out := make([]Adapter, len(s.adapters))
	copy(out, s.adapters)
	return out
}

// Applicable splits the adapters of a phase into those whose required fields
// are all present and those that must be skipped.
func (s *Set) Applicable(phase domain.Phase, creds domain.Credentials) (run, skipped []Adapter) {
	for _, a := range s.adapters {
		if a.Phase() != phase {
			continue
		}
		if creds.HasAll(a.Requires()) {
			run = append(run, a)
		} else {
			skipped = append(skipped, a)
		}
	}
	return run, skipped
}
