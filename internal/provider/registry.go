package provider

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/codesquad-ai/codesquad/internal/logging"
	"github.com/codesquad-ai/codesquad/pkg/types"
)

// Registry holds the closed set of configured providers, resolved once at
// startup. Lookups at request time never branch on raw type strings.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	config    *types.Config
}

// NewRegistry creates an empty provider registry.
func NewRegistry(config *types.Config) *Registry {
	return &Registry{
		providers: make(map[string]Provider),
		config:    config,
	}
}

// Register adds a provider to the registry.
func (r *Registry) Register(provider Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[provider.ID()] = provider
}

// Get retrieves a provider by ID.
func (r *Registry) Get(providerID string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	provider, ok := r.providers[providerID]
	if !ok {
		return nil, fmt.Errorf("provider not found: %s", providerID)
	}
	return provider, nil
}

// List returns all registered providers.
func (r *Registry) List() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	providers := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		providers = append(providers, p)
	}
	return providers
}

// GetModel retrieves a specific model from a provider.
func (r *Registry) GetModel(providerID, modelID string) (*types.Model, error) {
	provider, err := r.Get(providerID)
	if err != nil {
		return nil, err
	}

	for _, model := range provider.Models() {
		if model.ID == modelID {
			return &model, nil
		}
	}
	return nil, fmt.Errorf("model not found: %s/%s", providerID, modelID)
}

// Default resolves the configured default provider and model.
func (r *Registry) Default() (Provider, *types.Model, error) {
	if r.config != nil && r.config.Model != "" {
		providerID, modelID := ParseModelString(r.config.Model)
		provider, err := r.Get(providerID)
		if err != nil {
			return nil, nil, err
		}
		model, err := r.GetModel(providerID, modelID)
		if err != nil {
			return nil, nil, err
		}
		return provider, model, nil
	}

	// Fall back to the first provider's first model.
	for _, p := range r.List() {
		models := p.Models()
		if len(models) > 0 {
			return p, &models[0], nil
		}
	}
	return nil, nil, fmt.Errorf("no providers configured")
}

// ParseModelString parses "provider/model" format.
func ParseModelString(s string) (providerID, modelID string) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return "", s
}

// Initialize creates and registers all providers from config.
func Initialize(ctx context.Context, config *types.Config) (*Registry, error) {
	registry := NewRegistry(config)

	if cfg, ok := config.Provider["anthropic"]; ok && !cfg.Disable {
		provider, err := NewAnthropicProvider(ctx, &AnthropicConfig{
			APIKey:    cfg.APIKey,
			BaseURL:   cfg.BaseURL,
			MaxTokens: cfg.MaxTokens,
		})
		if err != nil {
			logging.Warn().Err(err).Msg("anthropic provider not initialized")
		} else {
			registry.Register(provider)
		}
	}

	if cfg, ok := config.Provider["openai"]; ok && !cfg.Disable {
		provider, err := NewOpenAIProvider(ctx, &OpenAIConfig{
			APIKey:    cfg.APIKey,
			BaseURL:   cfg.BaseURL,
			MaxTokens: cfg.MaxTokens,
		})
		if err != nil {
			logging.Warn().Err(err).Msg("openai provider not initialized")
		} else {
			registry.Register(provider)
		}
	}

	return registry, nil
}
