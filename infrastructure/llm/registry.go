package llm

import (
	"fmt"
	"os"
	"strings"
	"sync"
)

// ProviderKeyEnv names the environment variable holding the API key for
// providers other than the registry's default one, whose key comes from
// RegistryConfig.Base.
var ProviderKeyEnv = map[string]string{
	"openai":    "OPENAI_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
	"google":    "GOOGLE_API_KEY",
}

// RegistryConfig holds configuration for the client registry.
type RegistryConfig struct {
	// DefaultProvider is used when a reference names only a model.
	DefaultProvider string
	// Base supplies credentials, endpoint and default model for the default
	// provider.
	Base ClientConfig
	// Middleware returns the chain for a new client of provider. It is called
	// once per client, so stateful middleware such as a circuit breaker is
	// never shared between the model under test and the judge. Nil adds none.
	Middleware func(provider string) []Middleware
	// LookupEnv resolves API keys for non-default providers. Nil uses
	// os.LookupEnv.
	LookupEnv func(string) (string, bool)
}

// Registry builds and reuses chat clients addressed by "provider/model"
// references, so the judge can run on a different provider or deployment than
// the model under test.
//
//	reg, _ := llm.NewRegistry(llm.RegistryConfig{DefaultProvider: "azure", Base: cfg})
//	target, _ := reg.Client("")                      // default provider and model
//	judge, _ := reg.Client("anthropic/claude-sonnet-4-20250514")
type Registry struct {
	cfg     RegistryConfig
	mu      sync.Mutex
	clients map[string]*Client
}

// NewRegistry creates a registry. The default provider must be registered.
func NewRegistry(cfg RegistryConfig) (*Registry, error) {
	if cfg.DefaultProvider == "" {
		return nil, fmt.Errorf("default provider cannot be empty")
	}
	if _, ok := lookupProviderFactory(cfg.DefaultProvider); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, cfg.DefaultProvider)
	}
	if cfg.LookupEnv == nil {
		cfg.LookupEnv = os.LookupEnv
	}
	return &Registry{cfg: cfg, clients: make(map[string]*Client)}, nil
}

// Client returns the client for the model reference ref, creating it on first use.
// Accepted forms are "", "model", "provider" and "provider/model".
func (r *Registry) Client(ref string) (*Client, error) {
	provider, model := r.parseRef(ref)
	key := provider + "/" + model

	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.clients[key]; ok {
		return c, nil
	}

	cfg, err := r.configFor(provider, model)
	if err != nil {
		return nil, err
	}
	c, err := NewClient(provider, cfg)
	if err != nil {
		return nil, fmt.Errorf("create %s client: %w", key, err)
	}
	r.clients[key] = c
	return c, nil
}

// parseRef splits ref into provider and model, filling in defaults.
// A bare word is treated as a provider when one is registered under that
// name, otherwise as a model of the default provider.
func (r *Registry) parseRef(ref string) (provider, model string) {
	ref = strings.TrimSpace(ref)
	switch {
	case ref == "":
		provider = r.cfg.DefaultProvider
	case strings.Contains(ref, "/"):
		provider, model, _ = strings.Cut(ref, "/")
	default:
		if _, ok := lookupProviderFactory(ref); ok {
			provider = ref
		} else {
			provider, model = r.cfg.DefaultProvider, ref
		}
	}
	if model == "" && provider == r.cfg.DefaultProvider {
		model = r.cfg.Base.Model
	}
	return provider, model
}

func (r *Registry) configFor(provider, model string) (ClientConfig, error) {
	if provider == r.cfg.DefaultProvider {
		cfg := r.cfg.Base
		cfg.Model = model
		cfg.Middleware = append(r.middleware(provider), cfg.Middleware...)
		return cfg, nil
	}

	if model == "" {
		return ClientConfig{}, fmt.Errorf("%w for provider %s", ErrMissingModel, provider)
	}
	envVar, ok := ProviderKeyEnv[provider]
	if !ok {
		return ClientConfig{}, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}
	key, ok := r.cfg.LookupEnv(envVar)
	if !ok || key == "" {
		return ClientConfig{}, fmt.Errorf("%w: %s not set", ErrEmptyAPIKey, envVar)
	}
	return ClientConfig{
		APIKey:         key,
		Model:          model,
		Timeout:        r.cfg.Base.Timeout,
		TokenEstimator: r.cfg.Base.TokenEstimator,
		Middleware:     r.middleware(provider),
	}, nil
}

func (r *Registry) middleware(provider string) []Middleware {
	if r.cfg.Middleware == nil {
		return nil
	}
	return append([]Middleware(nil), r.cfg.Middleware(provider)...)
}
