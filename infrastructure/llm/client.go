// Package llm provides a unified chat interface over several LLM providers
// with built-in support for rate limiting, circuit breaking, retries,
// metrics, tracing, logging and response caching.
//
// The package abstracts multiple providers (Azure AI Foundry, OpenAI,
// Anthropic, Google) behind a common CoreLLM interface and adds
// cross-cutting concerns through a middleware pattern. This allows the
// quality gate to switch providers or add operational features without
// changing the code that sends conversations.
//
// Basic usage:
//
//	client, err := llm.NewClient("azure", llm.ClientConfig{
//	    APIKey:     os.Getenv("FOUNDRY_API_KEY"),
//	    BaseURL:    os.Getenv("FOUNDRY_URL_ENDPOINT"),
//	    Model:      os.Getenv("DEPLOYED_MODEL_NAME"),
//	    APIVersion: "2024-10-21",
//	})
//	conv := domain.NewConversation(domain.UserMessage("Hello"))
//	resp, err := client.Chat(ctx, conv, domain.DefaultChatOptions())
//
// Advanced usage with middleware:
//
//	client, err := llm.NewClient("anthropic", llm.ClientConfig{
//	    APIKey: os.Getenv("ANTHROPIC_API_KEY"),
//	    Model:  "claude-3-5-sonnet-20241022",
//	    Middleware: []llm.Middleware{
//	        llm.LoggingMiddleware(logger),
//	        llm.RateLimitMiddleware(20, 40),
//	        llm.CircuitBreakerMiddleware(5, 30*time.Second),
//	        llm.MetricsMiddleware(metricsCollector, "anthropic"),
//	    },
//	})
package llm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ahrav/go-qualitygate/internal/domain"
	"github.com/ahrav/go-qualitygate/internal/ports"
)

var _ ports.ChatClient = (*Client)(nil)

// CoreLLM defines the minimal interface that LLM providers must implement.
// This interface abstracts the core functionality needed to make requests
// to different LLM services, allowing the middleware system to wrap
// any conforming implementation.
type CoreLLM interface {
	// DoRequest sends the messages to the LLM provider and returns the reply.
	// The opts parameter carries generation settings keyed by the Opt*
	// constants. Returns the response text, input token count, output token
	// count, and any error.
	DoRequest(
		ctx context.Context,
		messages []domain.Message,
		opts map[string]any,
	) (
		response string,
		tokensIn, tokensOut int,
		err error,
	)

	// GetModel returns the currently configured model name.
	GetModel() string

	// SetModel updates the model to use for subsequent requests.
	SetModel(model string)
}

// TokenEstimator provides pluggable token estimation strategies.
type TokenEstimator interface {
	// EstimateTokens returns an approximate token count for the given text.
	EstimateTokens(text string) int
}

// ClientConfig holds all configuration options for creating an LLM client.
type ClientConfig struct {
	// APIKey authenticates requests to the LLM provider.
	APIKey string

	// Model specifies which LLM model or deployment to use for requests.
	Model string

	// BaseURL overrides the default API endpoint for the provider.
	// It is required for Azure-hosted deployments.
	BaseURL string

	// APIVersion selects the service API version for Azure-hosted
	// deployments. Other providers ignore it.
	APIVersion string

	// Timeout sets the maximum duration for individual HTTP requests.
	// Zero value means no timeout.
	Timeout time.Duration

	// TokenEstimator provides custom token counting logic.
	// If nil, a simple character-based estimator is used.
	TokenEstimator TokenEstimator

	// Middleware allows custom middleware insertion.
	// The first middleware in the slice is the outermost.
	Middleware []Middleware
}

// Middleware wraps a CoreLLM implementation to add cross-cutting functionality.
// This pattern allows composition of features like rate limiting, circuit breaking,
// metrics collection, and custom behavior without modifying core provider logic.
type Middleware func(CoreLLM) CoreLLM

// Errors returned while constructing a client.
var (
	ErrMissingModel    = errors.New("model is required")
	ErrUnknownProvider = errors.New("unknown provider")
)

// Client implements ports.ChatClient on top of a middleware-wrapped CoreLLM.
type Client struct {
	core      CoreLLM
	estimator TokenEstimator
	now       func() time.Time
}

// NewClient creates a new chat client with the specified provider and configuration.
// This function assembles the middleware chain and validates configuration
// before returning a ready-to-use client instance.
func NewClient(providerType string, config ClientConfig) (*Client, error) {
	if config.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}
	if config.Model == "" {
		return nil, ErrMissingModel
	}

	factory, ok := lookupProviderFactory(providerType)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, providerType)
	}

	core, err := factory(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider: %w", err)
	}

	return NewClientFromCore(core, config.TokenEstimator, config.Middleware...), nil
}

// NewClientFromCore wraps an existing CoreLLM with middleware.
// The first middleware is the outermost. A nil estimator selects
// SimpleTokenEstimator.
func NewClientFromCore(core CoreLLM, estimator TokenEstimator, middleware ...Middleware) *Client {
	// Apply middleware in reverse order so the first middleware is the outermost.
	for i := len(middleware) - 1; i >= 0; i-- {
		core = middleware[i](core)
	}
	if estimator == nil {
		estimator = &SimpleTokenEstimator{}
	}
	return &Client{core: core, estimator: estimator, now: time.Now}
}

// Chat sends the conversation and returns the model's reply with token usage.
// The request is made exactly once unless a retry middleware is configured.
func (c *Client) Chat(
	ctx context.Context,
	conv domain.Conversation,
	opts domain.ChatOptions,
) (domain.ChatResponse, error) {
	text, tokensIn, tokensOut, err := c.core.DoRequest(ctx, conv.Messages(), ChatOptionsToMap(opts))
	if err != nil {
		return domain.ChatResponse{}, err
	}
	return domain.ChatResponse{
		Text:      text,
		ModelID:   c.core.GetModel(),
		Usage:     domain.Usage{InputTokens: tokensIn, OutputTokens: tokensOut},
		CreatedAt: c.now().UTC(),
	}, nil
}

// EstimateTokens returns an approximate token count for the given text.
func (c *Client) EstimateTokens(text string) (int, error) {
	return c.estimator.EstimateTokens(text), nil
}

// GetModel returns the currently configured model name from the underlying provider.
func (c *Client) GetModel() string { return c.core.GetModel() }

// SimpleTokenEstimator provides basic character-based token estimation
// of roughly four characters per token.
type SimpleTokenEstimator struct{}

// EstimateTokens returns an approximate token count using character-based heuristics.
func (e *SimpleTokenEstimator) EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// ProviderFactory creates a CoreLLM implementation from configuration.
type ProviderFactory func(ClientConfig) (CoreLLM, error)

// providerFactories is populated by each provider's init function.
var (
	providerMu        sync.RWMutex
	providerFactories = map[string]ProviderFactory{}
)

// RegisterProviderFactory allows registration of custom LLM provider factories.
// This enables extension of the client with additional providers
// without modifying the core library code. The returned func restores
// whatever was registered under providerType before.
func RegisterProviderFactory(providerType string, factory ProviderFactory) (restore func()) {
	providerMu.Lock()
	defer providerMu.Unlock()
	prev, had := providerFactories[providerType]
	providerFactories[providerType] = factory
	return func() {
		providerMu.Lock()
		defer providerMu.Unlock()
		if had {
			providerFactories[providerType] = prev
		} else {
			delete(providerFactories, providerType)
		}
	}
}

func lookupProviderFactory(providerType string) (ProviderFactory, bool) {
	providerMu.RLock()
	defer providerMu.RUnlock()
	f, ok := providerFactories[providerType]
	return f, ok
}

// RegisteredProviders returns the names of all registered providers in
// sorted order.
func RegisteredProviders() []string {
	providerMu.RLock()
	defer providerMu.RUnlock()
	names := make([]string, 0, len(providerFactories))
	for name := range providerFactories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
