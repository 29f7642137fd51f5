// Package application runs quality-gate scenarios: it sends a conversation
// to the model under test, scores the reply with a gate of evaluators and
// checks the scores against assertion rules. Suites of scenarios are loaded
// from YAML and executed with bounded parallelism.
package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ahrav/go-qualitygate/internal/domain"
	"github.com/ahrav/go-qualitygate/internal/ports"
)

// ConversationRunner sends a conversation to the model under test exactly
// once. Retries belong to the client's middleware chain, not here.
type ConversationRunner struct {
	client  ports.ChatClient
	options domain.ChatOptions
	logger  *slog.Logger
}

// NewConversationRunner returns a runner using domain.DefaultChatOptions.
func NewConversationRunner(client ports.ChatClient, logger *slog.Logger) *ConversationRunner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &ConversationRunner{client: client, options: domain.DefaultChatOptions(), logger: logger}
}

// WithOptions returns a copy of the runner that sends opts instead.
func (r *ConversationRunner) WithOptions(opts domain.ChatOptions) *ConversationRunner {
	cp := *r
	cp.options = opts
	return &cp
}

// Options returns the chat options sent with every request.
func (r *ConversationRunner) Options() domain.ChatOptions { return r.options }

// Run validates conv and returns the model's reply. Any client failure is
// returned as a *domain.ChatServiceError.
func (r *ConversationRunner) Run(ctx context.Context, conv domain.Conversation) (domain.ChatResponse, error) {
	if r.client == nil {
		return domain.ChatResponse{}, &domain.MissingConfigurationError{Keys: []string{"chat client"}}
	}
	if err := conv.Validate(); err != nil {
		return domain.ChatResponse{}, fmt.Errorf("invalid conversation: %w", err)
	}

	start := time.Now()
	resp, err := r.client.Chat(ctx, conv, r.options)
	latency := time.Since(start)
	if err != nil {
		cse := domain.NewChatServiceError(r.client.GetModel(), err)
		r.logger.WarnContext(ctx, "chat request failed",
			"model", cse.Model,
			"failure_kind", cse.Kind,
			"status_code", cse.StatusCode,
			"latency_ms", latency.Milliseconds(),
			"error", err,
		)
		return domain.ChatResponse{}, cse
	}

	r.logger.DebugContext(ctx, "chat response received",
		"model", resp.ModelID,
		"latency_ms", latency.Milliseconds(),
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
		"cached", resp.Cached,
	)
	return resp, nil
}
