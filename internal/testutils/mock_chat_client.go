// Package testutils provides deterministic test doubles for the quality
// gate: a scripted chat client usable as the model under test or as the
// judge, plus canned judge replies.
package testutils

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ahrav/go-qualitygate/internal/domain"
	"github.com/ahrav/go-qualitygate/internal/ports"
)

var _ ports.ChatClient = (*MockChatClient)(nil)

// DefaultMockReply is returned when no rule matches.
const DefaultMockReply = "This is a standard response for testing purposes with moderate length and complexity."

// MockCall records one Chat invocation.
type MockCall struct {
	Conversation domain.Conversation
	Options      domain.ChatOptions
}

type mockRule struct {
	pattern string
	reply   string
	err     error
}

// MockChatClient implements ports.ChatClient with scripted replies chosen
// by case-insensitive substring match over the conversation text. Rules
// are tried in the order they were added; the first match wins. It is safe
// for concurrent use.
type MockChatClient struct {
	mu       sync.Mutex
	model    string
	rules    []mockRule
	fallback string
	delay    time.Duration
	calls    []MockCall
}

// NewMockChatClient returns a client reporting model that answers every
// request with DefaultMockReply until rules are added.
func NewMockChatClient(model string) *MockChatClient {
	return &MockChatClient{model: model, fallback: DefaultMockReply}
}

// On makes requests containing pattern return reply.
func (m *MockChatClient) On(pattern, reply string) *MockChatClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, mockRule{pattern: strings.ToLower(pattern), reply: reply})
	return m
}

// OnError makes requests containing pattern fail with err.
func (m *MockChatClient) OnError(pattern string, err error) *MockChatClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, mockRule{pattern: strings.ToLower(pattern), err: err})
	return m
}

// WithDefault sets the reply used when no rule matches.
func (m *MockChatClient) WithDefault(reply string) *MockChatClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = reply
	return m
}

// WithDelay makes every call wait d, or until the context ends.
func (m *MockChatClient) WithDelay(d time.Duration) *MockChatClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// Chat implements ports.ChatClient.
func (m *MockChatClient) Chat(ctx context.Context, conv domain.Conversation, opts domain.ChatOptions) (domain.ChatResponse, error) {
	if err := ctx.Err(); err != nil {
		return domain.ChatResponse{}, err
	}
	if conv.Len() == 0 {
		return domain.ChatResponse{}, fmt.Errorf("conversation cannot be empty")
	}

	m.mu.Lock()
	m.calls = append(m.calls, MockCall{Conversation: conv, Options: opts})
	delay := m.delay
	reply, err := m.match(conv)
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return domain.ChatResponse{}, ctx.Err()
		}
	}
	if err != nil {
		return domain.ChatResponse{}, err
	}

	var prompt strings.Builder
	for _, msg := range conv.Messages() {
		prompt.WriteString(msg.Content)
	}
	in, _ := m.EstimateTokens(prompt.String())
	out, _ := m.EstimateTokens(reply)

	return domain.ChatResponse{
		Text:      reply,
		ModelID:   m.model,
		Usage:     domain.Usage{InputTokens: in, OutputTokens: out},
		CreatedAt: time.Now().UTC(),
	}, nil
}

// match must be called with mu held.
func (m *MockChatClient) match(conv domain.Conversation) (string, error) {
	var text strings.Builder
	for _, msg := range conv.Messages() {
		text.WriteString(strings.ToLower(msg.Content))
		text.WriteByte('\n')
	}
	haystack := text.String()
	for _, r := range m.rules {
		if strings.Contains(haystack, r.pattern) {
			return r.reply, r.err
		}
	}
	return m.fallback, nil
}

// EstimateTokens approximates four characters per token, with a minimum
// of one token for non-empty text.
func (m *MockChatClient) EstimateTokens(text string) (int, error) {
	if text == "" {
		return 0, nil
	}
	return max(len(text)/4, 1), nil
}

// GetModel returns the configured model identifier.
func (m *MockChatClient) GetModel() string { return m.model }

// Calls returns a copy of every recorded invocation.
func (m *MockChatClient) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockCall(nil), m.calls...)
}

// CallCount returns the number of Chat invocations.
func (m *MockChatClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// JudgeReply renders the JSON verdict a judge model is expected to return.
func JudgeReply(score, confidence float64, reasoning string) string {
	b, err := json.Marshal(struct {
		Score      float64 `json:"score"`
		Confidence float64 `json:"confidence"`
		Reasoning  string  `json:"reasoning"`
	}{score, confidence, reasoning})
	if err != nil {
		panic(err)
	}
	return string(b)
}
