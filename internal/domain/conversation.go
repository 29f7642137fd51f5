// Package domain contains pure, dependency-free domain models and types
// for the quality gate: conversations, chat responses, metrics and the
// records produced when a scenario is evaluated.
package domain

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Role identifies the author of a message within a Conversation.
type Role string

// Supported conversation roles.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// IsValid reports whether r is one of the supported roles.
func (r Role) IsValid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	default:
		return false
	}
}

// Message is a single role-tagged turn in a conversation.
type Message struct {
	// Role identifies who authored the message.
	Role Role `json:"role" yaml:"role"`

	// Content contains the message text.
	Content string `json:"content" yaml:"content"`
}

// SystemMessage returns a system-role message.
func SystemMessage(content string) Message { return Message{Role: RoleSystem, Content: content} }

// UserMessage returns a user-role message.
func UserMessage(content string) Message { return Message{Role: RoleUser, Content: content} }

// AssistantMessage returns an assistant-role message.
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// Conversation is an ordered, immutable sequence of messages.
// The zero value is an empty conversation. A Conversation never exposes its
// backing slice, so it can be shared across goroutines once built.
type Conversation struct {
	messages []Message
}

// NewConversation creates a Conversation from the given messages.
// The input slice is copied; later changes to it do not affect the
// conversation.
func NewConversation(messages ...Message) Conversation {
	return Conversation{messages: slices.Clone(messages)}
}

// Messages returns a copy of the conversation's messages in order.
func (c Conversation) Messages() []Message { return slices.Clone(c.messages) }

// Len returns the number of messages in the conversation.
func (c Conversation) Len() int { return len(c.messages) }

// With returns a new Conversation with msg appended. The receiver is left
// unchanged.
func (c Conversation) With(msg Message) Conversation {
	next := make([]Message, 0, len(c.messages)+1)
	next = append(next, c.messages...)
	next = append(next, msg)
	return Conversation{messages: next}
}

// SystemPrompt returns the concatenated content of all system messages.
func (c Conversation) SystemPrompt() string {
	var parts []string
	for _, m := range c.messages {
		if m.Role == RoleSystem {
			parts = append(parts, m.Content)
		}
	}
	return strings.Join(parts, "\n\n")
}

// LastUserMessage returns the most recent user message and true, or an empty
// message and false if the conversation has no user turn.
func (c Conversation) LastUserMessage() (Message, bool) {
	for i := len(c.messages) - 1; i >= 0; i-- {
		if c.messages[i].Role == RoleUser {
			return c.messages[i], true
		}
	}
	return Message{}, false
}

// Validate checks that the conversation can be sent to a chat service.
// It reports every problem found rather than stopping at the first.
func (c Conversation) Validate() error {
	verr := NewValidationError("conversation")
	if len(c.messages) == 0 {
		verr.AddError("conversation must contain at least one message")
	}
	for i, m := range c.messages {
		if !m.Role.IsValid() {
			verr.AddError(fmt.Sprintf("message %d has unknown role %q", i, m.Role))
		}
		if strings.TrimSpace(m.Content) == "" {
			verr.AddError(fmt.Sprintf("message %d has empty content", i))
		}
	}
	if _, ok := c.LastUserMessage(); len(c.messages) > 0 && !ok {
		verr.AddError("conversation must contain a user message")
	}
	if verr.HasErrors() {
		return verr
	}
	return nil
}

// ResponseFormat selects the shape of the model's reply.
type ResponseFormat string

// Supported response formats.
const (
	ResponseFormatText ResponseFormat = "text"
	ResponseFormatJSON ResponseFormat = "json_object"
)

// ChatOptions holds the generation parameters sent with a chat request.
type ChatOptions struct {
	// Temperature controls sampling randomness. Nil leaves the provider
	// default in place.
	Temperature *float64 `json:"temperature,omitempty" yaml:"temperature"`

	// ResponseFormat requests plain text or a JSON object.
	ResponseFormat ResponseFormat `json:"response_format,omitempty" yaml:"response_format"`

	// MaxTokens limits the reply length. Zero uses the provider default.
	MaxTokens int `json:"max_tokens,omitempty" yaml:"max_tokens"`
}

// DefaultChatOptions returns deterministic plain-text options:
// temperature 0.0 and a text response format.
func DefaultChatOptions() ChatOptions {
	temp := 0.0
	return ChatOptions{
		Temperature:    &temp,
		ResponseFormat: ResponseFormatText,
	}
}

// Usage reports the token consumption of a single chat request.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// TotalTokens returns the sum of input and output tokens.
func (u Usage) TotalTokens() int { return u.InputTokens + u.OutputTokens }

// ChatResponse is the model's reply to a conversation.
type ChatResponse struct {
	// Text is the reply content.
	Text string `json:"text"`

	// ModelID identifies the model that produced the reply.
	ModelID string `json:"model_id"`

	// Usage reports token consumption for the request.
	Usage Usage `json:"usage"`

	// Cached is true when the reply was served from a response cache
	// instead of the remote service.
	Cached bool `json:"cached,omitempty"`

	// CreatedAt records when the reply was received.
	CreatedAt time.Time `json:"created_at"`
}

// AsMessage returns the reply as an assistant message.
func (r ChatResponse) AsMessage() Message { return AssistantMessage(r.Text) }
