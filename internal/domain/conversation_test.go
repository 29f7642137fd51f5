package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversation_Immutable(t *testing.T) {
	msgs := []Message{SystemMessage("You are an astronomy expert."), UserMessage("How far is Venus?")}
	conv := NewConversation(msgs...)

	msgs[1].Content = "changed"
	assert.Equal(t, "How far is Venus?", conv.Messages()[1].Content, "input slice must be copied")

	out := conv.Messages()
	out[0].Content = "changed"
	assert.Equal(t, "You are an astronomy expert.", conv.Messages()[0].Content, "output slice must be a copy")

	next := conv.With(AssistantMessage("About 38 million km at its closest."))
	assert.Equal(t, 2, conv.Len())
	assert.Equal(t, 3, next.Len())
}

func TestConversation_Accessors(t *testing.T) {
	conv := NewConversation(
		SystemMessage("a"),
		UserMessage("first"),
		SystemMessage("b"),
		AssistantMessage("reply"),
		UserMessage("second"),
	)

	assert.Equal(t, "a\n\nb", conv.SystemPrompt())
	last, ok := conv.LastUserMessage()
	require.True(t, ok)
	assert.Equal(t, "second", last.Content)

	_, ok = NewConversation(SystemMessage("only")).LastUserMessage()
	assert.False(t, ok)
}

func TestConversation_Validate(t *testing.T) {
	tests := []struct {
		name      string
		conv      Conversation
		wantErrs  int
		wantValid bool
	}{
		{
			name:      "valid",
			conv:      NewConversation(SystemMessage("sys"), UserMessage("hi")),
			wantValid: true,
		},
		{
			name:     "empty",
			conv:     NewConversation(),
			wantErrs: 1,
		},
		{
			name:     "bad role and empty content",
			conv:     NewConversation(Message{Role: "tool", Content: " "}, UserMessage("hi")),
			wantErrs: 2,
		},
		{
			name:     "no user turn",
			conv:     NewConversation(SystemMessage("sys")),
			wantErrs: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.conv.Validate()
			if tt.wantValid {
				assert.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Len(t, verr.Errors, tt.wantErrs)
		})
	}
}

func TestDefaultChatOptions(t *testing.T) {
	opts := DefaultChatOptions()
	require.NotNil(t, opts.Temperature)
	assert.Equal(t, 0.0, *opts.Temperature)
	assert.Equal(t, ResponseFormatText, opts.ResponseFormat)

	resp := ChatResponse{Text: "hello", Usage: Usage{InputTokens: 3, OutputTokens: 4}}
	assert.Equal(t, 7, resp.Usage.TotalTokens())
	assert.Equal(t, AssistantMessage("hello"), resp.AsMessage())
}
