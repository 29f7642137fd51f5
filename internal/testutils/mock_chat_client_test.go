package testutils

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-qualitygate/internal/domain"
)

func TestMockChatClient_Chat(t *testing.T) {
	boom := errors.New("boom")
	client := NewMockChatClient("mock-model").
		On("venus", "Venus is about 24 million miles away at its closest.").
		OnError("explode", boom).
		On("moon", "The Moon averages 238,900 miles away.")

	tests := []struct {
		name    string
		message string
		want    string
		wantErr error
	}{
		{name: "first rule", message: "How far is VENUS?", want: "Venus is about 24 million miles away at its closest."},
		{name: "later rule", message: "How far is the Moon?", want: "The Moon averages 238,900 miles away."},
		{name: "error rule", message: "please explode", wantErr: boom},
		{name: "fallback", message: "Hello", want: DefaultMockReply},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := client.Chat(context.Background(),
				domain.NewConversation(domain.UserMessage(tt.message)), domain.DefaultChatOptions())
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.Text)
			assert.Equal(t, "mock-model", resp.ModelID)
			assert.Positive(t, resp.Usage.InputTokens)
			assert.Positive(t, resp.Usage.OutputTokens)
		})
	}
	assert.Equal(t, len(tests), client.CallCount())
}

func TestMockChatClient_FirstMatchWins(t *testing.T) {
	client := NewMockChatClient("m").On("moon", "first").On("moon", "second")

	resp, err := client.Chat(context.Background(), domain.NewConversation(domain.UserMessage("moon")), domain.ChatOptions{})

	require.NoError(t, err)
	assert.Equal(t, "first", resp.Text)
}

func TestMockChatClient_RecordsCalls(t *testing.T) {
	client := NewMockChatClient("m")
	conv := domain.NewConversation(domain.SystemMessage("sys"), domain.UserMessage("q"))
	opts := domain.DefaultChatOptions()

	_, err := client.Chat(context.Background(), conv, opts)
	require.NoError(t, err)

	calls := client.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, conv.Messages(), calls[0].Conversation.Messages())
	assert.Equal(t, opts, calls[0].Options)
}

func TestMockChatClient_ContextAndValidation(t *testing.T) {
	client := NewMockChatClient("m").WithDelay(time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := client.Chat(ctx, domain.NewConversation(domain.UserMessage("q")), domain.ChatOptions{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	_, err = client.Chat(context.Background(), domain.NewConversation(), domain.ChatOptions{})
	assert.Error(t, err)
}

func TestMockChatClient_Concurrent(t *testing.T) {
	client := NewMockChatClient("m")
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = client.Chat(context.Background(), domain.NewConversation(domain.UserMessage("q")), domain.ChatOptions{})
		}()
	}
	wg.Wait()
	assert.Equal(t, 20, client.CallCount())
}

func TestMockChatClient_EstimateTokens(t *testing.T) {
	client := NewMockChatClient("m")
	for text, want := range map[string]int{"": 0, "hi": 1, "sixteen chars!!!": 4} {
		got, err := client.EstimateTokens(text)
		require.NoError(t, err)
		assert.Equal(t, want, got, text)
	}
}

func TestJudgeReply(t *testing.T) {
	assert.JSONEq(t,
		`{"score":5,"confidence":0.9,"reasoning":"clear"}`,
		JudgeReply(5, 0.9, "clear"))
}
