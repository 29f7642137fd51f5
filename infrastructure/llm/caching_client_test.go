package llm

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

type mapCache struct {
	mu      sync.Mutex
	data    map[string][]byte
	ttls    map[string]time.Duration
	getErr  error
	deletes int
}

func newMapCache() *mapCache {
	return &mapCache{data: make(map[string][]byte), ttls: make(map[string]time.Duration)}
}

func (c *mapCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *mapCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	c.ttls[key] = ttl
	return nil
}

func (c *mapCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	c.deletes++
	return nil
}

func (c *mapCache) Clear(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[string][]byte)
	return nil
}

func TestCachingChatClient_HitSkipsRemoteCall(t *testing.T) {
	mock := NewMockCoreLLM()
	mock.Response = "The Moon averages 238,900 miles from Earth."
	inner := NewClientFromCore(mock, nil)
	store := newMapCache()
	client := NewCachingChatClient(inner, store, time.Hour, nil)

	conv := domain.NewConversation(testMessages...)
	opts := domain.DefaultChatOptions()

	first, err := client.Chat(context.Background(), conv, opts)
	require.NoError(t, err)
	second, err := client.Chat(context.Background(), conv, opts)
	require.NoError(t, err)

	assert.Equal(t, 1, mock.GetCallCount(), "second identical request must be served from cache")
	assert.False(t, first.Cached)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Text, second.Text)
	assert.Equal(t, first.Usage, second.Usage)
	assert.Equal(t, first.ModelID, second.ModelID)
	for _, ttl := range store.ttls {
		assert.Equal(t, time.Hour, ttl)
	}
}

func TestCachingChatClient_DistinctRequestsMiss(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(conv domain.Conversation, opts domain.ChatOptions) (domain.Conversation, domain.ChatOptions)
	}{
		{
			name: "different question",
			mutate: func(conv domain.Conversation, opts domain.ChatOptions) (domain.Conversation, domain.ChatOptions) {
				return domain.NewConversation(domain.UserMessage("How far is Venus?")), opts
			},
		},
		{
			name: "different temperature",
			mutate: func(conv domain.Conversation, opts domain.ChatOptions) (domain.Conversation, domain.ChatOptions) {
				temp := 0.7
				opts.Temperature = &temp
				return conv, opts
			},
		},
		{
			name: "different response format",
			mutate: func(conv domain.Conversation, opts domain.ChatOptions) (domain.Conversation, domain.ChatOptions) {
				opts.ResponseFormat = domain.ResponseFormatJSON
				return conv, opts
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := NewMockCoreLLM()
			client := NewCachingChatClient(NewClientFromCore(mock, nil), newMapCache(), 0, nil)
			conv := domain.NewConversation(testMessages...)
			opts := domain.DefaultChatOptions()

			_, err := client.Chat(context.Background(), conv, opts)
			require.NoError(t, err)
			conv2, opts2 := tt.mutate(conv, opts)
			resp, err := client.Chat(context.Background(), conv2, opts2)
			require.NoError(t, err)

			assert.False(t, resp.Cached)
			assert.Equal(t, 2, mock.GetCallCount())
		})
	}
}

func TestCachingChatClient_ErrorsAreNotCached(t *testing.T) {
	mock := NewMockCoreLLM()
	mock.FailUntilAttempt = 1
	store := newMapCache()
	client := NewCachingChatClient(NewClientFromCore(mock, nil), store, 0, nil)
	conv := domain.NewConversation(testMessages...)

	_, err := client.Chat(context.Background(), conv, domain.DefaultChatOptions())
	require.Error(t, err)
	assert.Empty(t, store.data)

	resp, err := client.Chat(context.Background(), conv, domain.DefaultChatOptions())
	require.NoError(t, err)
	assert.False(t, resp.Cached)
	assert.Equal(t, 2, mock.GetCallCount())
}

func TestCachingChatClient_StoreFailuresDegrade(t *testing.T) {
	mock := NewMockCoreLLM()
	store := newMapCache()
	store.getErr = errors.New("disk unavailable")
	client := NewCachingChatClient(NewClientFromCore(mock, nil), store, 0, nil)

	resp, err := client.Chat(context.Background(), domain.NewConversation(testMessages...), domain.DefaultChatOptions())

	require.NoError(t, err)
	assert.Equal(t, "test response", resp.Text)
	assert.Equal(t, 1, mock.GetCallCount())
}

func TestCachingChatClient_CorruptedEntryIsReplaced(t *testing.T) {
	mock := NewMockCoreLLM()
	store := newMapCache()
	client := NewCachingChatClient(NewClientFromCore(mock, nil), store, 0, nil)
	opts := domain.DefaultChatOptions()

	key, err := CacheKey(mock.GetModel(), testMessages, opts)
	require.NoError(t, err)
	store.data[key] = []byte("{not json")

	resp, err := client.Chat(context.Background(), domain.NewConversation(testMessages...), opts)

	require.NoError(t, err)
	assert.False(t, resp.Cached)
	assert.Equal(t, 1, store.deletes)
	assert.NotEqual(t, "{not json", string(store.data[key]))
}

func TestCacheKey(t *testing.T) {
	opts := domain.DefaultChatOptions()

	a, err := CacheKey("gpt-4o", testMessages, opts)
	require.NoError(t, err)
	b, err := CacheKey("gpt-4o", testMessages, opts)
	require.NoError(t, err)
	other, err := CacheKey("gpt-4o-mini", testMessages, opts)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
	assert.NotEqual(t, a, other, "model is part of the key")
}
