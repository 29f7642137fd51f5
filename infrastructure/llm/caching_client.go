package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gowebpki/jcs"

	"github.com/ahrav/go-qualitygate/internal/domain"
	"github.com/ahrav/go-qualitygate/internal/ports"
)

var _ ports.ChatClient = (*CachingChatClient)(nil)

// cacheKeyVersion is mixed into every key so a change to the cached payload
// layout invalidates old entries.
const cacheKeyVersion = "chat/v1"

// CachingChatClient wraps a ChatClient with a response cache. Identical
// requests (same model, messages and options) are answered from the store
// and marked Cached; misses are forwarded to the wrapped client and stored.
// Failed requests are never cached.
type CachingChatClient struct {
	client ports.ChatClient
	store  ports.CacheStore
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachingChatClient creates a caching decorator around client. A zero
// ttl keeps entries until the store evicts them.
func NewCachingChatClient(client ports.ChatClient, store ports.CacheStore, ttl time.Duration, logger *slog.Logger) *CachingChatClient {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &CachingChatClient{client: client, store: store, ttl: ttl, logger: logger}
}

// Chat returns a cached reply when one exists for the request, otherwise it
// calls the wrapped client. Store failures degrade to an uncached call.
func (c *CachingChatClient) Chat(ctx context.Context, conv domain.Conversation, opts domain.ChatOptions) (domain.ChatResponse, error) {
	key, err := CacheKey(c.client.GetModel(), conv.Messages(), opts)
	if err != nil {
		c.logger.WarnContext(ctx, "cache key computation failed", "error", err)
		return c.client.Chat(ctx, conv, opts)
	}

	if resp, ok := c.lookup(ctx, key); ok {
		return resp, nil
	}

	resp, err := c.client.Chat(ctx, conv, opts)
	if err != nil {
		return domain.ChatResponse{}, err
	}

	c.save(ctx, key, resp)
	return resp, nil
}

func (c *CachingChatClient) lookup(ctx context.Context, key string) (domain.ChatResponse, bool) {
	data, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.WarnContext(ctx, "cache read failed", "key", key, "error", err)
		return domain.ChatResponse{}, false
	}
	if !ok {
		return domain.ChatResponse{}, false
	}

	var resp domain.ChatResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		c.logger.WarnContext(ctx, "discarding corrupted cache entry", "key", key, "error", err)
		if derr := c.store.Delete(ctx, key); derr != nil && !errors.Is(derr, ports.ErrCacheCorrupted) {
			c.logger.DebugContext(ctx, "cache delete failed", "key", key, "error", derr)
		}
		return domain.ChatResponse{}, false
	}

	resp.Cached = true
	c.logger.DebugContext(ctx, "cache hit", "key", key, "model", resp.ModelID)
	return resp, true
}

func (c *CachingChatClient) save(ctx context.Context, key string, resp domain.ChatResponse) {
	resp.Cached = false
	data, err := json.Marshal(resp)
	if err != nil {
		c.logger.WarnContext(ctx, "cache encode failed", "key", key, "error", err)
		return
	}
	if err := c.store.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.WarnContext(ctx, "cache write failed", "key", key, "error", err)
	}
}

// EstimateTokens delegates to the wrapped client.
func (c *CachingChatClient) EstimateTokens(text string) (int, error) {
	return c.client.EstimateTokens(text)
}

// GetModel delegates to the wrapped client.
func (c *CachingChatClient) GetModel() string { return c.client.GetModel() }

type cacheKeyPayload struct {
	Version  string             `json:"version"`
	Model    string             `json:"model"`
	Messages []domain.Message   `json:"messages"`
	Options  domain.ChatOptions `json:"options"`
}

// CacheKey derives a stable cache key from the request. The payload is
// canonicalised with RFC 8785 JSON before hashing so field order and number
// formatting cannot produce distinct keys for the same request.
func CacheKey(model string, messages []domain.Message, opts domain.ChatOptions) (string, error) {
	raw, err := json.Marshal(cacheKeyPayload{
		Version:  cacheKeyVersion,
		Model:    model,
		Messages: messages,
		Options:  opts,
	})
	if err != nil {
		return "", fmt.Errorf("encode cache key payload: %w", err)
	}

	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize cache key payload: %w", err)
	}

	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
