package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	openai "github.com/sashabaranov/go-openai"
)

const chatKeyPrefix = "ragbot:chat:"

// RedisChatHistory 以 JSON 保存会话历史，每次写入刷新过期时间
type RedisChatHistory struct {
	client redis.Cmdable
}

// NewRedisChatHistory 创建会话历史存储
func NewRedisChatHistory(client redis.Cmdable) *RedisChatHistory {
	return &RedisChatHistory{client: client}
}

// Load 读取会话历史，会话不存在时返回空
func (h *RedisChatHistory) Load(ctx context.Context, sessionID string) ([]openai.ChatCompletionMessage, error) {
	data, err := h.client.Get(ctx, chatKeyPrefix+sessionID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var messages []openai.ChatCompletionMessage
	if err := json.Unmarshal(data, &messages); err != nil {
		return nil, fmt.Errorf("corrupted chat history %s: %w", sessionID, err)
	}
	return messages, nil
}

// Save 覆盖会话历史
func (h *RedisChatHistory) Save(ctx context.Context, sessionID string, messages []openai.ChatCompletionMessage, ttl time.Duration) error {
	data, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("failed to encode chat history: %w", err)
	}
	return h.client.Set(ctx, chatKeyPrefix+sessionID, data, ttl).Err()
}
