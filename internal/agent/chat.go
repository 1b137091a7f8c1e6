package agent

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/aihub/ragbot/internal/config"
	apperrors "github.com/aihub/ragbot/internal/errors"
	"github.com/aihub/ragbot/internal/logger"
	"github.com/aihub/ragbot/internal/metrics"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const (
	defaultChatTemperature = 0.2
	defaultHistoryLimit    = 20
	defaultHistoryTTL      = 24 * time.Hour
)

// ChatMemory 会话历史存储，cache.RedisChatHistory 与 MemoryHistory 满足该接口
type ChatMemory interface {
	Load(ctx context.Context, sessionID string) ([]openai.ChatCompletionMessage, error)
	Save(ctx context.Context, sessionID string, messages []openai.ChatCompletionMessage, ttl time.Duration) error
}

// ChatAgent 不检索向量库的自由对话，按会话保留历史
type ChatAgent struct {
	model        ChatModel
	memory       ChatMemory
	modelName    string
	temperature  float32
	historyLimit int
	historyTTL   time.Duration
}

// NewChatAgent 创建对话智能体，memory 为 nil 时使用进程内存
func NewChatAgent(model ChatModel, memory ChatMemory, cfg config.ChatConfig) *ChatAgent {
	if memory == nil {
		memory = NewMemoryHistory()
	}
	c := &ChatAgent{
		model:        model,
		memory:       memory,
		modelName:    cfg.Model,
		temperature:  cfg.Temperature,
		historyLimit: cfg.HistoryLimit,
		historyTTL:   cfg.HistoryTTL,
	}
	if c.modelName == "" {
		c.modelName = defaultModel
	}
	if c.temperature <= 0 {
		c.temperature = defaultChatTemperature
	}
	if c.historyLimit <= 0 {
		c.historyLimit = defaultHistoryLimit
	}
	if c.historyTTL <= 0 {
		c.historyTTL = defaultHistoryTTL
	}
	return c
}

// Ask 在会话上下文中回答，sessionID 为空时不读写历史
func (c *ChatAgent) Ask(ctx context.Context, sessionID, input string) (string, error) {
	if strings.TrimSpace(input) == "" {
		return "", apperrors.NewInvalidInputError("message", "is empty")
	}

	var history []openai.ChatCompletionMessage
	if sessionID != "" {
		loaded, err := c.memory.Load(ctx, sessionID)
		if err != nil {
			logger.Warn("failed to load chat history", zap.String("session_id", sessionID), zap.Error(err))
		}
		history = loaded
	}

	user := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: input}
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: architectPrompt})
	messages = append(messages, history...)
	messages = append(messages, user)

	reply, err := completion(ctx, c.model, openai.ChatCompletionRequest{
		Model:       c.modelName,
		Temperature: c.temperature,
		Messages:    messages,
	})
	if err != nil {
		metrics.ChatTurns.WithLabelValues("error").Inc()
		return "", apperrors.Wrap(apperrors.ErrCodeSynthesis, "chat completion failed", err)
	}
	metrics.ChatTurns.WithLabelValues("answered").Inc()

	if sessionID != "" {
		history = trimHistory(append(history, user, reply), c.historyLimit)
		if err := c.memory.Save(ctx, sessionID, history, c.historyTTL); err != nil {
			logger.Warn("failed to save chat history", zap.String("session_id", sessionID), zap.Error(err))
		}
	}
	return reply.Content, nil
}

// trimHistory 保留最近的 limit 条消息，且从用户消息开始
func trimHistory(history []openai.ChatCompletionMessage, limit int) []openai.ChatCompletionMessage {
	if len(history) <= limit {
		return history
	}
	history = history[len(history)-limit:]
	for len(history) > 0 && history[0].Role != openai.ChatMessageRoleUser {
		history = history[1:]
	}
	return append([]openai.ChatCompletionMessage(nil), history...)
}

// MemoryHistory 进程内会话历史，过期会话在读取时清理
type MemoryHistory struct {
	mu       sync.Mutex
	now      func() time.Time
	sessions map[string]memorySession
}

type memorySession struct {
	messages  []openai.ChatCompletionMessage
	expiresAt time.Time
}

// NewMemoryHistory 创建进程内历史存储
func NewMemoryHistory() *MemoryHistory {
	return &MemoryHistory{now: time.Now, sessions: make(map[string]memorySession)}
}

func (m *MemoryHistory) Load(_ context.Context, sessionID string) ([]openai.ChatCompletionMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for id, s := range m.sessions {
		if now.After(s.expiresAt) {
			delete(m.sessions, id)
		}
	}
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	return append([]openai.ChatCompletionMessage(nil), s.messages...), nil
}

func (m *MemoryHistory) Save(_ context.Context, sessionID string, messages []openai.ChatCompletionMessage, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sessionID] = memorySession{
		messages:  append([]openai.ChatCompletionMessage(nil), messages...),
		expiresAt: m.now().Add(ttl),
	}
	return nil
}
