package agent

import (
	"context"
	"errors"
	"time"

	"github.com/aihub/ragbot/internal/config"
	"github.com/aihub/ragbot/internal/logger"
	openai "github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// ChatModel 对话补全接口，*openai.Client 直接满足
type ChatModel interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// BreakerChatModel 熔断包装，连续失败达到阈值后快速失败
type BreakerChatModel struct {
	inner   ChatModel
	breaker *gobreaker.CircuitBreaker
}

// NewBreakerChatModel 创建带熔断的对话模型
func NewBreakerChatModel(inner ChatModel, cfg config.BreakerConfig) *BreakerChatModel {
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	timeout := cfg.OpenTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "ChatCompletion",
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})

	return &BreakerChatModel{inner: inner, breaker: breaker}
}

func (m *BreakerChatModel) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	out, err := m.breaker.Execute(func() (interface{}, error) {
		return m.inner.CreateChatCompletion(ctx, req)
	})
	if err != nil {
		return openai.ChatCompletionResponse{}, err
	}
	return out.(openai.ChatCompletionResponse), nil
}

// State 当前熔断状态
func (m *BreakerChatModel) State() gobreaker.State {
	return m.breaker.State()
}

// NewChatModel 按配置决定是否包装熔断
func NewChatModel(client ChatModel, cfg config.ChatConfig) ChatModel {
	if cfg.Breaker.Enabled {
		return NewBreakerChatModel(client, cfg.Breaker)
	}
	return client
}
