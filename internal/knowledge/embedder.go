package knowledge

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aihub/ragbot/internal/config"
	apperrors "github.com/aihub/ragbot/internal/errors"
	"github.com/aihub/ragbot/internal/logger"
	"github.com/aihub/ragbot/internal/metrics"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// EmbeddingDimensions 向量维度，与向量表结构一致
const EmbeddingDimensions = 1536

// Embedder 定义文本向量化接口
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
	Ready() bool
}

// NoopEmbedder 默认占位实现
type NoopEmbedder struct{}

func (n *NoopEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, apperrors.Wrap(apperrors.ErrCodeEmbedding, "embedding provider not configured", nil)
}

func (n *NoopEmbedder) Dimensions() int {
	return 0
}

func (n *NoopEmbedder) Ready() bool {
	return false
}

// EmbeddingAPI 远端向量服务，*openai.Client 满足该接口
type EmbeddingAPI interface {
	CreateEmbeddings(ctx context.Context, conv openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

// EmbedderOption OpenAIEmbedder 选项
type EmbedderOption func(*OpenAIEmbedder)

// WithRetryPolicy 替换重试策略
func WithRetryPolicy(policy RetryPolicy) EmbedderOption {
	return func(e *OpenAIEmbedder) {
		e.policy = policy
	}
}

// WithRateLimit 限制每秒请求数，rps<=0 表示不限
func WithRateLimit(rps float64, burst int) EmbedderOption {
	return func(e *OpenAIEmbedder) {
		if rps <= 0 {
			e.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		e.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// OpenAIEmbedder 使用OpenAI Embedding API
type OpenAIEmbedder struct {
	api        EmbeddingAPI
	model      string
	dimensions int
	policy     RetryPolicy
	limiter    *rate.Limiter
}

// NewOpenAIEmbedder 根据配置创建嵌入向量生成器，未配置API Key时返回占位实现
func NewOpenAIEmbedder(openaiCfg config.OpenAIConfig, cfg config.EmbeddingConfig) Embedder {
	apiKey := strings.TrimSpace(openaiCfg.APIKey)
	if apiKey == "" {
		logger.Warn("OpenAI API key not configured, embeddings disabled")
		return &NoopEmbedder{}
	}

	return NewOpenAIEmbedderWithAPI(NewOpenAIClient(openaiCfg), cfg.Model, cfg.Dimensions,
		WithRetryPolicy(RetryPolicyFromConfig(cfg.Retry)),
		WithRateLimit(cfg.RequestsPerSecond, cfg.Burst),
	)
}

// NewOpenAIClient 创建OpenAI客户端，支持自定义BaseURL
func NewOpenAIClient(cfg config.OpenAIConfig) *openai.Client {
	clientCfg := openai.DefaultConfig(strings.TrimSpace(cfg.APIKey))
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return openai.NewClientWithConfig(clientCfg)
}

// NewOpenAIEmbedderWithAPI 使用给定的API实现创建嵌入向量生成器
func NewOpenAIEmbedderWithAPI(api EmbeddingAPI, model string, dimensions int, opts ...EmbedderOption) *OpenAIEmbedder {
	if model == "" {
		model = string(openai.LargeEmbedding3)
	}
	if dimensions <= 0 {
		dimensions = EmbeddingDimensions
	}

	e := &OpenAIEmbedder{
		api:        api,
		model:      model,
		dimensions: dimensions,
		policy:     DefaultRetryPolicy(),
	}
	for _, opt := range opts {
		opt(e)
	}

	onRetry := e.policy.OnRetry
	e.policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		metrics.EmbeddingRetries.Inc()
		logger.Warn("embedding request failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))
		if onRetry != nil {
			onRetry(attempt, delay, err)
		}
	}
	return e
}

// Embed 生成向量；瞬时错误按策略重试，永久错误立即返回
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, apperrors.Wrap(apperrors.ErrCodeEmbedding, "text is empty", nil)
	}
	if e.api == nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeEmbedding, "openai client not initialized", nil)
	}

	var resp openai.EmbeddingResponse
	err := e.policy.Do(ctx, func(ctx context.Context) error {
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				return err
			}
		}
		var callErr error
		resp, callErr = e.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Model:      openai.EmbeddingModel(e.model),
			Input:      []string{text},
			Dimensions: e.dimensions,
		})
		return callErr
	})
	if err != nil {
		metrics.EmbeddingRequests.WithLabelValues("error").Inc()
		return nil, apperrors.Wrap(apperrors.ErrCodeEmbedding, "embedding request failed", err)
	}
	if len(resp.Data) == 0 {
		metrics.EmbeddingRequests.WithLabelValues("error").Inc()
		return nil, apperrors.Wrap(apperrors.ErrCodeEmbedding, "embedding response empty", nil)
	}

	embedding := resp.Data[0].Embedding
	if len(embedding) != e.dimensions {
		metrics.EmbeddingRequests.WithLabelValues("error").Inc()
		return nil, apperrors.Wrap(apperrors.ErrCodeDimensionMismatch,
			fmt.Sprintf("embedding has %d dimensions, expected %d", len(embedding), e.dimensions), nil)
	}

	metrics.EmbeddingRequests.WithLabelValues("success").Inc()
	result := make([]float32, len(embedding))
	copy(result, embedding)
	return result, nil
}

func (e *OpenAIEmbedder) Dimensions() int {
	return e.dimensions
}

func (e *OpenAIEmbedder) Ready() bool {
	return e.api != nil
}
