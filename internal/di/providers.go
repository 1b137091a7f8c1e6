package di

import (
	"context"
	"time"

	"github.com/aihub/ragbot/internal/agent"
	"github.com/aihub/ragbot/internal/cache"
	"github.com/aihub/ragbot/internal/config"
	"github.com/aihub/ragbot/internal/ingest"
	"github.com/aihub/ragbot/internal/knowledge"
	"github.com/aihub/ragbot/internal/logger"
	"github.com/redis/go-redis/v9"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/dig"
	"go.uber.org/zap"
)

const connectTimeout = 10 * time.Second

// RegisterProviders 注册所有依赖提供者
func RegisterProviders(container *dig.Container, cfg *config.Config) error {
	providers := []interface{}{
		func() *config.Config { return cfg },
		NewLifecycle,
		provideOpenAIClient,
		provideRedisClient,
		provideEmbedder,
		knowledge.NewBoltVectorStore,
		provideChatModel,
		provideRetriever,
		provideAgent,
		provideChatAgent,
		provideBotHandler,
		provideArchiver,
		providePublisher,
		providePipeline,
		provideWatcher,
	}
	for _, p := range providers {
		if err := container.Provide(p); err != nil {
			return err
		}
	}
	return nil
}

func provideOpenAIClient(cfg *config.Config) *openai.Client {
	return knowledge.NewOpenAIClient(cfg.OpenAI)
}

// provideRedisClient 缓存未启用或连接失败时返回 nil
func provideRedisClient(cfg *config.Config, lc *Lifecycle) *redis.Client {
	if !cfg.Cache.Enabled {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	rdb, err := cache.NewRedisClient(ctx, cfg.Cache)
	if err != nil {
		logger.Warn("Failed to initialize Redis, embedding cache and chat history disabled", zap.Error(err))
		return nil
	}
	lc.OnStop(rdb.Close)
	return rdb
}

func provideEmbedder(cfg *config.Config, rdb *redis.Client) knowledge.Embedder {
	embedder := knowledge.NewOpenAIEmbedder(cfg.OpenAI, cfg.Embedding)
	if rdb == nil {
		return embedder
	}
	return knowledge.NewCachedEmbedder(embedder, cache.NewRedisVectorCache(rdb), cfg.Embedding.Model, cfg.Cache.TTL)
}

func provideChatModel(cfg *config.Config, client *openai.Client) agent.ChatModel {
	return agent.NewChatModel(client, cfg.Chat)
}

func provideRetriever(embedder knowledge.Embedder, store *knowledge.BoltVectorStore) *knowledge.Retriever {
	return knowledge.NewRetriever(embedder, store)
}

func provideAgent(cfg *config.Config, model agent.ChatModel, retriever *knowledge.Retriever) *agent.Agent {
	return agent.NewAgent(model, retriever, cfg.Chat)
}

// provideChatAgent 缓存可用时会话历史保存在 Redis
func provideChatAgent(cfg *config.Config, model agent.ChatModel, rdb *redis.Client) *agent.ChatAgent {
	if rdb == nil {
		return agent.NewChatAgent(model, nil, cfg.Chat)
	}
	return agent.NewChatAgent(model, cache.NewRedisChatHistory(rdb), cfg.Chat)
}

func provideBotHandler(cfg *config.Config, store *knowledge.BoltVectorStore, a *agent.Agent, lc *Lifecycle) *agent.BotHandler {
	h := agent.NewBotHandler(agent.HandlerConfig{
		DBPath:    cfg.Store.Path,
		TableName: cfg.Store.Table,
		Timeout:   cfg.Chat.Timeout,
	}, store, a)
	lc.OnStop(h.Close)
	return h
}

// provideArchiver 归档未启用或初始化失败时返回 nil
func provideArchiver(cfg *config.Config) ingest.Archiver {
	if !cfg.Archive.Enabled {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	archiver, err := ingest.NewMinIOArchiver(ctx, cfg.Archive)
	if err != nil {
		logger.Warn("Failed to initialize MinIO, source archive disabled", zap.Error(err))
		return nil
	}
	return archiver
}

// providePublisher 事件未启用或初始化失败时返回 nil
func providePublisher(cfg *config.Config, lc *Lifecycle) ingest.EventPublisher {
	if !cfg.Events.Enabled {
		return nil
	}

	publisher, err := ingest.NewKafkaPublisher(cfg.Events)
	if err != nil {
		logger.Warn("Failed to initialize Kafka producer, ingestion events disabled", zap.Error(err))
		return nil
	}
	lc.OnStop(publisher.Close)
	return publisher
}

// providePipeline 入库视图共享问答连接，须在 BotHandler 建立连接之后创建
func providePipeline(
	cfg *config.Config,
	embedder knowledge.Embedder,
	store *knowledge.BoltVectorStore,
	_ *agent.BotHandler,
	archiver ingest.Archiver,
	publisher ingest.EventPublisher,
) (*ingest.Pipeline, error) {
	if store.State() == knowledge.StateDisconnected {
		if err := store.Connect(cfg.Store.Path); err != nil {
			return nil, err
		}
	}

	var opts []ingest.PipelineOption
	if archiver != nil {
		opts = append(opts, ingest.WithArchiver(archiver))
	}
	if publisher != nil {
		opts = append(opts, ingest.WithPublisher(publisher))
	}

	targets := ingest.Targets{
		FileStore: store.Fork(),
		FileTable: cfg.Store.IngestTable,
		PageStore: store.Fork(),
		PageTable: cfg.Store.Table,
	}
	return ingest.NewPipeline(embedder, targets, cfg.Ingest, cfg.Chunking, opts...), nil
}

func provideWatcher(cfg *config.Config, pipeline *ingest.Pipeline) *ingest.Watcher {
	return ingest.NewWatcher(cfg.Ingest.UploadDir, pipeline)
}
