package agent

import (
	"context"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	apperrors "github.com/aihub/ragbot/internal/errors"
	"github.com/aihub/ragbot/internal/knowledge"
	"github.com/aihub/ragbot/internal/logger"
	"github.com/aihub/ragbot/internal/metrics"
	"go.uber.org/zap"
)

// 面向用户的固定提示
const (
	MessageStoreUnavailable = "⚠️ База данных недоступна. Попробуйте позже."
	MessageProcessingError  = "⚠️ Ошибка при обработке запроса. Попробуйте снова."
)

// DefaultTableName 问答默认读取的表
const DefaultTableName = "from_txt"

// Runner 执行一次问答，*Agent 满足该接口
type Runner interface {
	Run(ctx context.Context, question string) (*State, error)
}

// HandlerConfig 门面配置
type HandlerConfig struct {
	DBPath    string
	TableName string
	Timeout   time.Duration
}

// BotHandler 问答门面：构造时连接向量库，HandleQuestion 从不返回错误
type BotHandler struct {
	cfg    HandlerConfig
	store  knowledge.VectorStore
	runner Runner
	ready  atomic.Bool
	// connMu 串行化 connect
	connMu sync.Mutex
}

// NewBotHandler 连接向量库并选择表；路径不存在或连接失败时进入降级状态
func NewBotHandler(cfg HandlerConfig, store knowledge.VectorStore, runner Runner) *BotHandler {
	if cfg.TableName == "" {
		cfg.TableName = DefaultTableName
	}
	h := &BotHandler{cfg: cfg, store: store, runner: runner}
	h.Refresh()
	return h
}

// Refresh 降级状态下重新尝试连接和选表，已就绪时直接返回
func (h *BotHandler) Refresh() bool {
	h.connMu.Lock()
	defer h.connMu.Unlock()

	if h.ready.Load() {
		return true
	}
	ok := h.connect()
	h.ready.Store(ok)
	return ok
}

func (h *BotHandler) connect() bool {
	if _, err := os.Stat(h.cfg.DBPath); err != nil {
		logger.Error("vector store path does not exist",
			zap.String("path", h.cfg.DBPath),
			zap.Error(err))
		return false
	}

	// 已有连接时复用，入库视图与问答共享同一文件
	if h.store.State() == knowledge.StateDisconnected {
		if err := h.store.Connect(h.cfg.DBPath); err != nil {
			logger.Error("failed to connect to vector store",
				zap.String("path", h.cfg.DBPath),
				zap.Error(err))
			return false
		}
	}

	if err := h.store.SelectTable(h.cfg.TableName); err != nil {
		tables, _ := h.store.ListTables()
		logger.Warn("failed to open vector table",
			zap.String("table", h.cfg.TableName),
			zap.Strings("available", tables),
			zap.Error(err))
		return false
	}

	rows, err := h.store.CountRows()
	if err != nil {
		logger.Warn("failed to count vector table rows", zap.Error(err))
	}
	logger.Info("vector store ready",
		zap.String("path", h.cfg.DBPath),
		zap.String("table", h.cfg.TableName),
		zap.Int("rows", rows))
	return true
}

// Ready 是否已连接并选表
func (h *BotHandler) Ready() bool {
	return h.ready.Load()
}

// Store 底层向量库
func (h *BotHandler) Store() knowledge.VectorStore {
	return h.store
}

// Ask 返回最后一条助手消息，失败时返回带错误码的错误
func (h *BotHandler) Ask(ctx context.Context, question string) (string, error) {
	if !h.ready.Load() {
		metrics.AgentRuns.WithLabelValues("unavailable").Inc()
		return "", apperrors.NewSystemError(apperrors.ErrCodeStoreUnavailable, "vector store is unavailable")
	}
	if strings.TrimSpace(question) == "" {
		return "", apperrors.NewInvalidInputError("question", "is empty")
	}

	if h.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.cfg.Timeout)
		defer cancel()
	}

	st, err := h.runner.Run(ctx, question)
	if err != nil {
		return "", err
	}

	answer, ok := st.LastAssistantMessage()
	if !ok {
		return "", apperrors.NewSystemError(apperrors.ErrCodeNoAnswer, "agent run produced no assistant message")
	}
	return answer, nil
}

// HandleQuestion 所有失败都转换为固定提示
func (h *BotHandler) HandleQuestion(ctx context.Context, question string) string {
	answer, err := h.Ask(ctx, question)
	if err == nil {
		return answer
	}

	if apperrors.HasCode(err, apperrors.ErrCodeStoreUnavailable) {
		logger.Error("vector store is not initialized")
		return MessageStoreUnavailable
	}

	logger.Error("failed to answer question", zap.Error(err))
	return MessageProcessingError
}

// Close 释放向量库连接
func (h *BotHandler) Close() error {
	h.ready.Store(false)
	return h.store.Close()
}
