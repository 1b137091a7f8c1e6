package knowledge

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	apperrors "github.com/aihub/ragbot/internal/errors"
	"github.com/aihub/ragbot/internal/logger"
	"github.com/aihub/ragbot/internal/metrics"
	"go.uber.org/zap"
)

// IngestReport 入库统计
type IngestReport struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

func (r IngestReport) String() string {
	return fmt.Sprintf("%d of %d succeeded", r.Succeeded, r.Total)
}

// Add 合并两次入库统计
func (r IngestReport) Add(other IngestReport) IngestReport {
	return IngestReport{
		Total:     r.Total + other.Total,
		Succeeded: r.Succeeded + other.Succeeded,
		Failed:    r.Failed + other.Failed,
	}
}

// Ingestor 逐块向量化并写入当前表
type Ingestor struct {
	embedder Embedder
	store    VectorStore
	minDelay time.Duration
	maxDelay time.Duration
	sleep    func(ctx context.Context, d time.Duration) error
}

// IngestorOption 入库器选项
type IngestorOption func(*Ingestor)

// WithIngestDelay 设置相邻两次调用之间的随机间隔范围
func WithIngestDelay(minDelay, maxDelay time.Duration) IngestorOption {
	return func(i *Ingestor) {
		if maxDelay < minDelay {
			maxDelay = minDelay
		}
		i.minDelay = minDelay
		i.maxDelay = maxDelay
	}
}

// WithIngestSleep 替换等待函数，测试中用于跳过真实等待
func WithIngestSleep(sleep func(ctx context.Context, d time.Duration) error) IngestorOption {
	return func(i *Ingestor) {
		i.sleep = sleep
	}
}

// NewIngestor 创建入库器
func NewIngestor(embedder Embedder, store VectorStore, opts ...IngestorOption) *Ingestor {
	i := &Ingestor{
		embedder: embedder,
		store:    store,
		minDelay: 500 * time.Millisecond,
		maxDelay: 1500 * time.Millisecond,
		sleep:    sleepContext,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// IngestChunks 单块失败只记录并计数；未连接或未选表立即返回
func (i *Ingestor) IngestChunks(ctx context.Context, chunks []Chunk) (IngestReport, error) {
	report := IngestReport{Total: len(chunks)}

	for n, chunk := range chunks {
		if n > 0 {
			if err := i.sleep(ctx, i.delay()); err != nil {
				return report, err
			}
		}

		err := i.ingestOne(ctx, chunk)
		switch {
		case err == nil:
			report.Succeeded++
			metrics.IngestedChunks.WithLabelValues("stored").Inc()
		case isOrderingError(err):
			return report, err
		case ctx.Err() != nil:
			return report, ctx.Err()
		default:
			report.Failed++
			metrics.IngestedChunks.WithLabelValues("failed").Inc()
			logger.Warn("failed to ingest chunk",
				zap.String("doc_name", chunk.DocName),
				zap.Int("index", chunk.Index),
				zap.Error(err))
		}
	}

	logger.Info("chunks ingested",
		zap.String("table", i.store.TableName()),
		zap.String("result", report.String()))
	return report, nil
}

func (i *Ingestor) ingestOne(ctx context.Context, chunk Chunk) error {
	vector, err := i.embedder.Embed(ctx, chunk.Text)
	if err != nil {
		return err
	}

	id := chunk.ChunkID
	if id == "" {
		id = ChunkID(chunk.DocName, chunk.Text)
	}
	return i.store.Insert(ctx, VectorRecord{
		Text:    chunk.Text,
		Vector:  vector,
		DocName: chunk.DocName,
		ChunkID: id,
	})
}

func (i *Ingestor) delay() time.Duration {
	span := i.maxDelay - i.minDelay
	if span <= 0 {
		return i.minDelay
	}
	return i.minDelay + time.Duration(rand.Int63n(int64(span)))
}

func isOrderingError(err error) bool {
	return apperrors.HasCode(err, apperrors.ErrCodeNotConnected) ||
		apperrors.HasCode(err, apperrors.ErrCodeNoTableSelected)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
