package knowledge

import (
	"context"
	"time"

	apperrors "github.com/aihub/ragbot/internal/errors"
	"github.com/aihub/ragbot/internal/metrics"
)

// Retriever 查询向量化后在向量库中检索
type Retriever struct {
	embedder Embedder
	store    VectorStore
}

// NewRetriever 创建检索器
func NewRetriever(embedder Embedder, store VectorStore) *Retriever {
	return &Retriever{embedder: embedder, store: store}
}

// Search 返回与 query 最接近的 limit 条记录，任何失败都包装为 SEARCH_ERROR
func (r *Retriever) Search(ctx context.Context, query string, limit int, filter *MetadataFilter) ([]SearchResult, error) {
	kind := "plain"
	if filter != nil {
		kind = "filtered"
	}
	defer metrics.ObserveDuration(metrics.SearchDuration, kind, time.Now())

	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeSearch, "failed to embed query", err)
	}

	results, err := r.store.Search(ctx, vector, limit, filter)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeSearch, "vector search failed", err)
	}
	return results, nil
}
