package knowledge

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"unicode"

	apperrors "github.com/aihub/ragbot/internal/errors"
	"github.com/aihub/ragbot/internal/logger"
	"go.uber.org/zap"
)

func init() {
	logger.SetLogger(zap.NewNop())
}

// hashEmbedder 词袋哈希向量，相同词越多距离越近
type hashEmbedder struct {
	dims  int
	mu    sync.Mutex
	calls int
	fail  map[string]bool
}

func newHashEmbedder() *hashEmbedder {
	return &hashEmbedder{dims: EmbeddingDimensions, fail: map[string]bool{}}
}

func (h *hashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	h.mu.Lock()
	h.calls++
	fail := h.fail[text]
	h.mu.Unlock()
	if fail {
		return nil, apperrors.Wrap(apperrors.ErrCodeEmbedding, "embedding request failed", nil)
	}
	return hashVector(text, h.dims), nil
}

func (h *hashEmbedder) Dimensions() int { return h.dims }
func (h *hashEmbedder) Ready() bool     { return true }

func (h *hashEmbedder) Calls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls
}

func hashVector(text string, dims int) []float32 {
	vec := make([]float32, dims)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		f := fnv.New32a()
		f.Write([]byte(w))
		vec[f.Sum32()%uint32(dims)]++
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v * v)
	}
	if norm == 0 {
		return vec
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}

func unitVector(dims, hot int) []float32 {
	vec := make([]float32, dims)
	vec[hot] = 1
	return vec
}
