package ingest

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/aihub/ragbot/internal/config"
	"github.com/aihub/ragbot/internal/knowledge"
	"github.com/aihub/ragbot/internal/logger"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	logger.SetLogger(zap.NewNop())
}

const testDims = 8

// lengthEmbedder 按文本长度生成固定维度向量
type lengthEmbedder struct{}

func (lengthEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, testDims)
	for i, r := range text {
		vec[i%testDims] += float32(r % 7)
	}
	return vec, nil
}

func (lengthEmbedder) Dimensions() int { return testDims }
func (lengthEmbedder) Ready() bool     { return true }

func testIngestConfig(t *testing.T) config.IngestConfig {
	t.Helper()
	dir := t.TempDir()
	return config.IngestConfig{
		UploadDir:         filepath.Join(dir, "uploads"),
		TempDir:           filepath.Join(dir, "temp"),
		MaxFileSize:       10 << 20,
		MaxPDFPages:       20,
		AllowedExtensions: []string{".pdf", ".docx", ".txt"},
	}
}

type testEnv struct {
	base     *knowledge.BoltVectorStore
	files    *knowledge.BoltVectorStore
	pages    *knowledge.BoltVectorStore
	cfg      config.IngestConfig
	pipeline *Pipeline
}

func newTestEnv(t *testing.T, opts ...PipelineOption) *testEnv {
	t.Helper()
	return newTestEnvWithChunking(t, config.ChunkingConfig{Size: 200, Overlap: 20}, opts...)
}

func newTestEnvWithChunking(t *testing.T, chunking config.ChunkingConfig, opts ...PipelineOption) *testEnv {
	t.Helper()
	base := knowledge.NewBoltVectorStore()
	require.NoError(t, base.Connect(t.TempDir()))
	t.Cleanup(func() { _ = base.Close() })

	env := &testEnv{base: base, files: base.Fork(), pages: base.Fork(), cfg: testIngestConfig(t)}
	env.pipeline = NewPipeline(lengthEmbedder{},
		Targets{FileStore: env.files, FileTable: "pdf_chunks", PageStore: env.pages, PageTable: "from_txt"},
		env.cfg,
		chunking,
		opts...)
	return env
}

type fakeArchiver struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (a *fakeArchiver) Archive(_ context.Context, docName, _ string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, docName)
	if a.err != nil {
		return "", a.err
	}
	return "sources/" + docName, nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []IngestionEvent
	err    error
}

func (p *fakePublisher) Publish(_ context.Context, event IngestionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *fakePublisher) Close() error { return nil }

// recordingIngester 记录被调用的文件及其内容
type recordingIngester struct {
	mu    sync.Mutex
	names []string
	fail  bool
}

func (r *recordingIngester) IngestFile(_ context.Context, _ string, docName string) (Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names = append(r.names, docName)
	if r.fail {
		return Result{DocName: docName}, errors.New("ingest failed")
	}
	return Result{DocName: docName, Report: knowledge.IngestReport{Total: 1, Succeeded: 1}}, nil
}

func (r *recordingIngester) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.names...)
}

func article(words int) string {
	return "<html><head><script>track()</script></head><body><header>Menu</header><p>" +
		strings.TrimSpace(strings.Repeat("revenue grew again ", words/3+1)) +
		"</p><footer>Contacts</footer></body></html>"
}
