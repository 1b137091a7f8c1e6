package ingest

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aihub/ragbot/internal/config"
	apperrors "github.com/aihub/ragbot/internal/errors"
	"github.com/aihub/ragbot/internal/knowledge"
	"github.com/aihub/ragbot/internal/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Source 文档来源
type Source string

const (
	SourceFile   Source = "file"
	SourceURL    Source = "url"
	SourceUpload Source = "upload"
)

// DownloadError 网页下载失败，Reason 为固定的原因字符串
type DownloadError struct {
	URL    string
	Reason string
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("%s: %s", e.Reason, e.URL)
}

// Result 单个文档的入库结果
type Result struct {
	DocName    string                 `json:"doc_name"`
	Source     Source                 `json:"source"`
	Table      string                 `json:"table"`
	Report     knowledge.IngestReport `json:"report"`
	ArchiveKey string                 `json:"archive_key,omitempty"`
}

// Targets 入库目标：文件写入 FileTable，网页写入 PageTable
type Targets struct {
	FileStore knowledge.VectorStore
	FileTable string
	PageStore knowledge.VectorStore
	PageTable string
}

type target struct {
	store    knowledge.VectorStore
	table    string
	chunker  *knowledge.Chunker
	ingestor *knowledge.Ingestor
}

// PipelineOption 入库流水线选项
type PipelineOption func(*Pipeline)

// WithArchiver 入库成功后归档源文件
func WithArchiver(a Archiver) PipelineOption {
	return func(p *Pipeline) { p.archiver = a }
}

// WithPublisher 入库成功后发布事件
func WithPublisher(pub EventPublisher) PipelineOption {
	return func(p *Pipeline) { p.publisher = pub }
}

// WithDownloader 替换网页下载器
func WithDownloader(d *knowledge.HTMLDownloader) PipelineOption {
	return func(p *Pipeline) { p.downloader = d }
}

// WithIngestorOptions 透传给每个目标的 Ingestor
func WithIngestorOptions(opts ...knowledge.IngestorOption) PipelineOption {
	return func(p *Pipeline) { p.ingestorOpts = append(p.ingestorOpts, opts...) }
}

// Pipeline 文档入库流水线：提取文本、分块、向量化并写入向量表
type Pipeline struct {
	// mu 串行化建表与写入
	mu sync.Mutex

	cfg        config.IngestConfig
	schema     knowledge.Schema
	parser     *knowledge.FileParserManager
	downloader *knowledge.HTMLDownloader
	archiver   Archiver
	publisher  EventPublisher

	embedder     knowledge.Embedder
	ingestorOpts []knowledge.IngestorOption
	files        target
	pages        target
}

// NewPipeline 创建入库流水线，目标表在首次使用时创建
func NewPipeline(embedder knowledge.Embedder, targets Targets, cfg config.IngestConfig, chunking config.ChunkingConfig, opts ...PipelineOption) *Pipeline {
	dim := embedder.Dimensions()
	if dim <= 0 {
		dim = knowledge.EmbeddingDimensions
	}
	p := &Pipeline{
		cfg:          cfg,
		schema:       knowledge.NewSchema(dim),
		parser:       knowledge.NewFileParserManager(cfg.MaxPDFPages),
		downloader:   knowledge.NewHTMLDownloader(cfg.HTTPTimeout),
		embedder:     embedder,
		ingestorOpts: []knowledge.IngestorOption{knowledge.WithIngestDelay(cfg.MinDelay, cfg.MaxDelay)},
	}
	for _, opt := range opts {
		opt(p)
	}

	pageSize, pageOverlap := chunking.ForPages()
	p.files = p.newTarget(targets.FileStore, targets.FileTable, knowledge.NewChunker(chunking.Size, chunking.Overlap))
	p.pages = p.newTarget(targets.PageStore, targets.PageTable, knowledge.NewChunker(pageSize, pageOverlap))
	return p
}

func (p *Pipeline) newTarget(store knowledge.VectorStore, table string, chunker *knowledge.Chunker) target {
	return target{
		store:    store,
		table:    table,
		chunker:  chunker,
		ingestor: knowledge.NewIngestor(p.embedder, store, p.ingestorOpts...),
	}
}

// IngestFile 入库本地文件，docName 为空时使用文件名
func (p *Pipeline) IngestFile(ctx context.Context, path, docName string) (Result, error) {
	if docName == "" {
		docName = filepath.Base(path)
	}
	if err := p.checkFile(path); err != nil {
		return Result{DocName: docName, Source: SourceFile}, err
	}
	return p.ingest(ctx, p.files, SourceFile, docName, path)
}

// IngestUpload 把上传内容写入临时目录后入库，临时文件总会被删除
func (p *Pipeline) IngestUpload(ctx context.Context, name string, r io.Reader) (Result, error) {
	docName := filepath.Base(name)
	result := Result{DocName: docName, Source: SourceUpload}

	ext := strings.ToLower(filepath.Ext(docName))
	if !p.allowed(ext) {
		return result, unsupported(ext)
	}

	tmp, err := p.writeTemp(uuid.NewString()+ext, io.LimitReader(r, p.cfg.MaxFileSize+1))
	if err != nil {
		return result, err
	}
	defer removeTemp(tmp)

	if err := p.checkFile(tmp); err != nil {
		return result, err
	}
	return p.ingest(ctx, p.files, SourceUpload, docName, tmp)
}

// IngestURL 下载网页、清洗后写入临时 .txt 并入库到问答表，文档名为链接本身
func (p *Pipeline) IngestURL(ctx context.Context, rawURL string) (Result, error) {
	result := Result{DocName: rawURL, Source: SourceURL}

	page, reason := p.downloader.Download(ctx, rawURL)
	if reason != "" {
		return result, apperrors.Wrap(apperrors.ErrCodeDownload, reason, &DownloadError{URL: rawURL, Reason: reason})
	}

	text, err := knowledge.CleanHTML(page)
	if err != nil {
		return result, apperrors.Wrap(apperrors.ErrCodeDownload, knowledge.ReasonDownloadError, err)
	}

	tmp, err := p.writeTemp(TempFileName(rawURL), strings.NewReader(text))
	if err != nil {
		return result, err
	}
	defer removeTemp(tmp)

	return p.ingest(ctx, p.pages, SourceURL, rawURL, tmp)
}

// TempFileName 网页临时文件名：链接的 base64url 编码加 .txt
func TempFileName(rawURL string) string {
	return base64.URLEncoding.EncodeToString([]byte(rawURL)) + ".txt"
}

// Supports 判断扩展名是否允许入库
func (p *Pipeline) Supports(filename string) bool {
	return p.allowed(strings.ToLower(filepath.Ext(filename)))
}

func (p *Pipeline) ingest(ctx context.Context, t target, source Source, docName, path string) (Result, error) {
	result := Result{DocName: docName, Source: source, Table: t.table}

	text, err := p.parser.ExtractFile(path)
	if err != nil {
		return result, err
	}

	chunks, err := t.chunker.Split(docName, text)
	if err != nil {
		return result, err
	}
	if len(chunks) == 0 {
		return result, apperrors.NewInvalidInputError("document", "no text extracted from "+docName)
	}

	p.mu.Lock()
	err = p.ensureTable(t)
	if err == nil {
		result.Report, err = t.ingestor.IngestChunks(ctx, chunks)
	}
	p.mu.Unlock()
	if err != nil {
		return result, err
	}

	logger.Info("document ingested",
		zap.String("doc_name", docName),
		zap.String("source", string(source)),
		zap.String("table", t.table),
		zap.String("report", result.Report.String()))

	if p.archiver != nil {
		key, err := p.archiver.Archive(ctx, docName, path)
		if err != nil {
			logger.Warn("failed to archive source", zap.String("doc_name", docName), zap.Error(err))
		}
		result.ArchiveKey = key
	}

	if p.publisher != nil {
		event := IngestionEvent{
			DocName:    docName,
			Source:     source,
			Table:      t.table,
			Total:      result.Report.Total,
			Succeeded:  result.Report.Succeeded,
			Failed:     result.Report.Failed,
			ArchiveKey: result.ArchiveKey,
			Timestamp:  time.Now().UTC(),
		}
		if err := p.publisher.Publish(ctx, event); err != nil {
			logger.Warn("failed to publish ingestion event", zap.String("doc_name", docName), zap.Error(err))
		}
	}

	return result, nil
}

// ensureTable 选中目标表，不存在时按流水线的表结构创建
func (p *Pipeline) ensureTable(t target) error {
	if t.store.State() == knowledge.StateTableSelected && t.store.TableName() == t.table {
		return nil
	}

	exists, err := t.store.TableExists(t.table)
	if err != nil {
		return err
	}
	if !exists {
		if err := t.store.CreateTable(t.table, p.schema); err != nil {
			return err
		}
		logger.Info("ingestion table created", zap.String("table", t.table), zap.Int("dimension", p.schema.Dimension))
	}
	return t.store.SelectTable(t.table)
}

func (p *Pipeline) checkFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return apperrors.NewNotFoundError("file " + path)
		}
		return apperrors.Wrap(apperrors.ErrCodeInvalidInput, "cannot stat "+path, err)
	}
	if info.IsDir() {
		return apperrors.NewInvalidInputError("path", path+" is a directory")
	}
	if info.Size() > p.cfg.MaxFileSize {
		return apperrors.NewBusinessError(apperrors.ErrCodeFileTooLarge,
			fmt.Sprintf("file %s is %d bytes, limit is %d", filepath.Base(path), info.Size(), p.cfg.MaxFileSize))
	}

	ext := strings.ToLower(filepath.Ext(path))
	if !p.allowed(ext) {
		return unsupported(ext)
	}
	return nil
}

func (p *Pipeline) allowed(ext string) bool {
	for _, allowed := range p.cfg.AllowedExtensions {
		if strings.EqualFold(ext, allowed) {
			return true
		}
	}
	return false
}

func (p *Pipeline) writeTemp(name string, r io.Reader) (string, error) {
	if err := os.MkdirAll(p.cfg.TempDir, 0o755); err != nil {
		return "", apperrors.Wrap(apperrors.ErrCodeInternalServer, "temp folder inaccessible", err)
	}

	path := filepath.Join(p.cfg.TempDir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrCodeInternalServer, "failed to create temp file", err)
	}
	_, err = io.Copy(f, r)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		removeTemp(path)
		return "", apperrors.Wrap(apperrors.ErrCodeInternalServer, "failed to write temp file", err)
	}
	return path, nil
}

func removeTemp(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("failed to remove temp file", zap.String("path", path), zap.Error(err))
	}
}

func unsupported(ext string) error {
	return apperrors.Wrap(apperrors.ErrCodeUnsupportedFormat, "unsupported file format: "+ext,
		&knowledge.UnsupportedFormatError{Ext: ext})
}
