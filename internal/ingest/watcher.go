package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aihub/ragbot/internal/logger"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultSettleDelay = 500 * time.Millisecond

// FileIngester 入库单个本地文件
type FileIngester interface {
	IngestFile(ctx context.Context, path, docName string) (Result, error)
}

// WatcherOption 目录监听选项
type WatcherOption func(*Watcher)

// WithSettleDelay 文件最后一次写入后等待多久再入库
func WithSettleDelay(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.settle = d
		}
	}
}

// WithResultHook 每个文件处理完成后回调
func WithResultHook(hook func(path string, result Result, err error)) WatcherOption {
	return func(w *Watcher) { w.hook = hook }
}

// Watcher 监听上传目录，新文件入库后删除
type Watcher struct {
	dir      string
	ingester FileIngester
	settle   time.Duration
	hook     func(path string, result Result, err error)
}

// NewWatcher 创建目录监听器
func NewWatcher(dir string, ingester FileIngester, opts ...WatcherOption) *Watcher {
	w := &Watcher{dir: dir, ingester: ingester, settle: defaultSettleDelay}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run 阻塞监听直到 ctx 结束，启动时先处理目录中已有的文件
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("upload folder inaccessible: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}
	logger.Info("watching upload folder", zap.String("dir", w.dir))

	pending := make(map[string]*time.Timer)
	ready := make(chan string)
	defer func() {
		for _, t := range pending {
			t.Stop()
		}
	}()

	// 同一文件的连续写入合并为一次入库
	schedule := func(path string) {
		if t, ok := pending[path]; ok {
			t.Reset(w.settle)
			return
		}
		pending[path] = time.AfterFunc(w.settle, func() {
			select {
			case ready <- path:
			case <-ctx.Done():
			}
		})
	}

	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", w.dir, err)
	}
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			schedule(filepath.Join(w.dir, entry.Name()))
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) {
				schedule(ev.Name)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("upload folder watcher error", zap.Error(err))
		case path := <-ready:
			delete(pending, path)
			w.process(ctx, path)
		}
	}
}

func (w *Watcher) process(ctx context.Context, path string) {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") {
		return
	}
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return
	}

	result, err := w.ingester.IngestFile(ctx, path, name)
	if err != nil {
		logger.Warn("failed to ingest uploaded file", zap.String("file", name), zap.Error(err))
	} else {
		logger.Info("uploaded file ingested", zap.String("file", name), zap.String("report", result.Report.String()))
	}

	if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
		logger.Warn("failed to remove uploaded file", zap.String("file", name), zap.Error(rmErr))
	}
	if w.hook != nil {
		w.hook(path, result, err)
	}
}
