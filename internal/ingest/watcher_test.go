package ingest

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startWatcher(t *testing.T, dir string, ingester FileIngester) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, NewWatcher(dir, ingester, WithSettleDelay(20*time.Millisecond)).Run(ctx))
	}()
	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})
}

func TestWatcher_IngestsExistingAndNewFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "existing.txt"), []byte("old"), 0o644))

	ingester := &recordingIngester{}
	startWatcher(t, dir, ingester)

	require.Eventually(t, func() bool {
		return len(ingester.Names()) == 1
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "new.txt"), []byte("new"), 0o644))
	require.Eventually(t, func() bool {
		return len(ingester.Names()) == 2
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, []string{"existing.txt", "new.txt"}, ingester.Names())
	require.Eventually(t, func() bool {
		entries, err := os.ReadDir(dir)
		return err == nil && len(entries) == 0
	}, 5*time.Second, 10*time.Millisecond)
}

func TestWatcher_RemovesFileEvenWhenIngestionFails(t *testing.T) {
	dir := t.TempDir()
	ingester := &recordingIngester{fail: true}
	startWatcher(t, dir, ingester)

	// 等待监听建立后再写入
	time.Sleep(50 * time.Millisecond)
	path := filepath.Join(dir, "broken.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	require.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return os.IsNotExist(err)
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"broken.txt"}, ingester.Names())
}

func TestWatcher_IgnoresHiddenFiles(t *testing.T) {
	dir := t.TempDir()
	hidden := filepath.Join(dir, ".partial")
	require.NoError(t, os.WriteFile(hidden, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("x"), 0o644))

	ingester := &recordingIngester{}
	startWatcher(t, dir, ingester)

	require.Eventually(t, func() bool {
		return len(ingester.Names()) == 1
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"a.txt"}, ingester.Names())
	assert.FileExists(t, hidden)
}

func TestWatcher_ResultHook(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("x"), 0o644))

	done := make(chan Result, 1)
	w := NewWatcher(dir, &recordingIngester{},
		WithSettleDelay(10*time.Millisecond),
		WithResultHook(func(_ string, result Result, err error) {
			assert.NoError(t, err)
			done <- result
		}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	select {
	case result := <-done:
		assert.Equal(t, "a.txt", result.DocName)
	case <-time.After(5 * time.Second):
		t.Fatal("hook not called")
	}
}
