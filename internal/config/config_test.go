package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigLoader_Defaults(t *testing.T) {
	// 清理可能影响测试的环境变量
	for _, key := range []string{"CONFIG_FILE", "ENV", "LOG_LEVEL", "PORT", "OPENAI_API_KEY", "DB_PATH", "KAFKA_BROKERS"} {
		t.Setenv(key, "")
	}

	cfg, err := NewConfigLoader().Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "ragbot", cfg.App.Name)
	assert.Equal(t, "development", cfg.App.Env)
	assert.Equal(t, 8001, cfg.Server.Port)

	assert.Equal(t, "text-embedding-3-large", cfg.Embedding.Model)
	assert.Equal(t, 1536, cfg.Embedding.Dimensions)
	assert.Equal(t, 5, cfg.Embedding.Retry.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Embedding.Retry.BaseDelay)
	assert.Equal(t, 60*time.Second, cfg.Embedding.Retry.MaxDelay)

	assert.Equal(t, "gpt-4o-mini", cfg.Chat.Model)
	assert.InDelta(t, 0.2, cfg.Chat.Temperature, 1e-6)
	assert.Equal(t, 3, cfg.Chat.SearchLimit)
	assert.Equal(t, 20, cfg.Chat.HistoryLimit)
	assert.Equal(t, 24*time.Hour, cfg.Chat.HistoryTTL)

	assert.Equal(t, "from_txt", cfg.Store.Table)
	assert.Equal(t, "pdf_chunks", cfg.Store.IngestTable)

	assert.Equal(t, 1000, cfg.Chunking.Size)
	assert.Equal(t, 200, cfg.Chunking.Overlap)
	pageSize, pageOverlap := cfg.Chunking.ForPages()
	assert.Equal(t, 3000, pageSize)
	assert.Equal(t, 200, pageOverlap)

	assert.Equal(t, int64(10*1024*1024), cfg.Ingest.MaxFileSize)
	assert.Equal(t, 20, cfg.Ingest.MaxPDFPages)
	assert.Equal(t, []string{".pdf", ".docx", ".txt"}, cfg.Ingest.AllowedExtensions)
	assert.Equal(t, 500*time.Millisecond, cfg.Ingest.MinDelay)
	assert.Equal(t, 1500*time.Millisecond, cfg.Ingest.MaxDelay)

	assert.False(t, cfg.Cache.Enabled)
	assert.Equal(t, "localhost:6379", cfg.Cache.Addr())
}

func TestConfigLoader_EnvOverrides(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("RAGBOT_STORE_TABLE", "docs")
	t.Setenv("RAGBOT_CHUNKING_SIZE", "400")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("PORT", "9000")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")

	cfg, err := NewConfigLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, "docs", cfg.Store.Table)
	assert.Equal(t, 400, cfg.Chunking.Size)
	assert.Equal(t, "sk-test", cfg.OpenAI.APIKey)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Events.Brokers)
}

func TestConfigLoader_File(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("DB_PATH", "")

	path := filepath.Join(t.TempDir(), "ragbot.yaml")
	content := "store:\n  path: /var/lib/ragbot\nchunking:\n  size: 500\n  overlap: 50\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := NewConfigLoader().WithFile(path).Load()
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/ragbot", cfg.Store.Path)
	assert.Equal(t, 500, cfg.Chunking.Size)
	assert.Equal(t, 50, cfg.Chunking.Overlap)
}

func TestConfigLoader_Validation(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("ENV", "")
	t.Setenv("RAGBOT_APP_ENV", "invalid_env")

	_, err := NewConfigLoader().Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")
}

func TestConfigLoader_OverlapMustBeSmallerThanSize(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("RAGBOT_CHUNKING_SIZE", "100")
	t.Setenv("RAGBOT_CHUNKING_OVERLAP", "100")

	_, err := NewConfigLoader().Load()
	require.Error(t, err)
}

func TestConfigLoader_MissingFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	_, err := NewConfigLoader().WithFile(filepath.Join(t.TempDir(), "absent.yaml")).Load()
	assert.Error(t, err)
}
