package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config 服务全部配置，由 ConfigLoader 构建后显式传给各组件
type Config struct {
	App       AppConfig       `mapstructure:"app" validate:"required"`
	Server    ServerConfig    `mapstructure:"server"`
	OpenAI    OpenAIConfig    `mapstructure:"openai"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Chat      ChatConfig      `mapstructure:"chat"`
	Store     StoreConfig     `mapstructure:"store"`
	Chunking  ChunkingConfig  `mapstructure:"chunking"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Events    EventsConfig    `mapstructure:"events"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// AppConfig 应用基础配置
type AppConfig struct {
	Name     string `mapstructure:"name" validate:"required"`
	Env      string `mapstructure:"env" validate:"required,oneof=development staging production"`
	LogLevel string `mapstructure:"log_level" validate:"omitempty,oneof=debug info warn error"`
}

type ServerConfig struct {
	Port int `mapstructure:"port" validate:"gt=0,lte=65535"`
	// CORSOrigins 允许跨域的来源，"*" 表示全部
	CORSOrigins []string `mapstructure:"cors_origins"`
}

type OpenAIConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url" validate:"omitempty,url"`
}

// EmbeddingConfig 向量化配置
type EmbeddingConfig struct {
	Model             string      `mapstructure:"model" validate:"required"`
	Dimensions        int         `mapstructure:"dimensions" validate:"gt=0"`
	RequestsPerSecond float64     `mapstructure:"requests_per_second" validate:"gte=0"`
	Burst             int         `mapstructure:"burst" validate:"gte=0"`
	Retry             RetryConfig `mapstructure:"retry"`
}

// RetryConfig 重试策略配置
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts" validate:"gte=1"`
	BaseDelay   time.Duration `mapstructure:"base_delay" validate:"gt=0"`
	MaxDelay    time.Duration `mapstructure:"max_delay" validate:"gtfield=BaseDelay"`
}

// ChatConfig 对话模型配置
type ChatConfig struct {
	Model       string        `mapstructure:"model" validate:"required"`
	Temperature float32       `mapstructure:"temperature" validate:"gte=0,lte=2"`
	SearchLimit int           `mapstructure:"search_limit" validate:"gt=0"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Breaker     BreakerConfig `mapstructure:"breaker"`
	// HistoryLimit 自由对话每个会话保留的消息数
	HistoryLimit int           `mapstructure:"history_limit" validate:"gte=0"`
	HistoryTTL   time.Duration `mapstructure:"history_ttl"`
}

// BreakerConfig 熔断配置
type BreakerConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	FailureThreshold uint32        `mapstructure:"failure_threshold"`
	OpenTimeout      time.Duration `mapstructure:"open_timeout"`
}

// StoreConfig 向量库配置
type StoreConfig struct {
	Path        string `mapstructure:"path" validate:"required"`
	Table       string `mapstructure:"table" validate:"required"`
	IngestTable string `mapstructure:"ingest_table" validate:"required"`
}

type ChunkingConfig struct {
	Size    int `mapstructure:"size" validate:"gt=0"`
	Overlap int `mapstructure:"overlap" validate:"gte=0,ltfield=Size"`
	// PageSize 网页文本的分块大小，为 0 时与文件相同
	PageSize    int `mapstructure:"page_size" validate:"gte=0"`
	PageOverlap int `mapstructure:"page_overlap" validate:"gte=0"`
}

// ForPages 返回网页文本使用的分块参数
func (c ChunkingConfig) ForPages() (size, overlap int) {
	if c.PageSize <= 0 {
		return c.Size, c.Overlap
	}
	return c.PageSize, c.PageOverlap
}

// IngestConfig 文档入库配置
type IngestConfig struct {
	UploadDir         string        `mapstructure:"upload_dir" validate:"required"`
	TempDir           string        `mapstructure:"temp_dir" validate:"required"`
	MaxFileSize       int64         `mapstructure:"max_file_size" validate:"gt=0"`
	MaxPDFPages       int           `mapstructure:"max_pdf_pages" validate:"gt=0"`
	AllowedExtensions []string      `mapstructure:"allowed_extensions" validate:"min=1"`
	MinDelay          time.Duration `mapstructure:"min_delay"`
	MaxDelay          time.Duration `mapstructure:"max_delay" validate:"gtefield=MinDelay"`
	HTTPTimeout       time.Duration `mapstructure:"http_timeout"`
}

// CacheConfig Redis向量缓存配置
type CacheConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	DB       int           `mapstructure:"db"`
	Password string        `mapstructure:"password"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// ArchiveConfig MinIO原文归档配置
type ArchiveConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Endpoint  string `mapstructure:"endpoint" validate:"required_if=Enabled true"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket" validate:"required_if=Enabled true"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// EventsConfig Kafka入库事件配置
type EventsConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic" validate:"required_if=Enabled true"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Addr 返回Redis地址
func (c CacheConfig) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// ConfigLoader 配置加载器
type ConfigLoader struct {
	viper      *viper.Viper
	validator  *validator.Validate
	configFile string
}

// NewConfigLoader 创建配置加载器
func NewConfigLoader() *ConfigLoader {
	v := viper.New()
	v.SetEnvPrefix("RAGBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &ConfigLoader{
		viper:     v,
		validator: validator.New(),
	}
}

// WithFile 指定配置文件，优先于 CONFIG_FILE 环境变量
func (cl *ConfigLoader) WithFile(path string) *ConfigLoader {
	cl.configFile = path
	return cl
}

// Load 从默认值、配置文件和环境变量加载配置
func (cl *ConfigLoader) Load() (*Config, error) {
	cl.setDefaults()

	configFile := cl.configFile
	if configFile == "" {
		configFile = os.Getenv("CONFIG_FILE")
	}
	if configFile != "" {
		cl.viper.SetConfigFile(configFile)
		if err := cl.viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	if err := cl.loadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load from environment: %w", err)
	}

	var config Config
	if err := cl.viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cl.validator.Struct(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults 设置默认值
func (cl *ConfigLoader) setDefaults() {
	v := cl.viper

	// 应用配置
	v.SetDefault("app.name", "ragbot")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.log_level", "info")

	v.SetDefault("server.port", 8001)
	v.SetDefault("server.cors_origins", []string{
		"http://localhost:5173",
		"http://localhost:3000",
		"http://127.0.0.1:5173",
		"http://127.0.0.1:3000",
	})

	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.base_url", "")

	// 向量化
	v.SetDefault("embedding.model", "text-embedding-3-large")
	v.SetDefault("embedding.dimensions", 1536)
	v.SetDefault("embedding.requests_per_second", 5.0)
	v.SetDefault("embedding.burst", 1)
	v.SetDefault("embedding.retry.max_attempts", 5)
	v.SetDefault("embedding.retry.base_delay", "1s")
	v.SetDefault("embedding.retry.max_delay", "60s")

	// 对话模型
	v.SetDefault("chat.model", "gpt-4o-mini")
	v.SetDefault("chat.temperature", 0.2)
	v.SetDefault("chat.search_limit", 3)
	v.SetDefault("chat.timeout", "2m")
	v.SetDefault("chat.history_limit", 20)
	v.SetDefault("chat.history_ttl", "24h")
	v.SetDefault("chat.breaker.enabled", true)
	v.SetDefault("chat.breaker.failure_threshold", 5)
	v.SetDefault("chat.breaker.open_timeout", "30s")

	// 向量库
	v.SetDefault("store.path", "./data/lancedb")
	v.SetDefault("store.table", "from_txt")
	v.SetDefault("store.ingest_table", "pdf_chunks")

	v.SetDefault("chunking.size", 1000)
	v.SetDefault("chunking.overlap", 200)
	v.SetDefault("chunking.page_size", 3000)
	v.SetDefault("chunking.page_overlap", 200)

	// 入库
	v.SetDefault("ingest.upload_dir", "./data/uploads")
	v.SetDefault("ingest.temp_dir", "./data/temp_files")
	v.SetDefault("ingest.max_file_size", 10485760) // 10MB
	v.SetDefault("ingest.max_pdf_pages", 20)
	v.SetDefault("ingest.allowed_extensions", []string{".pdf", ".docx", ".txt"})
	v.SetDefault("ingest.min_delay", "500ms")
	v.SetDefault("ingest.max_delay", "1500ms")
	v.SetDefault("ingest.http_timeout", "30s")

	// 缓存
	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.host", "localhost")
	v.SetDefault("cache.port", "6379")
	v.SetDefault("cache.db", 0)
	v.SetDefault("cache.password", "")
	v.SetDefault("cache.ttl", "24h")

	// 归档
	v.SetDefault("archive.enabled", false)
	v.SetDefault("archive.endpoint", "")
	v.SetDefault("archive.access_key", "")
	v.SetDefault("archive.secret_key", "")
	v.SetDefault("archive.bucket", "ragbot-sources")
	v.SetDefault("archive.use_ssl", false)

	// 事件
	v.SetDefault("events.enabled", false)
	v.SetDefault("events.brokers", []string{"localhost:9092"})
	v.SetDefault("events.topic", "ragbot-ingestion")

	v.SetDefault("metrics.enabled", true)
}

// loadFromEnv 兼容不带前缀的常用环境变量
func (cl *ConfigLoader) loadFromEnv() error {
	v := cl.viper

	if env := os.Getenv("ENV"); env != "" {
		v.Set("app.env", env)
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		v.Set("app.log_level", level)
	}
	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", port, err)
		}
		v.Set("server.port", p)
	}
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		v.Set("openai.api_key", apiKey)
	}
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		v.Set("openai.base_url", baseURL)
	}
	if dbPath := os.Getenv("DB_PATH"); dbPath != "" {
		v.Set("store.path", dbPath)
	}
	if redisHost := os.Getenv("REDIS_HOST"); redisHost != "" {
		v.Set("cache.host", redisHost)
	}
	if redisPort := os.Getenv("REDIS_PORT"); redisPort != "" {
		v.Set("cache.port", redisPort)
	}
	if minioEndpoint := os.Getenv("MINIO_ENDPOINT"); minioEndpoint != "" {
		v.Set("archive.endpoint", minioEndpoint)
	}
	if minioAccessKey := os.Getenv("MINIO_ACCESS_KEY"); minioAccessKey != "" {
		v.Set("archive.access_key", minioAccessKey)
	}
	if minioSecretKey := os.Getenv("MINIO_SECRET_KEY"); minioSecretKey != "" {
		v.Set("archive.secret_key", minioSecretKey)
	}
	if kafkaBrokers := os.Getenv("KAFKA_BROKERS"); kafkaBrokers != "" {
		// 支持逗号分隔的broker列表
		brokers := strings.Split(kafkaBrokers, ",")
		for i := range brokers {
			brokers[i] = strings.TrimSpace(brokers[i])
		}
		v.Set("events.brokers", brokers)
	}

	return nil
}
