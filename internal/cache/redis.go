package cache

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/aihub/ragbot/internal/config"
	"github.com/aihub/ragbot/internal/logger"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "ragbot:embedding:"

// NewRedisClient 创建Redis客户端并测试连接
func NewRedisClient(ctx context.Context, cfg config.CacheConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		DB:       cfg.DB,
		Password: cfg.Password,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis connected", zap.String("addr", cfg.Addr()), zap.Int("db", cfg.DB))
	return rdb, nil
}

// RedisVectorCache 以二进制 float32 存储向量
type RedisVectorCache struct {
	client redis.Cmdable
}

// NewRedisVectorCache 创建向量缓存
func NewRedisVectorCache(client redis.Cmdable) *RedisVectorCache {
	return &RedisVectorCache{client: client}
}

// Get 读取向量，键不存在时返回 ok=false
func (c *RedisVectorCache) Get(ctx context.Context, key string) ([]float32, bool, error) {
	data, err := c.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	vec, err := DecodeVector(data)
	if err != nil {
		return nil, false, err
	}
	return vec, true, nil
}

// Set 写入向量并设置过期时间
func (c *RedisVectorCache) Set(ctx context.Context, key string, vector []float32, ttl time.Duration) error {
	return c.client.Set(ctx, keyPrefix+key, EncodeVector(vector), ttl).Err()
}

// EncodeVector 小端序编码
func EncodeVector(vector []float32) []byte {
	buf := make([]byte, 4*len(vector))
	for i, v := range vector {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// DecodeVector 解码 EncodeVector 的结果
func DecodeVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("corrupted vector payload: %d bytes", len(data))
	}
	vector := make([]float32, len(data)/4)
	for i := range vector {
		vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vector, nil
}
