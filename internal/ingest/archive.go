package ingest

import (
	"context"
	"fmt"
	"mime"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aihub/ragbot/internal/config"
	"github.com/aihub/ragbot/internal/logger"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// Archiver 原文归档接口，返回对象键
type Archiver interface {
	Archive(ctx context.Context, docName, filePath string) (string, error)
}

// MinIOArchiver 把入库源文件归档到 MinIO
type MinIOArchiver struct {
	client *minio.Client
	bucket string
}

// NewMinIOArchiver 创建归档器并确保 bucket 存在
func NewMinIOArchiver(ctx context.Context, cfg config.ArchiveConfig) (*MinIOArchiver, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio endpoint not configured")
	}
	bucket := cfg.Bucket
	if bucket == "" {
		bucket = "ragbot-sources"
	}

	// minio.New 不接受协议前缀
	client, err := minio.New(normalizeEndpoint(cfg.Endpoint), &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %s: %w", bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			resp := minio.ToErrorResponse(err)
			if resp.Code != "BucketAlreadyOwnedByYou" && resp.Code != "BucketAlreadyExists" {
				return nil, fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		logger.Info("MinIO bucket created", zap.String("bucket", bucket))
	}

	return &MinIOArchiver{client: client, bucket: bucket}, nil
}

// Archive 上传文件，对象键为 sources/<日期>/<uuid>-<文件名>
func (a *MinIOArchiver) Archive(ctx context.Context, docName, filePath string) (string, error) {
	key := objectKey(time.Now(), uuid.NewString(), filepath.Base(filePath))
	opts := minio.PutObjectOptions{
		ContentType:  contentType(filePath),
		UserMetadata: map[string]string{"doc-name": docName},
	}

	info, err := a.client.FPutObject(ctx, a.bucket, key, filePath, opts)
	if err != nil {
		return "", fmt.Errorf("failed to archive %s: %w", filePath, err)
	}

	logger.Debug("source archived",
		zap.String("bucket", a.bucket),
		zap.String("key", key),
		zap.Int64("size", info.Size))
	return key, nil
}

func normalizeEndpoint(endpoint string) string {
	endpoint = strings.TrimPrefix(endpoint, "http://")
	endpoint = strings.TrimPrefix(endpoint, "https://")
	return strings.TrimSuffix(endpoint, "/")
}

func objectKey(now time.Time, id, filename string) string {
	return path.Join("sources", now.UTC().Format("2006/01/02"), id+"-"+filename)
}

func contentType(filePath string) string {
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(filePath))); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
