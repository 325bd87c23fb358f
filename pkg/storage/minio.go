// Package storage 提供扫描原图的对象存储归档。
package storage

import (
	"bytes"
	"context"
	"fmt"

	"agri-ai-go/internal/config"
	"agri-ai-go/pkg/log"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ImageArchive 保存扫描原图，返回对象名
type ImageArchive interface {
	Put(ctx context.Context, objectName string, data []byte, contentType string) (string, error)
}

type minioArchive struct {
	client *minio.Client
	bucket string
}

// NewMinIOArchive 初始化 MinIO 客户端并确保存储桶存在。
func NewMinIOArchive(ctx context.Context, cfg config.MinIOConfig) (ImageArchive, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %s: %w", cfg.BucketName, err)
	}
	if !exists {
		log.Infof("存储桶 '%s' 不存在，正在创建...", cfg.BucketName)
		if err := client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %s: %w", cfg.BucketName, err)
		}
	}
	log.Infof("MinIO 归档就绪，存储桶 '%s'", cfg.BucketName)
	return &minioArchive{client: client, bucket: cfg.BucketName}, nil
}

func (a *minioArchive) Put(ctx context.Context, objectName string, data []byte, contentType string) (string, error) {
	_, err := a.client.PutObject(ctx, a.bucket, objectName, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to put object %s: %w", objectName, err)
	}
	return objectName, nil
}
