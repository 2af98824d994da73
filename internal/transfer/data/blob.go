package data

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/kingshare/transfer-backend/internal/pkg/logger"
	pkgminio "github.com/kingshare/transfer-backend/internal/pkg/minio"
	"github.com/kingshare/transfer-backend/internal/transfer/biz"
	"go.uber.org/zap"
)

// MinIOBlobStore 基于 MinIO 的文件存储
type MinIOBlobStore struct {
	client *pkgminio.Client
	expiry time.Duration
	logger *logger.Logger
}

var _ biz.BlobStore = (*MinIOBlobStore)(nil)

// NewMinIOBlobStore 创建文件存储，expiry 为预签名链接有效期
func NewMinIOBlobStore(client *pkgminio.Client, expiry time.Duration, log *logger.Logger) *MinIOBlobStore {
	if expiry <= 0 {
		expiry = client.Config().PresignExpiry
	}
	return &MinIOBlobStore{client: client, expiry: expiry, logger: log.Named("blob")}
}

func (s *MinIOBlobStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	if contentType == "" {
		contentType = pkgminio.DetectContentType(key)
	}
	if _, err := s.client.PutObject(ctx, key, r, size, pkgminio.PutObjectOptions{ContentType: contentType}); err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	s.logger.Debug("file stored", zap.String("key", key), zap.Int64("size", size))
	return nil
}

func (s *MinIOBlobStore) PresignGet(ctx context.Context, key, fileName string) (string, time.Time, error) {
	u, err := s.client.PresignedGetObject(ctx, key, fileName, s.expiry)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("presign %s: %w", key, err)
	}
	return u.String(), time.Now().Add(s.expiry), nil
}

func (s *MinIOBlobStore) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}
