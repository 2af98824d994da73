package minio

import (
	"context"
	"io"

	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"
)

// PutObjectOptions represents options for uploading an object
type PutObjectOptions struct {
	// ContentType is the content type of the object
	ContentType string
	// ContentDisposition sets the content disposition header
	ContentDisposition string
	// UserMetadata is custom metadata for the object
	UserMetadata map[string]string
}

// UploadInfo represents information about an uploaded object
type UploadInfo struct {
	Bucket string
	Key    string
	ETag   string
	Size   int64
}

// PutObject uploads an object to the configured bucket
func (c *Client) PutObject(ctx context.Context, objectName string, reader io.Reader, objectSize int64, opts PutObjectOptions) (UploadInfo, error) {
	if err := c.checkClosed(); err != nil {
		return UploadInfo{}, err
	}

	bucket := c.config.Bucket
	if err := ValidateObjectName(objectName); err != nil {
		return UploadInfo{}, WrapError("PutObject", ErrInvalidObjectName, bucket, objectName)
	}
	if reader == nil {
		return UploadInfo{}, WrapErrorWithMessage("PutObject", ErrInvalidArgument, "reader cannot be nil")
	}

	info, err := c.client.PutObject(ctx, bucket, objectName, reader, objectSize, minio.PutObjectOptions{
		ContentType:        opts.ContentType,
		ContentDisposition: opts.ContentDisposition,
		UserMetadata:       opts.UserMetadata,
	})
	if err != nil {
		return UploadInfo{}, WrapError("PutObject", err, bucket, objectName)
	}

	c.logger.Debug("object uploaded",
		zap.String("bucket", bucket),
		zap.String("object", objectName),
		zap.Int64("size", info.Size),
	)

	return UploadInfo{
		Bucket: info.Bucket,
		Key:    info.Key,
		ETag:   info.ETag,
		Size:   info.Size,
	}, nil
}

// RemoveObject removes an object from the configured bucket. A missing
// object is not an error.
func (c *Client) RemoveObject(ctx context.Context, objectName string) error {
	if err := c.checkClosed(); err != nil {
		return err
	}

	bucket := c.config.Bucket
	if objectName == "" {
		return WrapError("RemoveObject", ErrInvalidObjectName, bucket, objectName)
	}

	if err := c.client.RemoveObject(ctx, bucket, objectName, minio.RemoveObjectOptions{}); err != nil && !IsNotFound(err) {
		return WrapError("RemoveObject", err, bucket, objectName)
	}

	c.logger.Debug("object removed", zap.String("bucket", bucket), zap.String("object", objectName))
	return nil
}
