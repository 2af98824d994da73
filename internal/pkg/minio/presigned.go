package minio

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// PresignedGetObject generates a presigned GET URL for an object in the
// configured bucket. A non-empty downloadName forces an attachment
// Content-Disposition with that filename.
func (c *Client) PresignedGetObject(ctx context.Context, objectName, downloadName string, expiry time.Duration) (*url.URL, error) {
	if err := c.checkClosed(); err != nil {
		return nil, err
	}

	bucket := c.config.Bucket
	if objectName == "" {
		return nil, WrapError("PresignedGetObject", ErrInvalidObjectName, bucket, objectName)
	}
	if expiry <= 0 {
		expiry = c.config.PresignExpiry
	}
	// S3 caps presigned URLs at seven days
	if expiry > 7*24*time.Hour {
		return nil, WrapErrorWithMessage("PresignedGetObject", ErrInvalidArgument, "expiry must not exceed 7 days")
	}

	reqParams := make(url.Values)
	if downloadName != "" {
		reqParams.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", downloadName))
	}

	presignedURL, err := c.client.PresignedGetObject(ctx, bucket, objectName, expiry, reqParams)
	if err != nil {
		return nil, WrapError("PresignedGetObject", err, bucket, objectName)
	}

	c.logger.Debug("presigned GET URL generated",
		zap.String("bucket", bucket),
		zap.String("object", objectName),
		zap.Duration("expiry", expiry),
	)

	return presignedURL, nil
}
