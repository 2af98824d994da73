package minio

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()

	cfg := DefaultConfig()
	cfg.AccessKeyID = "minioadmin"
	cfg.SecretAccessKey = "minioadmin"

	client, err := NewClient(cfg, nil)
	require.NoError(t, err)
	return client
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"missing endpoint", func(c *Config) { c.Endpoint = "" }, true},
		{"missing access key", func(c *Config) { c.AccessKeyID = "" }, true},
		{"bad bucket", func(c *Config) { c.Bucket = "Bad_Bucket" }, true},
		{"ip bucket", func(c *Config) { c.Bucket = "192.168.1.1" }, true},
		{"bad lookup", func(c *Config) { c.BucketLookup = "virtual" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.AccessKeyID = "a"
			cfg.SecretAccessKey = "b"
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPresignedGetObject(t *testing.T) {
	client := newTestClient(t)

	u, err := client.PresignedGetObject(context.Background(), "t1/f1/report.pdf", "report.pdf", time.Hour)
	require.NoError(t, err)

	assert.Equal(t, "/transfers/t1/f1/report.pdf", u.Path)
	q := u.Query()
	assert.NotEmpty(t, q.Get("X-Amz-Signature"))
	assert.Equal(t, "3600", q.Get("X-Amz-Expires"))
	assert.True(t, strings.Contains(q.Get("response-content-disposition"), `filename="report.pdf"`))
}

func TestPresignedGetObjectValidation(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	_, err := client.PresignedGetObject(ctx, "", "", time.Hour)
	assert.ErrorIs(t, err, ErrInvalidObjectName)

	_, err = client.PresignedGetObject(ctx, "k", "", 8*24*time.Hour)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	require.NoError(t, client.Close())
	_, err = client.PresignedGetObject(ctx, "k", "", time.Hour)
	assert.ErrorIs(t, err, ErrConnectionFailed)
}

func TestObjectKey(t *testing.T) {
	tests := []struct {
		name string
		file string
		want string
	}{
		{"plain", "report.pdf", "t/f/report.pdf"},
		{"path traversal", "../../etc/passwd", "t/f/passwd"},
		{"windows path", `C:\docs\a.txt`, "t/f/a.txt"},
		{"empty", "", "t/f/file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ObjectKey("t", "f", tt.file))
		})
	}
}

func TestDetectContentType(t *testing.T) {
	assert.Equal(t, "application/pdf", DetectContentType("a.pdf"))
	assert.Equal(t, "application/octet-stream", DetectContentType("noext"))
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		notFound      bool
		alreadyExists bool
	}{
		{"nil", nil, false, false},
		{"no such key", minio.ErrorResponse{Code: "NoSuchKey"}, true, false},
		{"no such bucket wrapped", WrapError("RemoveObject", minio.ErrorResponse{Code: "NoSuchBucket"}, "b", "k"), true, false},
		{"bucket owned", minio.ErrorResponse{Code: "BucketAlreadyOwnedByYou"}, false, true},
		{"bucket exists", minio.ErrorResponse{Code: "BucketAlreadyExists"}, false, true},
		{"access denied", minio.ErrorResponse{Code: "AccessDenied"}, false, false},
		{"sentinel", ErrConnectionFailed, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.notFound, IsNotFound(tt.err))
			assert.Equal(t, tt.alreadyExists, IsBucketAlreadyExists(tt.err))
		})
	}
}
