package modelstore

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// R2Fetcher downloads weights from Cloudflare R2 or any S3-compatible bucket.
type R2Fetcher struct {
	client *minio.Client
	bucket string
	logger *slog.Logger
}

// NewR2Fetcher constructs the fetcher.
func NewR2Fetcher(endpoint, accessKey, secretKey, bucket, region string, logger *slog.Logger) (*R2Fetcher, error) {
	cleanEndpoint := sanitizeEndpoint(endpoint)
	useSSL := !strings.HasPrefix(strings.ToLower(strings.TrimSpace(endpoint)), "http://")
	client, err := minio.New(cleanEndpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure:       useSSL,
		Region:       region,
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		return nil, fmt.Errorf("init model store client: %w", err)
	}
	return &R2Fetcher{client: client, bucket: bucket, logger: logger.With("component", "modelstore.r2")}, nil
}

// Fetch streams the object to dest. minio writes to a partial file and renames it
// on completion, so an interrupted download never leaves a truncated model behind.
func (f *R2Fetcher) Fetch(ctx context.Context, key, dest string) error {
	info, err := f.client.StatObject(ctx, f.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return fmt.Errorf("object %s/%s does not exist", f.bucket, key)
		}
		return err
	}
	f.logger.Info("downloading model", "bucket", f.bucket, "key", key, "bytes", info.Size)
	return f.client.FGetObject(ctx, f.bucket, key, dest, minio.GetObjectOptions{})
}

// sanitizeEndpoint removes schemes and paths to satisfy minio.New expectations.
func sanitizeEndpoint(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return raw
	}
	raw = strings.TrimPrefix(strings.TrimPrefix(raw, "https://"), "http://")
	if strings.Contains(raw, "/") {
		parts := strings.Split(raw, "/")
		raw = parts[0]
	}
	return raw
}
