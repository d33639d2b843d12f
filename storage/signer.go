package storage

import (
	"context"
	"fmt"
	"time"

	"songforge/config"
)

// URLSigner produces time-limited retrieval links for private objects.
type URLSigner interface {
	PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// NewSigner builds the signer selected by cfg.StorageDriver.
func NewSigner(ctx context.Context, cfg *config.Config) (URLSigner, error) {
	switch cfg.StorageDriver {
	case config.StorageDriverMinio:
		return NewMinioSigner(ctx, MinioOptions{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			Region:    cfg.MinioRegion,
			UseSSL:    cfg.MinioUseSSL,
		})
	case config.StorageDriverS3:
		return NewS3Signer(ctx, S3Options{
			Bucket:   cfg.S3Bucket,
			Region:   cfg.AWSRegion,
			Endpoint: cfg.S3Endpoint,
		})
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}
