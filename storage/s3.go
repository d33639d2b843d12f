package storage

import (
	"context"
	"fmt"
	"time"

	"songforge/logger"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Options holds configuration for S3Signer.
type S3Options struct {
	Bucket   string
	Region   string
	Endpoint string // Optional custom endpoint for S3-compatible stores
}

// S3Signer presigns GetObject requests against AWS S3.
type S3Signer struct {
	presign *s3.PresignClient
	bucket  string
}

// NewS3Signer loads the default AWS credential chain and builds a presign client.
func NewS3Signer(ctx context.Context, opts S3Options) (*S3Signer, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(opts.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	logger.Info("[Storage] S3 ready", logger.String("region", opts.Region), logger.String("bucket", opts.Bucket))
	return newS3Signer(client, opts.Bucket), nil
}

func newS3Signer(client *s3.Client, bucket string) *S3Signer {
	return &S3Signer{presign: s3.NewPresignClient(client), bucket: bucket}
}

// PresignGet returns a GET link for key valid for expiry.
func (s *S3Signer) PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", fmt.Errorf("s3 presign failed for %s: %w", key, err)
	}
	return req.URL, nil
}
