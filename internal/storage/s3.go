package storage

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config holds the configuration for the S3 archiver.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string // Optional: for custom S3-compatible endpoints
	AccessKeyID     string // Optional: AWS access key ID
	SecretAccessKey string // Optional: AWS secret access key
}

// S3Archiver mirrors completed sessions to an S3 bucket.
// Local disk remains the source of truth for downloads; the archive is
// an off-box copy that outlives the retention window.
type S3Archiver struct {
	source Storage
	client *s3.Client
	bucket string
	region string
}

// NewS3Archiver creates a new S3Archiver reading session files from source.
func NewS3Archiver(source Storage, cfg S3Config) (*S3Archiver, error) {
	var configOpts []func(*awsconfig.LoadOptions) error
	configOpts = append(configOpts, awsconfig.WithRegion(cfg.Region))

	// Use static credentials if provided
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		configOpts = append(configOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), configOpts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var clientOpts []func(*s3.Options)
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	client := s3.NewFromConfig(awsCfg, clientOpts...)

	return &S3Archiver{
		source: source,
		client: client,
		bucket: cfg.Bucket,
		region: cfg.Region,
	}, nil
}

// Archive uploads every file of a session to s3://bucket/<sessionID>/<name>.
// It stops at the first failure so a retry re-covers the remainder.
func (a *S3Archiver) Archive(ctx context.Context, sessionID string) error {
	names, err := a.source.ListFiles(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("list session files: %w", err)
	}

	for _, name := range names {
		if err := a.archiveOne(ctx, sessionID, name); err != nil {
			return err
		}
	}
	return nil
}

func (a *S3Archiver) archiveOne(ctx context.Context, sessionID, name string) error {
	body, size, err := a.source.OpenFile(ctx, sessionID, name)
	if err != nil {
		return fmt.Errorf("open %s: %w", name, err)
	}
	defer func() { _ = body.Close() }()

	key := sessionID + "/" + name
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return fmt.Errorf("upload %s to S3: %w", key, err)
	}
	return nil
}
