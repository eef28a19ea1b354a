package storage

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

// DefaultURLExpiration is how long presigned download links stay valid
const DefaultURLExpiration = 24 * time.Hour

type S3Options struct {
	Bucket string
	Region string
	// Endpoint overrides the S3 endpoint (localstack, minio) and switches to path-style addressing.
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	URLExpiration   time.Duration
}

// S3Store uploads recordings to a bucket and returns presigned GET URLs
type S3Store struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
	expires time.Duration
	logger  *zap.Logger
}

// NewS3Store loads the default AWS config, with static credentials when given
func NewS3Store(ctx context.Context, opts S3Options, logger *zap.Logger) (*S3Store, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opts.Region),
	}
	if opts.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}

	return NewS3StoreFromConfig(cfg, opts, logger), nil
}

func NewS3StoreFromConfig(cfg aws.Config, opts S3Options, logger *zap.Logger) *S3Store {
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	expires := opts.URLExpiration
	if expires <= 0 {
		expires = DefaultURLExpiration
	}

	return &S3Store{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  opts.Bucket,
		expires: expires,
		logger:  logger.Named("s3"),
	}
}

func (s *S3Store) Store(ctx context.Context, localPath, contentType string) (Reference, error) {
	key := newKey(localPath)
	log := s.logger.With(zap.String("bucket", s.bucket), zap.String("key", key))

	file, err := os.Open(localPath)
	if err != nil {
		return Reference{}, &UploadError{Path: localPath, Err: err}
	}
	defer file.Close()

	log.Info("Uploading file to S3", zap.String("content_type", contentType))
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        file,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		log.Error("upload failed, keeping local file", zap.String("path", localPath), zap.Error(err))
		return Reference{}, &UploadError{Path: localPath, Key: key, Err: err}
	}

	signed, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.expires))
	if err != nil {
		log.Error("presigning failed, keeping local file", zap.String("path", localPath), zap.Error(err))
		return Reference{}, &UploadError{Path: localPath, Key: key, Err: fmt.Errorf("presign: %w", err)}
	}

	file.Close()
	if err := os.Remove(localPath); err != nil {
		log.Warn("uploaded but failed to remove local file", zap.String("path", localPath), zap.Error(err))
	} else {
		log.Debug("local file cleaned up", zap.String("path", localPath))
	}

	return Reference{URL: signed.URL, Key: key}, nil
}
