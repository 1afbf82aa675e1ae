package artifactstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"
)

// s3API is the subset of the S3 client used by Store.
type s3API interface {
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Bucket       string
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
}

// URI returns the object location as s3://bucket/key.
func (o *ObjectInfo) URI() string {
	return Location{Bucket: o.Bucket, Key: o.Key}.String()
}

// Store uploads artifacts to one bucket.
type Store struct {
	client s3API
	bucket string
	logger *zap.Logger
}

// New creates a store for cfg.Bucket. A nil logger disables logging.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, &StoreError{Op: "New", Bucket: cfg.Bucket, Err: err}
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.ForcePathStyle {
			o.UsePathStyle = true
		}
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return &Store{client: client, bucket: cfg.Bucket, logger: logger}, nil
}

func loadAWSConfig(ctx context.Context, cfg Config) (aws.Config, error) {
	var opts []func(*config.LoadOptions) error

	// Leave region resolution to the SDK (env, profile) unless set explicitly.
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(cfg.Profile))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, err
	}
	awsCfg.Region = resolveRegion(cfg.Endpoint, awsCfg.Region)
	return awsCfg, nil
}

// Bucket returns the bucket this store writes to.
func (s *Store) Bucket() string {
	return s.bucket
}

// Head returns metadata for a single object.
func (s *Store) Head(ctx context.Context, key string) (*ObjectInfo, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, s.wrapError("Head", key, err)
	}
	return &ObjectInfo{
		Bucket:       s.bucket,
		Key:          key,
		Size:         aws.ToInt64(out.ContentLength),
		ETag:         cleanETag(aws.ToString(out.ETag)),
		LastModified: aws.ToTime(out.LastModified),
	}, nil
}

// Put uploads body as key.
func (s *Store) Put(ctx context.Context, key string, body io.Reader, size int64) (*ObjectInfo, error) {
	out, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String("application/octet-stream"),
	})
	if err != nil {
		return nil, s.wrapError("Put", key, err)
	}
	return &ObjectInfo{
		Bucket: s.bucket,
		Key:    key,
		Size:   size,
		ETag:   cleanETag(aws.ToString(out.ETag)),
	}, nil
}

// Publish uploads the local file at path as key. An existing object is
// left in place and ErrAlreadyExists returned unless overwrite is set.
func (s *Store) Publish(ctx context.Context, path, key string, overwrite bool) (*ObjectInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("artifact: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("artifact %s is a directory", path)
	}

	if !overwrite {
		existing, err := s.Head(ctx, key)
		switch {
		case err == nil:
			return existing, &StoreError{Op: "Publish", Bucket: s.bucket, Key: key, Err: ErrAlreadyExists}
		case !IsNotFound(err):
			return nil, err
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("artifact: %w", err)
	}
	defer func() { _ = f.Close() }()

	s.logger.Debug("Uploading artifact",
		zap.String("path", path),
		zap.String("bucket", s.bucket),
		zap.String("key", key),
		zap.Int64("size", info.Size()))

	return s.Put(ctx, key, f, info.Size())
}

// wrapError converts S3 errors to StoreErrors carrying a sentinel.
func (s *Store) wrapError(op, key string, err error) error {
	wrapped := &StoreError{Op: op, Bucket: s.bucket, Key: key, Err: err}

	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	var noSuchBucket *types.NoSuchBucket
	switch {
	case errors.As(err, &notFound), errors.As(err, &noSuchKey):
		wrapped.Err = ErrNotFound
		return wrapped
	case errors.As(err, &noSuchBucket):
		wrapped.Err = ErrBucketNotFound
		return wrapped
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			wrapped.Err = ErrNotFound
		case "NoSuchBucket":
			wrapped.Err = ErrBucketNotFound
		case "AccessDenied", "Forbidden":
			wrapped.Err = ErrAccessDenied
		case "InvalidAccessKeyId", "SignatureDoesNotMatch":
			wrapped.Err = ErrInvalidCredentials
		case "SlowDown", "Throttling", "RequestLimitExceeded":
			wrapped.Err = ErrThrottled
		case "ServiceUnavailable", "InternalError":
			wrapped.Err = ErrUnavailable
		}
		return wrapped
	}

	// Some S3-compatible stores only surface the status in the message.
	msg := err.Error()
	switch {
	case strings.Contains(msg, "NoSuchBucket"):
		wrapped.Err = ErrBucketNotFound
	case strings.Contains(msg, "NoSuchKey") || strings.Contains(msg, "StatusCode: 404"):
		wrapped.Err = ErrNotFound
	case strings.Contains(msg, "AccessDenied") || strings.Contains(msg, "StatusCode: 403"):
		wrapped.Err = ErrAccessDenied
	case strings.Contains(msg, "SlowDown") || strings.Contains(msg, "StatusCode: 429"):
		wrapped.Err = ErrThrottled
	case strings.Contains(msg, "StatusCode: 503"):
		wrapped.Err = ErrUnavailable
	}
	return wrapped
}

// cleanETag removes the quotes S3 puts around ETags.
func cleanETag(etag string) string {
	return strings.Trim(etag, "\"")
}

// resolveRegion applies the AWS default when the SDK resolved no region.
// S3-compatible endpoints get no default.
func resolveRegion(endpoint, sdkRegion string) string {
	if sdkRegion != "" {
		return sdkRegion
	}
	if endpoint == "" {
		return DefaultAWSRegion
	}
	return ""
}
