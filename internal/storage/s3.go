package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

const (
	// S3 rejects multipart parts smaller than 5 MiB (except the last one).
	minPartSize = 5 * 1024 * 1024

	defaultPartSize = 25 * 1024 * 1024
)

// S3Config configures the S3-backed storage adapter. It is resolved once at
// task start and shared read-only by all partition writers.
type S3Config struct {
	Logger *slog.Logger
	Region string
	Bucket string

	// Optional static credentials; the default AWS credential chain applies
	// when unset.
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string

	// Optional custom endpoint for MinIO and similar services; implies
	// path-style addressing.
	Endpoint       string
	ForcePathStyle bool

	// PartSize is both the multipart threshold and the part size in bytes
	// for streamed writes.
	PartSize int64
}

func (c *S3Config) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.Region == "" {
		return errors.New("region is required")
	}
	if c.Bucket == "" {
		return errors.New("bucket is required")
	}
	if c.PartSize == 0 {
		c.PartSize = defaultPartSize
	}
	if c.PartSize < minPartSize {
		return fmt.Errorf("part size must be at least %d bytes", minPartSize)
	}
	return nil
}

// s3API is the subset of the S3 client the adapter uses. Tests inject a
// double implementing it.
type s3API interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	CreateMultipartUpload(ctx context.Context, params *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error)
	UploadPart(ctx context.Context, params *s3.UploadPartInput, optFns ...func(*s3.Options)) (*s3.UploadPartOutput, error)
	CompleteMultipartUpload(ctx context.Context, params *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error)
	AbortMultipartUpload(ctx context.Context, params *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error)
}

// S3Storage implements Storage over a single S3 bucket.
type S3Storage struct {
	log      *slog.Logger
	bucket   string
	partSize int64
	api      s3API
}

// NewS3Storage loads AWS configuration per cfg and returns an adapter bound
// to the configured bucket.
func NewS3Storage(ctx context.Context, cfg *S3Config) (*S3Storage, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken)))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true // required for MinIO and similar services
		}
		if cfg.ForcePathStyle {
			o.UsePathStyle = true
		}
	})

	return newS3StorageWithAPI(cfg, client), nil
}

// newS3StorageWithAPI is used by tests to inject a client double.
func newS3StorageWithAPI(cfg *S3Config, api s3API) *S3Storage {
	return &S3Storage{
		log:      cfg.Logger,
		bucket:   cfg.Bucket,
		partSize: cfg.PartSize,
		api:      api,
	}
}

func (s *S3Storage) Exists(ctx context.Context, name string) (bool, error) {
	if strings.TrimSpace(name) == "" {
		return false, nil
	}
	_, err := s.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(name),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("head object %s: %w", name, err)
	}
	return true, nil
}

func (s *S3Storage) BucketExists(ctx context.Context) (bool, error) {
	if strings.TrimSpace(s.bucket) == "" {
		return false, nil
	}
	_, err := s.api.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("head bucket %s: %w", s.bucket, err)
	}
	return true, nil
}

func (s *S3Storage) List(ctx context.Context, prefix, token string) (*Listing, error) {
	in := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	}
	if token != "" {
		in.ContinuationToken = aws.String(token)
	}
	out, err := s.api.ListObjectsV2(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("list objects under %q: %w", prefix, err)
	}

	listing := &Listing{
		Objects:   make([]ObjectInfo, 0, len(out.Contents)),
		Truncated: aws.ToBool(out.IsTruncated),
		NextToken: aws.ToString(out.NextContinuationToken),
	}
	for _, obj := range out.Contents {
		listing.Objects = append(listing.Objects, ObjectInfo{
			Name: aws.ToString(obj.Key),
			Size: aws.ToInt64(obj.Size),
		})
	}
	return listing, nil
}

// Delete removes the named object. The bucket identity itself is never
// deleted; asking for it is a no-op so that a misconfigured path can never
// take out the whole namespace.
func (s *S3Storage) Delete(ctx context.Context, name string) error {
	if name == s.bucket {
		s.log.Debug("refusing to delete bucket identity", "bucket", s.bucket)
		return nil
	}
	_, err := s.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(name),
	})
	if err != nil {
		return fmt.Errorf("delete object %s: %w", name, err)
	}
	return nil
}

func (s *S3Storage) Create(ctx context.Context, name string, overwrite bool) (ObjectWriter, error) {
	if !overwrite {
		return nil, fmt.Errorf("create %s without overwrite: %w", name, ErrUnsupported)
	}
	if strings.TrimSpace(name) == "" {
		return nil, ErrInvalidName
	}
	return newObjectWriter(ctx, s, name), nil
}

func (s *S3Storage) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	return nil, fmt.Errorf("open %s for reading: %w", name, ErrUnsupported)
}

func (s *S3Storage) Append(ctx context.Context, name string) (ObjectWriter, error) {
	return nil, fmt.Errorf("append to %s: %w", name, ErrUnsupported)
}

// Close releases the client. The SDK client holds no connection state that
// needs explicit teardown, so this is a no-op beyond satisfying Storage.
func (s *S3Storage) Close() error {
	return nil
}

func isNotFound(err error) bool {
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var noKey *types.NoSuchKey
	if errors.As(err, &noKey) {
		return true
	}
	var noBucket *types.NoSuchBucket
	return errors.As(err, &noBucket)
}
