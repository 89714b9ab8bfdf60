package checkpoint

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Config configures the S3 checkpoint backend.
type S3Config struct {
	// Bucket is the S3 bucket for storing checkpoints
	Bucket string

	// Prefix is prepended to all checkpoint keys (e.g., "checkpoints/")
	Prefix string

	// Region is the AWS region
	Region string

	// Endpoint overrides the default S3 endpoint (for S3-compatible services)
	Endpoint string

	// Credentials (optional - uses default chain if not provided)
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string

	// UsePathStyle forces path-style addressing (for MinIO, LocalStack)
	UsePathStyle bool

	// Timeout for S3 operations
	Timeout time.Duration

	// StorageClass for checkpoint objects (default: STANDARD)
	StorageClass types.StorageClass

	// ServerSideEncryption enables SSE-S3 encryption
	ServerSideEncryption bool
}

// DefaultS3Config returns sensible defaults.
func DefaultS3Config(bucket string) S3Config {
	return S3Config{
		Bucket:       bucket,
		Prefix:       "checkpoints/",
		Timeout:      30 * time.Second,
		StorageClass: types.StorageClassStandard,
	}
}

// S3Backend stores checkpoints in S3, one object per record under
// prefix/extractor/key.json, with a sentinel object for completion.
type S3Backend struct {
	cfg    S3Config
	client *s3.Client
}

// NewS3Backend creates a new S3 checkpoint backend.
func NewS3Backend(ctx context.Context, cfg S3Config) (*S3Backend, error) {
	var opts []func(*config.LoadOptions) error

	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID,
				cfg.SecretAccessKey,
				cfg.SessionToken,
			),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Opts := []func(*s3.Options){}
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}
	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return &S3Backend{
		cfg:    cfg,
		client: s3.NewFromConfig(awsCfg, s3Opts...),
	}, nil
}

func (b *S3Backend) extractorPrefix(extractorID string) string {
	return b.cfg.Prefix + sanitizeKey(extractorID) + "/"
}

func (b *S3Backend) objectKey(extractorID, key string) string {
	return b.extractorPrefix(extractorID) + sanitizeKey(key) + ".json"
}

// Put persists one record to S3.
func (b *S3Backend) Put(ctx context.Context, rec *Record) error {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint record: %w", err)
	}

	input := &s3.PutObjectInput{
		Bucket:       aws.String(b.cfg.Bucket),
		Key:          aws.String(b.objectKey(rec.ExtractorID, rec.Key)),
		Body:         bytes.NewReader(data),
		ContentType:  aws.String("application/json"),
		StorageClass: b.cfg.StorageClass,
	}
	if b.cfg.ServerSideEncryption {
		input.ServerSideEncryption = types.ServerSideEncryptionAes256
	}

	if _, err := b.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("failed to save checkpoint to S3: %w", err)
	}
	return nil
}

// Get retrieves one record from S3.
func (b *S3Backend) Get(ctx context.Context, extractorID, key string) (*Record, error) {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	output, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.cfg.Bucket),
		Key:    aws.String(b.objectKey(extractorID, key)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint from S3: %w", err)
	}
	defer output.Body.Close()

	data, err := io.ReadAll(output.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint data: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint record: %w", err)
	}
	return &rec, nil
}

// Keys lists the extractor's checkpointed keys.
func (b *S3Backend) Keys(ctx context.Context, extractorID string) ([]string, error) {
	objects, err := b.listObjects(ctx, extractorID)
	if err != nil {
		return nil, err
	}

	prefix := b.extractorPrefix(extractorID)
	var keys []string
	for _, obj := range objects {
		key := strings.TrimPrefix(obj, prefix)
		key = strings.TrimSuffix(key, ".json")
		if key == completeSentinel {
			continue
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// MarkComplete writes the sentinel object.
func (b *S3Backend) MarkComplete(ctx context.Context, extractorID string) error {
	return b.Put(ctx, &Record{
		ExtractorID: extractorID,
		Key:         completeSentinel,
		SavedAt:     time.Now().UTC(),
	})
}

// IsComplete checks for the sentinel object.
func (b *S3Backend) IsComplete(ctx context.Context, extractorID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.cfg.Bucket),
		Key:    aws.String(b.objectKey(extractorID, completeSentinel)),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Clear deletes every object under the extractor's prefix.
func (b *S3Backend) Clear(ctx context.Context, extractorID string) error {
	objects, err := b.listObjects(ctx, extractorID)
	if err != nil {
		return err
	}

	for _, key := range objects {
		_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(b.cfg.Bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return fmt.Errorf("failed to delete checkpoint object %s: %w", key, err)
		}
	}
	return nil
}

// Name returns "s3".
func (b *S3Backend) Name() string {
	return "s3"
}

func (b *S3Backend) listObjects(ctx context.Context, extractorID string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	var keys []string
	var continuationToken *string

	for {
		output, err := b.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(b.cfg.Bucket),
			Prefix:            aws.String(b.extractorPrefix(extractorID)),
			ContinuationToken: continuationToken,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list checkpoints: %w", err)
		}

		for _, obj := range output.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}

		if !aws.ToBool(output.IsTruncated) {
			break
		}
		continuationToken = output.NextContinuationToken
	}

	return keys, nil
}
