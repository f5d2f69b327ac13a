// Package objectstore provides byte-level access to the blob backend that
// holds uploaded originals and transcoded HLS renditions.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-sdk-go-v2/otelaws"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/brightclass/video-service/pkg/models"
)

// Key prefixes this service writes under. Everything else in the bucket
// belongs to other parts of the platform.
const (
	OriginalsPrefix = "originals/"
	HLSPrefix       = "hls/"
)

// Default timeout for single-object operations.
const DefaultTimeout = 30 * time.Second

// TempDownloadDir is where originals are staged for transcoding.
const TempDownloadDir = "/tmp/video-originals"

var tracer = otel.Tracer("video-objectstore")

// Store is the object storage surface the pipeline depends on.
type Store interface {
	Put(ctx context.Context, key string, body io.Reader, contentType string) (string, error)
	Delete(ctx context.Context, key string) error
	DeletePrefix(ctx context.Context, prefix string) error
	SignedStreamURL(ctx context.Context, key string, ttl time.Duration) (string, error)
	DownloadToTemp(ctx context.Context, key string) (string, error)
	Head(ctx context.Context, key string) (int64, error)
	PublicURL(key string) string
}

// S3Store implements Store against an S3 bucket, optionally fronted by a CDN.
type S3Store struct {
	client    *s3.Client
	presigner *s3.PresignClient
	bucket    string
	region    string
	cdnDomain string
	log       *slog.Logger
}

// New creates an S3Store from the default AWS config chain.
func New(ctx context.Context, bucket, region, cdnDomain string, log *slog.Logger) (*S3Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}
	otelaws.AppendMiddlewares(&awsCfg.APIOptions)

	client := s3.NewFromConfig(awsCfg)
	return NewFromClient(client, bucket, region, cdnDomain, log), nil
}

// NewFromClient creates an S3Store from an existing client.
func NewFromClient(client *s3.Client, bucket, region, cdnDomain string, log *slog.Logger) *S3Store {
	return &S3Store{
		client:    client,
		presigner: s3.NewPresignClient(client),
		bucket:    bucket,
		region:    region,
		cdnDomain: cdnDomain,
		log:       log,
	}
}

// Client exposes the underlying S3 client for health checks.
func (s *S3Store) Client() *s3.Client {
	return s.client
}

// Bucket returns the configured bucket name.
func (s *S3Store) Bucket() string {
	return s.bucket
}

// ValidKey reports whether the key falls under a prefix this service owns.
func ValidKey(key string) bool {
	return strings.HasPrefix(key, OriginalsPrefix) || strings.HasPrefix(key, HLSPrefix)
}

// HLSPrefixFor returns the rendition prefix for an original's object key,
// e.g. originals/abc-123-talk.mp4 -> hls/abc-123-talk/.
func HLSPrefixFor(objectKey string) string {
	base := strings.TrimPrefix(objectKey, OriginalsPrefix)
	if idx := strings.LastIndexByte(base, '.'); idx > 0 {
		base = base[:idx]
	}
	return HLSPrefix + base + "/"
}

// Put stores an object and returns its delivery URL. Concurrent puts with
// the same key are last-write-wins.
func (s *S3Store) Put(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	ctx, span := tracer.Start(ctx, "objectstore-put")
	defer span.End()
	span.SetAttributes(attribute.String("storage.key", key))

	if !ValidKey(key) {
		return "", fmt.Errorf("%w: key %q outside managed prefixes", models.ErrStorageRejected, key)
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		span.RecordError(err)
		return "", classify("put", key, err)
	}

	return s.PublicURL(key), nil
}

// Delete removes an object. Missing objects are treated as deleted.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		err = classify("delete", key, err)
		if errors.Is(err, models.ErrNotFound) {
			return nil
		}
		return err
	}
	return nil
}

// DeletePrefix removes every object under the prefix in batches of 1000.
func (s *S3Store) DeletePrefix(ctx context.Context, prefix string) error {
	ctx, span := tracer.Start(ctx, "objectstore-delete-prefix")
	defer span.End()
	span.SetAttributes(attribute.String("storage.prefix", prefix))

	if !ValidKey(prefix) {
		return fmt.Errorf("%w: prefix %q outside managed prefixes", models.ErrStorageRejected, prefix)
	}

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})

	deleted := 0
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return classify("list", prefix, err)
		}
		if len(page.Contents) == 0 {
			continue
		}

		objects := make([]types.ObjectIdentifier, 0, len(page.Contents))
		for _, obj := range page.Contents {
			objects = append(objects, types.ObjectIdentifier{Key: obj.Key})
		}

		_, err = s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{Objects: objects, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return classify("delete", prefix, err)
		}
		deleted += len(objects)
	}

	span.SetAttributes(attribute.Int("storage.deleted", deleted))
	return nil
}

// SignedStreamURL returns a presigned GET URL valid for exactly the requested TTL.
func (s *S3Store) SignedStreamURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = ttl
	})
	if err != nil {
		return "", classify("presign", key, err)
	}
	return req.URL, nil
}

// DownloadToTemp streams an object into a local temporary file and returns
// its path. The caller removes the file when done.
func (s *S3Store) DownloadToTemp(ctx context.Context, key string) (string, error) {
	ctx, span := tracer.Start(ctx, "objectstore-download")
	defer span.End()
	span.SetAttributes(attribute.String("storage.key", key))

	if err := os.MkdirAll(TempDownloadDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create temp directory: %w", err)
	}

	ext := filepath.Ext(key)
	tmpFile, err := os.CreateTemp(TempDownloadDir, fmt.Sprintf("original-*%s", ext))
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return "", classify("get", key, err)
	}
	defer result.Body.Close()

	written, err := io.Copy(tmpFile, result.Body)
	if err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}

	span.SetAttributes(attribute.Int64("storage.size_bytes", written))
	return tmpPath, nil
}

// Head returns the object size, or ErrNotFound.
func (s *S3Store) Head(ctx context.Context, key string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	result, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, classify("head", key, err)
	}
	if result.ContentLength == nil {
		return 0, nil
	}
	return *result.ContentLength, nil
}

// PublicURL returns the CDN URL when a CDN domain is configured, else the
// regional bucket URL.
func (s *S3Store) PublicURL(key string) string {
	if s.cdnDomain != "" {
		return fmt.Sprintf("https://%s/%s", s.cdnDomain, key)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key)
}

// classify maps S3 failures onto the service error kinds.
func classify(op, key string, err error) error {
	var nsk *types.NoSuchKey
	var nf *types.NotFound
	if errors.As(err, &nsk) || errors.As(err, &nf) {
		return fmt.Errorf("%w: %s %s", models.ErrNotFound, op, key)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "404":
			return fmt.Errorf("%w: %s %s", models.ErrNotFound, op, key)
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
			return fmt.Errorf("%w: %s %s: %v", models.ErrStorageRejected, op, key, err)
		}
	}

	return fmt.Errorf("%w: %s %s: %v", models.ErrStorageUnavailable, op, key, err)
}
