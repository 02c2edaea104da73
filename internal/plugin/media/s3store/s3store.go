package s3store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/memoryweaver/memory-weaver/internal/config"
	registrymedia "github.com/memoryweaver/memory-weaver/internal/registry/media"
	registrystore "github.com/memoryweaver/memory-weaver/internal/registry/store"
	"github.com/memoryweaver/memory-weaver/internal/tempfiles"
)

func init() {
	registrymedia.Register(registrymedia.Plugin{
		Name:   "s3",
		Loader: load,
	})
}

func load(ctx context.Context) (registrymedia.MediaStore, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.S3Bucket == "" {
		return nil, fmt.Errorf("s3store: MEMORY_WEAVER_MEDIA_S3_BUCKET is required")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(
		ctx,
		awsconfig.WithRequestChecksumCalculation(aws.RequestChecksumCalculationWhenRequired),
	)
	if err != nil {
		return nil, fmt.Errorf("s3store: load AWS config: %w", err)
	}
	usePathStyle := cfg.S3UsePathStyle
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = usePathStyle
	})
	return New(client, cfg.S3Bucket, cfg.S3Prefix, cfg.ResolvedTempDir()), nil
}

// Store keeps media as objects in one bucket under an optional prefix.
type Store struct {
	client  *s3.Client
	bucket  string
	prefix  string
	tempDir string
}

// New wraps an S3 client.
func New(client *s3.Client, bucket, prefix, tempDir string) *Store {
	return &Store{
		client:  client,
		bucket:  bucket,
		prefix:  strings.Trim(strings.TrimSpace(prefix), "/"),
		tempDir: tempDir,
	}
}

func (s *Store) key(name string) string {
	if s.prefix != "" {
		return s.prefix + "/" + name
	}
	return name
}

// Put buffers data to a temp file so the upload carries a content length.
func (s *Store) Put(ctx context.Context, name string, data io.Reader, contentType string) (*registrymedia.PutResult, error) {
	if !registrymedia.ValidName(name) {
		return nil, &registrystore.ValidationError{Field: "filename", Message: "invalid media name"}
	}
	body, size, err := tempfiles.Spool(s.tempDir, "memory-weaver-s3-upload-*", data)
	if err != nil {
		return nil, fmt.Errorf("s3store: buffer upload: %w", err)
	}
	defer body.Close()

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.key(name)),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
	}, func(o *s3.Options) {
		o.APIOptions = append(o.APIOptions, v4.SwapComputePayloadSHA256ForUnsignedPayloadMiddleware)
	})
	if err != nil {
		return nil, fmt.Errorf("s3store: put object: %w", classify(err))
	}
	return &registrymedia.PutResult{Name: name, Size: size}, nil
}

func (s *Store) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if !registrymedia.ValidName(name) {
		return nil, &registrystore.NotFoundError{Resource: "audio", ID: name}
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		var apiErr smithy.APIError
		if errors.As(err, &noKey) || (errors.As(err, &apiErr) && apiErr.ErrorCode() == "NotFound") {
			return nil, &registrystore.NotFoundError{Resource: "audio", ID: name}
		}
		return nil, fmt.Errorf("s3store: get object: %w", classify(err))
	}
	return out.Body, nil
}

func classify(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
			return &registrystore.UpstreamAuthError{Service: "s3", Err: err}
		}
		return err
	}
	return &registrystore.UpstreamUnavailableError{Service: "s3", Err: err}
}
