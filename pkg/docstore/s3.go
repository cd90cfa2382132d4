package docstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"
)

// S3Client is the subset of the S3 API the store uses. Narrowed for mocking.
type S3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Config configures the S3-backed document store. Endpoint and
// ForcePathStyle cover S3-compatible services such as MinIO.
type S3Config struct {
	Bucket         string `env:"DOCSTORE_S3_BUCKET,required"`
	Region         string `env:"DOCSTORE_S3_REGION,required"`
	AccessKeyID    string `env:"DOCSTORE_S3_ACCESS_KEY_ID"`
	SecretKey      string `env:"DOCSTORE_S3_SECRET_KEY"`
	Endpoint       string `env:"DOCSTORE_S3_ENDPOINT"`
	BaseURL        string `env:"DOCSTORE_S3_BASE_URL"`
	ForcePathStyle bool   `env:"DOCSTORE_S3_FORCE_PATH_STYLE" envDefault:"false"`
}

// S3Store implements Store on Amazon S3 or an S3-compatible service.
// Safe for concurrent use.
type S3Store struct {
	client  S3Client
	bucket  string
	baseURL string
}

// S3Option configures the S3 store.
type S3Option func(*S3Store)

// WithS3Client injects a pre-configured client, mainly for tests.
func WithS3Client(client S3Client) S3Option {
	return func(s *S3Store) { s.client = client }
}

// NewS3Store creates an S3-backed document store.
func NewS3Store(ctx context.Context, cfg S3Config, opts ...S3Option) (*S3Store, error) {
	if cfg.Bucket == "" || cfg.Region == "" {
		return nil, fmt.Errorf("%w: bucket and region are required", ErrInvalidConfig)
	}

	store := &S3Store{
		bucket:  cfg.Bucket,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
	}
	for _, opt := range opts {
		opt(store)
	}

	if store.client == nil {
		awsOpts := []func(*awsconfig.LoadOptions) error{
			awsconfig.WithRegion(cfg.Region),
		}
		if cfg.AccessKeyID != "" && cfg.SecretKey != "" {
			awsOpts = append(awsOpts, awsconfig.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretKey, "")))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsOpts...)
		if err != nil {
			return nil, errors.Join(ErrInvalidConfig, err)
		}
		store.client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			if cfg.Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.Endpoint)
			}
			o.UsePathStyle = cfg.ForcePathStyle
		})
	}
	return store, nil
}

// Put implements Store.
func (s *S3Store) Put(ctx context.Context, doc Document) (string, error) {
	key := doc.Key()
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(doc.Body),
		ContentType: aws.String(doc.ContentType),
	})
	if err != nil {
		return "", errors.Join(ErrUploadFailed, err)
	}
	if s.baseURL == "" {
		return "", nil
	}
	return s.baseURL + "/" + key, nil
}

// Get implements Store.
func (s *S3Store) Get(ctx context.Context, tenantID, invoiceID uuid.UUID) ([]byte, error) {
	key := Document{TenantID: tenantID, InvoiceID: invoiceID}.Key()
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, ErrDocumentNotFound
		}
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NoSuchKey" {
			return nil, ErrDocumentNotFound
		}
		return nil, err
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

var _ Store = (*S3Store)(nil)
