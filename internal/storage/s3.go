package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	gobreaker "github.com/sony/gobreaker/v2"

	"cav-go/internal/cav"
	"cav-go/internal/config"
)

// S3API is the subset of the S3 client the store uses.
type S3API interface {
	manager.UploadAPIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Store keeps each bucket as an object <prefix><name>.json. Calls go
// through a circuit breaker so an unreachable endpoint fails fast instead of
// stalling every audit append.
type S3Store struct {
	client   S3API
	uploader *manager.Uploader
	bucket   string
	prefix   string
	breaker  *gobreaker.CircuitBreaker[[]byte]
}

var _ cav.BucketStore = (*S3Store)(nil)

// NewS3Store wraps an S3 client.
func NewS3Store(client S3API, bucket, prefix string) *S3Store {
	return &S3Store{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   bucket,
		prefix:   prefix,
		breaker:  newBreaker("s3:" + bucket),
	}
}

// NewS3StoreFromConfig builds an S3 client from the storage config. Static
// credentials are used when both keys are set; otherwise the default AWS
// credential chain applies.
func NewS3StoreFromConfig(ctx context.Context, cfg config.StorageConfig) (*S3Store, error) {
	if cfg.S3Bucket == "" {
		return nil, fmt.Errorf("s3 storage requires s3_bucket to be set")
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.S3Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.S3Region))
	}
	if cfg.S3AccessKeyID != "" && cfg.S3SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKeyID, cfg.S3SecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewS3Store(client, cfg.S3Bucket, cfg.S3Prefix), nil
}

func newBreaker(name string) *gobreaker.CircuitBreaker[[]byte] {
	return gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("storage circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: func(err error) bool {
			return err == nil || isNotFound(err)
		},
	})
}

func (s *S3Store) key(name string) string {
	return s.prefix + name + ".json"
}

func (s *S3Store) Get(ctx context.Context, name string) ([]byte, bool, error) {
	data, err := s.breaker.Execute(func() ([]byte, error) {
		out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(s.key(name)),
		})
		if err != nil {
			return nil, err
		}
		defer out.Body.Close()
		return io.ReadAll(out.Body)
	})
	if isNotFound(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get object %s: %w", s.key(name), err)
	}
	return data, true, nil
}

func (s *S3Store) Set(ctx context.Context, name string, data []byte) error {
	_, err := s.breaker.Execute(func() ([]byte, error) {
		_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(s.bucket),
			Key:         aws.String(s.key(name)),
			Body:        bytes.NewReader(data),
			ContentType: aws.String("application/json"),
		})
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", s.key(name), err)
	}
	return nil
}

func (s *S3Store) Delete(ctx context.Context, name string) error {
	_, err := s.breaker.Execute(func() ([]byte, error) {
		_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(s.key(name)),
		})
		return nil, err
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("delete object %s: %w", s.key(name), err)
	}
	return nil
}

func (s *S3Store) Close() error { return nil }

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	var nsk *types.NoSuchKey
	var nf *types.NotFound
	return errors.As(err, &nsk) || errors.As(err, &nf)
}
