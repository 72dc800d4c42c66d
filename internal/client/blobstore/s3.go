// Package blobstore reads encrypted content and wrapped folder keys
// directly from the S3-compatible bucket behind the storage service.
//
// Objects are laid out as <prefix>files/<itemID> for file ciphertext and
// <prefix>folderkeys/<folderID> for the age file holding a folder key wrapped
// for every member. An object carrying the "processing" metadata flag has
// not been finalized yet.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/dmitrijs2005/hammerspace/internal/common"
	"github.com/dmitrijs2005/hammerspace/internal/netx"
)

const (
	filesDir      = "files"
	folderKeysDir = "folderkeys"
	processingKey = "processing"

	maxWrappedKeySize = 64 << 10
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) ObjectGetter {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

// ObjectGetter is the subset of *s3.Client used here.
type ObjectGetter interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

type Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	Prefix    string
	AccessKey string
	SecretKey string
}

type S3Fetcher struct {
	client ObjectGetter
	bucket string
	prefix string
}

// NewS3Fetcher builds a fetcher from cfg. Static credentials are used when
// AccessKey is set; otherwise the default AWS chain applies.
func NewS3Fetcher(ctx context.Context, cfg Config) (*S3Fetcher, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket is not configured")
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	awsCfg, err := loadDefaultAWSConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := newS3ClientFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return NewS3FetcherWithClient(client, cfg.Bucket, cfg.Prefix), nil
}

func NewS3FetcherWithClient(client ObjectGetter, bucket, prefix string) *S3Fetcher {
	return &S3Fetcher{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

func (f *S3Fetcher) objectKey(dir, id string) string {
	return path.Join(f.prefix, dir, id)
}

func (f *S3Fetcher) get(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := f.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(f.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, mapError(key, err)
	}
	if strings.EqualFold(out.Metadata[processingKey], "true") {
		_ = out.Body.Close()
		return nil, fmt.Errorf("%w: %s", common.ErrProcessing, key)
	}
	return out.Body, nil
}

// GetFile streams the ciphertext of itemID.
func (f *S3Fetcher) GetFile(ctx context.Context, itemID string) (io.ReadCloser, error) {
	return f.get(ctx, f.objectKey(filesDir, itemID))
}

// GetEncryptedFolderKey reads the wrapped key of folderID.
func (f *S3Fetcher) GetEncryptedFolderKey(ctx context.Context, folderID string) ([]byte, error) {
	body, err := f.get(ctx, f.objectKey(folderKeysDir, folderID))
	if err != nil {
		return nil, err
	}
	defer body.Close()

	wrapped, err := netx.ReadLimited(body, maxWrappedKeySize)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrUnavailable, err)
	}
	return wrapped, nil
}

func mapError(key string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}

	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return fmt.Errorf("%w: %s", common.ErrNotFound, key)
	}

	var ae smithy.APIError
	if errors.As(err, &ae) {
		switch ae.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return fmt.Errorf("%w: %s", common.ErrNotFound, key)
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken":
			return fmt.Errorf("%w: %s: %s", common.ErrUnauthorized, key, ae.ErrorCode())
		case "SlowDown", "ServiceUnavailable", "InternalError":
			return fmt.Errorf("%w: %s: %s", common.ErrUnavailable, key, ae.ErrorCode())
		default:
			return fmt.Errorf("s3 get %s: %w", key, err)
		}
	}

	return fmt.Errorf("%w: s3 get %s: %w", common.ErrUnavailable, key, err)
}
