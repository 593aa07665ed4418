// Package objstore stores source archives in an S3-compatible bucket.
package objstore

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"

	xe "github.com/tencentblueking/bkpaas-core/pkg/errors"
)

// Store is a bucket-scoped blob interface.
type Store interface {
	// Upload writes the local file to key and returns the key back.
	Upload(ctx context.Context, key string, localPath string) (string, error)

	// Download streams the blob at key.
	Download(ctx context.Context, key string) (io.ReadCloser, error)
}

// SourceTarKey derives the content-addressed path of a source archive.
func SourceTarKey(region string, engineAppName string, branch string, revision string) string {
	return fmt.Sprintf("%s/home/%s:%s:%s/tar", region, engineAppName, branch, revision)
}

// Config is the S3 endpoint configuration.
type Config struct {
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string

	// path-style addressing, needed by MinIO-like backends.
	ForcePathStyle bool
}

type s3Store struct {
	bucket     string
	client     *s3.S3
	uploader   *s3manager.Uploader
	downloader *s3manager.Downloader
}

func New(cfg Config) (Store, error) {
	sess, err := session.NewSession(&aws.Config{
		Endpoint:         aws.String(cfg.Endpoint),
		Region:           aws.String(cfg.Region),
		Credentials:      credentials.NewStaticCredentials(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		S3ForcePathStyle: aws.Bool(cfg.ForcePathStyle),
	})
	if err != nil {
		return nil, xe.Wrap(err)
	}
	return &s3Store{
		bucket:     cfg.Bucket,
		client:     s3.New(sess),
		uploader:   s3manager.NewUploader(sess),
		downloader: s3manager.NewDownloader(sess),
	}, nil
}

func (s *s3Store) Upload(ctx context.Context, key string, localPath string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", xe.Wrap(err)
	}
	defer f.Close()

	_, err = s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   f,
	})
	if err != nil {
		return "", xe.Wrap(err)
	}
	return key, nil
}

func (s *s3Store) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, xe.Wrap(err)
	}
	return out.Body, nil
}
