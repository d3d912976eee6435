// Package archive uploads rendered reports to S3.
package archive

import (
	"context"
	"errors"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sirupsen/logrus"
)

// Uploader is the part of manager.Uploader the archiver needs.
type Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// Options configure an S3Archiver.
type Options struct {
	Bucket string
	Prefix string
	Region string

	// Endpoint points the client at an S3 compatible service, it implies
	// path style addressing.
	Endpoint string

	// Static credentials, the default credential chain is used when empty.
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// S3Archiver stores documents under a key prefix of a bucket.
type S3Archiver struct {
	uploader Uploader
	bucket   string
	prefix   string
}

// New returns an archiver for opts.
func New(ctx context.Context, opts Options) (*S3Archiver, error) {
	if opts.Bucket == "" {
		return nil, errors.New("missing S3 bucket")
	}

	var optFns []func(*config.LoadOptions) error
	if opts.Region != "" {
		optFns = append(optFns, config.WithRegion(opts.Region))
	}
	if opts.AccessKeyID != "" {
		optFns = append(optFns, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, opts.SessionToken),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		logrus.WithError(err).Error("Failed to load AWS configuration")
		return nil, errors.New("failed to load AWS configuration: " + err.Error())
	}

	client := s3.NewFromConfig(cfg, func(options *s3.Options) {
		if opts.Endpoint != "" {
			options.BaseEndpoint = aws.String(opts.Endpoint)
			options.UsePathStyle = true
		}
	})

	return NewWithUploader(manager.NewUploader(client), opts.Bucket, opts.Prefix), nil
}

// NewWithUploader returns an archiver using uploader.
func NewWithUploader(uploader Uploader, bucket, prefix string) *S3Archiver {
	return &S3Archiver{
		uploader: uploader,
		bucket:   bucket,
		prefix:   strings.Trim(prefix, "/"),
	}
}

// Key returns the object key name is stored under.
func (a *S3Archiver) Key(name string) string {
	if a.prefix == "" {
		return name
	}
	return path.Join(a.prefix, name)
}

// Archive uploads content as name and returns its location.
func (a *S3Archiver) Archive(ctx context.Context, name, content string) (string, error) {
	key := a.Key(name)
	logger := logrus.WithFields(logrus.Fields{
		"Bucket": a.bucket,
		"Key":    key,
	})

	output, err := a.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        strings.NewReader(content),
		ContentType: aws.String("application/xml"),
	})
	if err != nil {
		logger.WithError(err).Error("Failed to upload to S3")
		return "", errors.New("failed to upload to S3: " + err.Error())
	}

	logger.Info("archived report")
	return output.Location, nil
}
