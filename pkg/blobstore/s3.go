package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/pershin-daniil/MeetingBoard/pkg/models"
	"github.com/sirupsen/logrus"
)

type S3Config struct {
	Bucket  string
	Region  string
	Timeout time.Duration
}

// S3 stores blobs as objects of one bucket. The version token is the ETag;
// writes rely on conditional PutObject.
type S3 struct {
	log     *logrus.Entry
	client  *s3.Client
	bucket  string
	timeout time.Duration
}

func NewS3(ctx context.Context, log *logrus.Logger, cfg S3Config) (*S3, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("err loading AWS config: %w", err)
	}
	return &S3{
		log:     log.WithField("component", "blobstore.s3"),
		client:  s3.NewFromConfig(awsCfg),
		bucket:  cfg.Bucket,
		timeout: cfg.Timeout,
	}, nil
}

func (s *S3) Get(ctx context.Context, path string) (Blob, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return Blob{}, ErrNotFound
		}
		return Blob{}, models.NewUpstreamError("s3 get", err)
	}
	defer out.Body.Close()

	content, err := io.ReadAll(out.Body)
	if err != nil {
		return Blob{}, models.NewUpstreamError("s3 get", err)
	}
	return Blob{Content: content, Version: aws.ToString(out.ETag)}, nil
}

func (s *S3) Put(ctx context.Context, path string, content []byte, version string) (string, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	in := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(path),
		Body:        bytes.NewReader(content),
		ContentType: aws.String("application/vnd.sqlite3"),
	}
	if version == "" {
		in.IfNoneMatch = aws.String("*")
	} else {
		in.IfMatch = aws.String(version)
	}
	out, err := s.client.PutObject(ctx, in)
	if err != nil {
		if isPreconditionFailure(err) {
			return "", &ConflictError{Path: path, Expected: version}
		}
		return "", models.NewUpstreamError("s3 put", err)
	}
	s.log.Debugf("pushed %s at %s", path, aws.ToString(out.ETag))
	return aws.ToString(out.ETag), nil
}

func isPreconditionFailure(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "PreconditionFailed", "ConditionalRequestConflict":
		return true
	}
	return false
}
