package storage

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/ovoronkov/reelcut/internal/config"
)

// S3Mirror keeps the local directory as primary storage and copies finished
// clips to an S3-compatible bucket for archive and sharing.
type S3Mirror struct {
	local         *LocalStore
	client        *s3.Client
	presignClient *s3.PresignClient
	bucket        string
	prefix        string
	presignExpiry time.Duration
	log           zerolog.Logger
}

func newS3Mirror(cfg *config.Config, local *LocalStore, log zerolog.Logger) (*S3Mirror, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.S3Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		),
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("aws config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.S3Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		})
	}

	client := s3.NewFromConfig(awsCfg, s3Opts...)
	return &S3Mirror{
		local:         local,
		client:        client,
		presignClient: s3.NewPresignClient(client),
		bucket:        cfg.S3Bucket,
		prefix:        cfg.S3Prefix,
		presignExpiry: cfg.S3PresignExpiry,
		log:           log.With().Str("component", "s3-mirror").Logger(),
	}, nil
}

func (s *S3Mirror) headBucket(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: &s.bucket})
	return err
}

func (s *S3Mirror) Promote(ctx context.Context, renderedPath, filename string) (string, error) {
	return s.local.Promote(ctx, renderedPath, filename)
}

// Archive uploads the locally stored clip. Upload failure is reported, not
// fatal: the clip already exists locally.
func (s *S3Mirror) Archive(ctx context.Context, filename string) (string, error) {
	localPath := s.local.LocalPath(filename)
	if localPath == "" {
		return "", fmt.Errorf("archive %s: not in local store", filename)
	}
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("archive %s: %w", filename, err)
	}
	defer f.Close()

	objKey := s.objectKey(filename)
	contentType := "video/mp4"
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         &objKey,
		Body:        f,
		ContentType: &contentType,
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", objKey, err)
	}
	s.log.Debug().Str("key", objKey).Msg("clip mirrored to s3")
	return "s3://" + s.bucket + "/" + objKey, nil
}

func (s *S3Mirror) ShareURL(ctx context.Context, filename string) (string, error) {
	objKey := s.objectKey(filename)
	req, err := s.presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &objKey,
	}, func(opts *s3.PresignOptions) {
		opts.Expires = s.presignExpiry
	})
	if err != nil {
		return "", err
	}
	return req.URL, nil
}

func (s *S3Mirror) LocalPath(filename string) string {
	return s.local.LocalPath(filename)
}

func (s *S3Mirror) Type() string { return "s3-mirrored" }

func (s *S3Mirror) objectKey(filename string) string {
	if s.prefix != "" {
		return s.prefix + "/" + filename
	}
	return filename
}
