package publish

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Publisher uploads images to an S3 bucket with static credentials.
// accessInfo keys: access_key, secret_key, region, bucket, optional prefix and endpoint.
type S3Publisher struct {
	bucket   string
	prefix   string
	uploader *manager.Uploader
}

func NewS3Publisher(accessInfo map[string]string) (*S3Publisher, error) {
	if err := requireKeys("s3", accessInfo, "access_key", "secret_key", "region", "bucket"); err != nil {
		return nil, err
	}
	creds := credentials.NewStaticCredentialsProvider(accessInfo["access_key"], accessInfo["secret_key"], "")
	opts := s3.Options{
		Region:      accessInfo["region"],
		Credentials: creds,
	}
	if endpoint := accessInfo["endpoint"]; endpoint != "" {
		opts.BaseEndpoint = aws.String(endpoint)
		opts.UsePathStyle = true
	}
	return &S3Publisher{
		bucket:   accessInfo["bucket"],
		prefix:   accessInfo["prefix"],
		uploader: manager.NewUploader(s3.New(opts)),
	}, nil
}

func (p *S3Publisher) Name() string { return "s3" }

func (p *S3Publisher) Publish(ctx context.Context, name string, r io.Reader) error {
	key := objectKey(p.prefix, name)
	_, err := p.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.bucket),
		Key:         aws.String(key),
		Body:        r,
		ContentType: aws.String(contentType(name)),
	})
	if err != nil {
		return fmt.Errorf("failed to upload object %s to bucket %s: %w", key, p.bucket, err)
	}
	return nil
}
