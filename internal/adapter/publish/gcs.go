package publish

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSPublisher uploads images to a Google Cloud Storage bucket.
// accessInfo keys: bucket, credentials_json (raw or base64), optional prefix.
type GCSPublisher struct {
	client *storage.Client
	bucket string
	prefix string
}

func NewGCSPublisher(ctx context.Context, accessInfo map[string]string) (*GCSPublisher, error) {
	if err := requireKeys("gcs", accessInfo, "bucket", "credentials_json"); err != nil {
		return nil, err
	}
	credentialsJSON := decodeMaybeBase64(accessInfo["credentials_json"])
	client, err := storage.NewClient(ctx, option.WithCredentialsJSON(credentialsJSON))
	if err != nil {
		return nil, fmt.Errorf("storage.NewClient: %w", err)
	}
	return &GCSPublisher{
		client: client,
		bucket: accessInfo["bucket"],
		prefix: accessInfo["prefix"],
	}, nil
}

func (p *GCSPublisher) Name() string { return "gcs" }

func (p *GCSPublisher) Publish(ctx context.Context, name string, r io.Reader) error {
	key := objectKey(p.prefix, name)
	wc := p.client.Bucket(p.bucket).Object(key).NewWriter(ctx)
	wc.ContentType = contentType(name)

	if _, err := io.Copy(wc, r); err != nil {
		wc.Close()
		return fmt.Errorf("failed to upload object %s to bucket %s: %w", key, p.bucket, err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("failed to finalize object %s in bucket %s: %w", key, p.bucket, err)
	}
	return nil
}

func (p *GCSPublisher) Close() error {
	return p.client.Close()
}

// decodeMaybeBase64 accepts either base64 or the raw value.
func decodeMaybeBase64(s string) []byte {
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b
	}
	return []byte(s)
}
