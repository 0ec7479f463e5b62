package publish

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/user/cardshot/internal/repository"
)

var ErrUnknownBackend = errors.New("unknown publish backend")

// New returns the publisher for backend configured from accessInfo.
// Supported backends: s3, gcs, sftp.
func New(ctx context.Context, backend string, accessInfo map[string]string) (repository.ImagePublisher, error) {
	switch backend {
	case "s3":
		return NewS3Publisher(accessInfo)
	case "gcs":
		return NewGCSPublisher(ctx, accessInfo)
	case "sftp":
		return NewSFTPPublisher(accessInfo)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}

// objectKey joins the configured prefix and the object name.
func objectKey(prefix, name string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}

func requireKeys(backend string, accessInfo map[string]string, keys ...string) error {
	var missing []string
	for _, k := range keys {
		if accessInfo[k] == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%s publisher: missing required keys: %s", backend, strings.Join(missing, ", "))
	}
	return nil
}

// closer lets publishers holding connections release them.
type closer interface {
	Close() error
}

// Close releases the publisher's connection when it holds one.
func Close(p repository.ImagePublisher) error {
	if c, ok := p.(closer); ok {
		return c.Close()
	}
	return nil
}
