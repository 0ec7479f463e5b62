package repository

import (
	"context"
	"io"
)

// ImagePublisher copies a written image to a remote destination.
type ImagePublisher interface {
	// Publish uploads the content read from r under the given object name.
	Publish(ctx context.Context, name string, r io.Reader) error
	// Name returns the backend name.
	Name() string
}
