package repository

import (
	"context"

	"github.com/user/cardshot/internal/entity"
)

// PageDriver defines the contract for the single browser page a batch renders into.
type PageDriver interface {
	// Open launches the browser and prepares the page.
	Open(ctx context.Context) error
	// SetViewport resizes the page viewport. Must precede Load.
	SetViewport(ctx context.Context, width, height int, scale float64) error
	// Load navigates the page to url and blocks until the wait condition holds.
	Load(ctx context.Context, url string, wait entity.WaitStrategy) error
	// Capture takes a viewport screenshot and returns the encoded image.
	Capture(ctx context.Context, opts entity.CaptureOptions) ([]byte, error)
	// Close releases the page and the browser.
	Close() error
}

// DocumentHost serves rendered HTML documents to the page.
type DocumentHost interface {
	// Host publishes html and returns the URL the page should load.
	Host(html string, assetDir string) (string, error)
}
