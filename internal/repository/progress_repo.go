package repository

import (
	"context"
	"errors"

	"github.com/user/cardshot/internal/entity"
)

// ErrProgressNotFound is returned by Get for a run with no progress entry.
var ErrProgressNotFound = errors.New("progress not found")

// ProgressRepository publishes batch progress for external monitors.
type ProgressRepository interface {
	// Start records a new run with its total job count.
	Start(ctx context.Context, runID string, total int) error
	// Advance records one more finished job.
	Advance(ctx context.Context, runID string, path string) error
	// Finish marks the run completed or failed.
	Finish(ctx context.Context, runID string, status string) error
	// Get returns the current progress of a run, or ErrProgressNotFound.
	Get(ctx context.Context, runID string) (*entity.BatchProgress, error)
}
