package repository

import (
	"context"

	"github.com/user/cardshot/internal/entity"
)

// RenderRecordRepository stores one history record per written image.
type RenderRecordRepository interface {
	// Save stores a record. Re-rendering the same path in the same run replaces it.
	Save(ctx context.Context, rec *entity.RenderRecord) error
	// ListByRun returns the records of a run in job order.
	ListByRun(ctx context.Context, runID string) ([]*entity.RenderRecord, error)
}
