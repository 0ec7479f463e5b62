package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/user/cardshot/internal/entity"
	"github.com/user/cardshot/internal/repository"
)

var (
	ErrRunNotFound      = errors.New("run not found")
	ErrNothingToInspect = errors.New("no history or progress backend configured")
)

// RunInspector reads back what earlier runs left in the history and progress
// stores.
type RunInspector struct {
	records  repository.RenderRecordRepository
	progress repository.ProgressRepository
}

// NewRunInspector creates an inspector. Either store may be nil, not both.
func NewRunInspector(records repository.RenderRecordRepository, progress repository.ProgressRepository) *RunInspector {
	return &RunInspector{records: records, progress: progress}
}

// Inspect returns the progress entry and render records of runID. A run
// unknown to every configured store is ErrRunNotFound.
func (i *RunInspector) Inspect(ctx context.Context, runID string) (*entity.RunReport, error) {
	if i.records == nil && i.progress == nil {
		return nil, fmt.Errorf("%w: %w", entity.ErrConfig, ErrNothingToInspect)
	}

	report := &entity.RunReport{RunID: runID, Records: []*entity.RenderRecord{}}

	if i.progress != nil {
		p, err := i.progress.Get(ctx, runID)
		switch {
		case err == nil:
			report.Progress = p
		case errors.Is(err, repository.ErrProgressNotFound):
		default:
			return nil, fmt.Errorf("%w: failed to read progress of %s: %w", entity.ErrResource, runID, err)
		}
	}

	if i.records != nil {
		recs, err := i.records.ListByRun(ctx, runID)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to read history of %s: %w", entity.ErrResource, runID, err)
		}
		if recs != nil {
			report.Records = recs
		}
	}

	if report.Progress == nil && len(report.Records) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return report, nil
}
