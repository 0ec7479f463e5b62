package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/user/cardshot/internal/entity"
	"github.com/user/cardshot/internal/repository"
	"github.com/user/cardshot/pkg/metrics"
)

const (
	progressRunning   = "running"
	progressCompleted = "completed"
	progressFailed    = "failed"
)

// SessionFactory builds the session for one run.
type SessionFactory func(runID string, total int) Session

// BatchRunner resolves a configuration into jobs and renders them in order
// through a single session.
type BatchRunner struct {
	newSession SessionFactory
	progress   repository.ProgressRepository
	logger     *zap.Logger
	newRunID   func() string
}

// NewBatchRunner creates a runner. progress may be nil.
func NewBatchRunner(newSession SessionFactory, progress repository.ProgressRepository, logger *zap.Logger) *BatchRunner {
	return &BatchRunner{
		newSession: newSession,
		progress:   progress,
		logger:     logger,
		newRunID:   uuid.NewString,
	}
}

// Run renders every configured image. In debug mode it logs the resolved
// configuration and returns before any browser work. The first failure aborts
// the batch; the session is closed on every path.
func (r *BatchRunner) Run(ctx context.Context, global entity.GlobalOptions, rawImages []map[string]any) (summary entity.Summary, err error) {
	start := time.Now()
	runID := r.newRunID()

	jobs, err := Resolve(global, rawImages)
	if err != nil {
		metrics.ImagesTotal.WithLabelValues("failure", entity.ErrorType(err)).Inc()
		return entity.Summary{RunID: runID}, err
	}

	if global.Debug {
		r.logger.Info("Debug mode, nothing will be rendered",
			zap.String("run_id", runID),
			zap.Any("options", global),
			zap.Any("images", rawImages),
			zap.Any("jobs", jobs),
		)
		return entity.Summary{RunID: runID, Debug: true}, nil
	}

	total := len(jobs)
	metrics.BatchImages.Set(float64(total))
	if total == 0 {
		r.logger.Warn("No images configured", zap.String("run_id", runID))
		return entity.Summary{RunID: runID, Elapsed: time.Since(start)}, nil
	}

	session := r.newSession(runID, total)
	if err := session.Open(ctx); err != nil {
		metrics.ImagesTotal.WithLabelValues("failure", entity.ErrorType(err)).Inc()
		return entity.Summary{RunID: runID}, err
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			r.logger.Error("Failed to close render session", zap.Error(cerr))
			if err == nil {
				err = cerr
			}
		}
	}()

	r.startProgress(ctx, runID, total)

	for i, job := range jobs {
		r.logProgress(global.Verbose, fmt.Sprintf("Saving image %d of %d", i+1, total), zap.String("path", job.Path))

		result, renderErr := session.RenderOne(ctx, job, i == 0)
		if renderErr != nil {
			metrics.ImagesTotal.WithLabelValues("failure", entity.ErrorType(renderErr)).Inc()
			r.finishProgress(ctx, runID, progressFailed)
			return entity.Summary{RunID: runID}, fmt.Errorf("image %d of %d (%s): %w", i+1, total, job.Path, renderErr)
		}

		metrics.ImagesTotal.WithLabelValues("success", "").Inc()
		r.advanceProgress(ctx, runID, job.Path)
		r.logger.Debug("Saved image",
			zap.Int("index", i+1),
			zap.String("path", result.Path),
			zap.String("title", result.Title),
			zap.Duration("elapsed", result.Elapsed),
		)
	}

	r.finishProgress(ctx, runID, progressCompleted)

	elapsed := time.Since(start)
	metrics.BatchDuration.Set(elapsed.Seconds())
	return entity.Summary{RunID: runID, Count: total, Elapsed: elapsed}, nil
}

func (r *BatchRunner) logProgress(verbose bool, msg string, fields ...zap.Field) {
	if verbose {
		r.logger.Info(msg, fields...)
		return
	}
	r.logger.Debug(msg, fields...)
}

// Progress updates are advisory; a monitor outage does not fail the batch.

func (r *BatchRunner) startProgress(ctx context.Context, runID string, total int) {
	if r.progress == nil {
		return
	}
	if err := r.progress.Start(ctx, runID, total); err != nil {
		r.logger.Warn("Failed to publish batch start", zap.String("run_id", runID), zap.Error(err))
	}
}

func (r *BatchRunner) advanceProgress(ctx context.Context, runID, path string) {
	if r.progress == nil {
		return
	}
	if err := r.progress.Advance(ctx, runID, path); err != nil {
		r.logger.Warn("Failed to publish batch progress", zap.String("run_id", runID), zap.Error(err))
	}
}

func (r *BatchRunner) finishProgress(ctx context.Context, runID, status string) {
	if r.progress == nil {
		return
	}
	if err := r.progress.Finish(ctx, runID, status); err != nil {
		r.logger.Warn("Failed to publish batch status", zap.String("run_id", runID), zap.String("status", status), zap.Error(err))
	}
}
