package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/user/cardshot/internal/entity"
	"github.com/user/cardshot/internal/repository"
)

const (
	progressKeyPrefix = "cardshot:progress:"
	progressTTL       = 24 * time.Hour
)

var ErrProgressNotFound = repository.ErrProgressNotFound

// ProgressRepoImpl keeps one hash per run for external monitors.
type ProgressRepoImpl struct {
	client *redis.Client
}

// NewProgressRepo creates a new instance of ProgressRepoImpl.
func NewProgressRepo(client *redis.Client) *ProgressRepoImpl {
	return &ProgressRepoImpl{client: client}
}

// NewClient builds the client used by NewProgressRepo.
func NewClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

func (r *ProgressRepoImpl) key(runID string) string {
	return fmt.Sprintf("%s%s", progressKeyPrefix, runID)
}

func (r *ProgressRepoImpl) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Start resets the run hash. The hash expires a day after the last update.
func (r *ProgressRepoImpl) Start(ctx context.Context, runID string, total int) error {
	key := r.key(runID)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key,
			"total", total,
			"done", 0,
			"status", "running",
			"last_path", "",
			"updated_at", time.Now().UTC().Format(time.RFC3339Nano),
		)
		pipe.Expire(ctx, key, progressTTL)
		return nil
	})
	return err
}

// Advance increments the done counter.
func (r *ProgressRepoImpl) Advance(ctx context.Context, runID string, path string) error {
	key := r.key(runID)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, key, "done", 1)
		pipe.HSet(ctx, key, "last_path", path, "updated_at", time.Now().UTC().Format(time.RFC3339Nano))
		pipe.Expire(ctx, key, progressTTL)
		return nil
	})
	return err
}

// Finish records the final status of the run.
func (r *ProgressRepoImpl) Finish(ctx context.Context, runID string, status string) error {
	key := r.key(runID)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, "status", status, "updated_at", time.Now().UTC().Format(time.RFC3339Nano))
		pipe.Expire(ctx, key, progressTTL)
		return nil
	})
	return err
}

// Get reads the run hash back.
func (r *ProgressRepoImpl) Get(ctx context.Context, runID string) (*entity.BatchProgress, error) {
	vals, err := r.client.HGetAll(ctx, r.key(runID)).Result()
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, ErrProgressNotFound
	}
	return parseProgress(runID, vals)
}

func parseProgress(runID string, vals map[string]string) (*entity.BatchProgress, error) {
	p := &entity.BatchProgress{
		RunID:    runID,
		Status:   vals["status"],
		LastPath: vals["last_path"],
	}
	var err error
	if p.Total, err = strconv.Atoi(vals["total"]); err != nil {
		return nil, fmt.Errorf("invalid total in progress of %s: %w", runID, err)
	}
	if p.Done, err = strconv.Atoi(vals["done"]); err != nil {
		return nil, fmt.Errorf("invalid done in progress of %s: %w", runID, err)
	}
	if ts := vals["updated_at"]; ts != "" {
		if p.UpdatedAt, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("invalid updated_at in progress of %s: %w", runID, err)
		}
	}
	return p, nil
}
