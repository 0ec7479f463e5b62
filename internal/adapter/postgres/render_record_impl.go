package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/user/cardshot/internal/entity"
)

const schema = `
CREATE TABLE IF NOT EXISTS render_records (
	run_id       TEXT        NOT NULL,
	job_index    INTEGER     NOT NULL,
	path         TEXT        NOT NULL,
	template     TEXT        NOT NULL,
	title        TEXT        NOT NULL DEFAULT '',
	content_hash TEXT        NOT NULL,
	width        INTEGER     NOT NULL,
	height       INTEGER     NOT NULL,
	bytes        BIGINT      NOT NULL,
	elapsed_ms   BIGINT      NOT NULL,
	rendered_at  TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (run_id, job_index)
);
CREATE INDEX IF NOT EXISTS render_records_path_idx ON render_records (path);
`

// RenderRecordRepoImpl stores render history in PostgreSQL.
type RenderRecordRepoImpl struct {
	db *pgxpool.Pool
}

// NewRenderRecordRepo connects to connStr and makes sure the table exists.
func NewRenderRecordRepo(ctx context.Context, connStr string) (*RenderRecordRepoImpl, error) {
	db, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	r := &RenderRecordRepoImpl{db: db}
	if err := r.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

func (r *RenderRecordRepoImpl) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

// Migrate creates the render_records table if it is missing.
func (r *RenderRecordRepoImpl) Migrate(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create render_records table: %w", err)
	}
	return nil
}

// Save inserts the record, replacing an earlier one for the same run and index.
func (r *RenderRecordRepoImpl) Save(ctx context.Context, rec *entity.RenderRecord) error {
	query := `
		INSERT INTO render_records (run_id, job_index, path, template, title, content_hash, width, height, bytes, elapsed_ms, rendered_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (run_id, job_index) DO UPDATE SET
			path = EXCLUDED.path,
			template = EXCLUDED.template,
			title = EXCLUDED.title,
			content_hash = EXCLUDED.content_hash,
			width = EXCLUDED.width,
			height = EXCLUDED.height,
			bytes = EXCLUDED.bytes,
			elapsed_ms = EXCLUDED.elapsed_ms,
			rendered_at = EXCLUDED.rendered_at;
	`
	_, err := r.db.Exec(ctx, query,
		rec.RunID,
		rec.Index,
		rec.Path,
		rec.Template,
		rec.Title,
		rec.ContentHash,
		rec.Width,
		rec.Height,
		rec.Bytes,
		rec.Elapsed.Milliseconds(),
		rec.RenderedAt,
	)
	return err
}

// ListByRun returns the records of a run in job order.
func (r *RenderRecordRepoImpl) ListByRun(ctx context.Context, runID string) ([]*entity.RenderRecord, error) {
	query := `
		SELECT run_id, job_index, path, template, title, content_hash, width, height, bytes, elapsed_ms, rendered_at
		FROM render_records
		WHERE run_id = $1
		ORDER BY job_index ASC;
	`
	rows, err := r.db.Query(ctx, query, runID)
	if err != nil {
		return nil, err
	}

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*entity.RenderRecord, error) {
		var rec entity.RenderRecord
		var elapsedMS int64
		if err := row.Scan(
			&rec.RunID,
			&rec.Index,
			&rec.Path,
			&rec.Template,
			&rec.Title,
			&rec.ContentHash,
			&rec.Width,
			&rec.Height,
			&rec.Bytes,
			&elapsedMS,
			&rec.RenderedAt,
		); err != nil {
			return nil, err
		}
		rec.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		return &rec, nil
	})
}

func (r *RenderRecordRepoImpl) Close() {
	r.db.Close()
}
