package database

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/therealutkarshpriyadarshi/tooldetect/pkg/models"
)

var jobColumns = []string{
	"id", "user_id", "filename", "storage_key", "status", "fps", "frames_processed",
	"error_msg", "detection_id", "preview_key", "metadata", "started_at", "completed_at",
	"created_at", "updated_at",
}

// CreateJob inserts a detection job
func (r *Repository) CreateJob(ctx context.Context, job *models.DetectionJob) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.Status == "" {
		job.Status = models.JobStatusQueued
	}

	query, args, err := psql.Insert("detection_jobs").
		Columns("id", "user_id", "filename", "storage_key", "status", "fps", "metadata").
		Values(job.ID, job.UserID, job.Filename, job.StorageKey, job.Status, job.FPS, job.Metadata).
		Suffix("RETURNING created_at, updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("building insert query: %w", err)
	}

	if err := r.db.QueryRow(ctx, query, args...).Scan(&job.CreatedAt, &job.UpdatedAt); err != nil {
		return fmt.Errorf("failed to create job: %w", mapError(err))
	}
	return nil
}

// GetJob retrieves a job by ID
func (r *Repository) GetJob(ctx context.Context, id string) (*models.DetectionJob, error) {
	query, args, err := psql.Select(jobColumns...).
		From("detection_jobs").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select query: %w", err)
	}

	var job models.DetectionJob
	if err := pgxscan.Get(ctx, r.db, &job, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

// UpdateJob writes the job's progress fields
func (r *Repository) UpdateJob(ctx context.Context, job *models.DetectionJob) error {
	query, args, err := psql.Update("detection_jobs").
		Set("status", job.Status).
		Set("fps", job.FPS).
		Set("frames_processed", job.FramesProcessed).
		Set("error_msg", job.ErrorMsg).
		Set("detection_id", job.DetectionID).
		Set("preview_key", job.PreviewKey).
		Set("metadata", job.Metadata).
		Set("started_at", job.StartedAt).
		Set("completed_at", job.CompletedAt).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": job.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building update query: %w", err)
	}

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", mapError(err))
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListStaleJobs returns jobs in status whose last update is older than before, oldest first
func (r *Repository) ListStaleJobs(ctx context.Context, status string, before time.Time, limit int) ([]*models.DetectionJob, error) {
	qb := psql.Select(jobColumns...).
		From("detection_jobs").
		Where(squirrel.Eq{"status": status}).
		Where(squirrel.Lt{"updated_at": before}).
		OrderBy("updated_at ASC")
	if limit > 0 {
		qb = qb.Limit(uint64(limit))
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select query: %w", err)
	}

	jobs := []*models.DetectionJob{}
	if err := pgxscan.Select(ctx, r.db, &jobs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list stale jobs: %w", err)
	}
	return jobs, nil
}
