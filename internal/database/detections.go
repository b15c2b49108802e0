package database

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/therealutkarshpriyadarshi/tooldetect/pkg/models"
)

// DetectionFilter narrows detection listings.
// A zero UserID means every user.
type DetectionFilter struct {
	UserID int64
	Limit  int
	Offset int
}

var detectionColumns = []string{
	"id", "user_id", "job_id", "drill", "hammer", "pliers", "scissors",
	"screwdriver", "tape_measure", "wrench", "frames_processed", "created_at",
}

// upsertDetection overwrites the row of a job that is processed again after a failure
const upsertDetection = "ON CONFLICT (job_id) DO UPDATE SET " +
	"user_id = EXCLUDED.user_id, drill = EXCLUDED.drill, hammer = EXCLUDED.hammer, " +
	"pliers = EXCLUDED.pliers, scissors = EXCLUDED.scissors, screwdriver = EXCLUDED.screwdriver, " +
	"tape_measure = EXCLUDED.tape_measure, wrench = EXCLUDED.wrench, " +
	"frames_processed = EXCLUDED.frames_processed " +
	"RETURNING id, created_at"

// CreateDetection stores the result row of a processed video.
// There is at most one row per job; a retried job replaces its earlier row.
func (r *Repository) CreateDetection(ctx context.Context, d *models.Detection) error {
	query, args, err := psql.Insert("detections").
		Columns("user_id", "job_id", "drill", "hammer", "pliers", "scissors",
			"screwdriver", "tape_measure", "wrench", "frames_processed").
		Values(d.UserID, d.JobID, d.Drill, d.Hammer, d.Pliers, d.Scissors,
			d.Screwdriver, d.TapeMeasure, d.Wrench, d.FramesProcessed).
		Suffix(upsertDetection).
		ToSql()
	if err != nil {
		return fmt.Errorf("building insert query: %w", err)
	}

	if err := r.db.QueryRow(ctx, query, args...).Scan(&d.ID, &d.CreatedAt); err != nil {
		return fmt.Errorf("inserting detection: %w", mapError(err))
	}
	return nil
}

// GetDetection retrieves a detection by ID
func (r *Repository) GetDetection(ctx context.Context, id int64) (*models.Detection, error) {
	query, args, err := psql.Select(detectionColumns...).
		From("detections").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select query: %w", err)
	}

	var d models.Detection
	if err := pgxscan.Get(ctx, r.db, &d, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning detection: %w", err)
	}
	return &d, nil
}

// ListDetections returns detections newest first along with the unpaged total
func (r *Repository) ListDetections(ctx context.Context, f DetectionFilter) ([]*models.Detection, int64, error) {
	where := squirrel.And{}
	if f.UserID != 0 {
		where = append(where, squirrel.Eq{"user_id": f.UserID})
	}

	countQuery, countArgs, err := psql.Select("COUNT(*)").From("detections").Where(where).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("building count query: %w", err)
	}
	var total int64
	if err := r.db.QueryRow(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting detections: %w", err)
	}

	qb := psql.Select(detectionColumns...).
		From("detections").
		Where(where).
		OrderBy("created_at DESC", "id DESC")
	if f.Limit > 0 {
		qb = qb.Limit(uint64(f.Limit))
	}
	if f.Offset > 0 {
		qb = qb.Offset(uint64(f.Offset))
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("building select query: %w", err)
	}

	detections := []*models.Detection{}
	if err := pgxscan.Select(ctx, r.db, &detections, query, args...); err != nil {
		return nil, 0, fmt.Errorf("scanning detections: %w", err)
	}
	return detections, total, nil
}

// DetectionSummary aggregates detections per user.
// A zero userID summarises every user.
func (r *Repository) DetectionSummary(ctx context.Context, userID int64) ([]*models.UserDetectionSummary, error) {
	qb := psql.Select(
		"u.id AS user_id", "u.email", "u.name",
		"COUNT(d.id) AS videos",
		"COALESCE(SUM(d.drill), 0) AS drill",
		"COALESCE(SUM(d.hammer), 0) AS hammer",
		"COALESCE(SUM(d.pliers), 0) AS pliers",
		"COALESCE(SUM(d.scissors), 0) AS scissors",
		"COALESCE(SUM(d.screwdriver), 0) AS screwdriver",
		"COALESCE(SUM(d.tape_measure), 0) AS tape_measure",
		"COALESCE(SUM(d.wrench), 0) AS wrench",
	).
		From("users u").
		LeftJoin("detections d ON d.user_id = u.id").
		GroupBy("u.id").
		OrderBy("u.id")
	if userID != 0 {
		qb = qb.Where(squirrel.Eq{"u.id": userID})
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building summary query: %w", err)
	}

	summaries := []*models.UserDetectionSummary{}
	if err := pgxscan.Select(ctx, r.db, &summaries, query, args...); err != nil {
		return nil, fmt.Errorf("scanning summary: %w", err)
	}
	return summaries, nil
}
