package main

import (
	"context"
	"time"

	"github.com/therealutkarshpriyadarshi/tooldetect/internal/database"
	"github.com/therealutkarshpriyadarshi/tooldetect/internal/detector"
	"github.com/therealutkarshpriyadarshi/tooldetect/pkg/models"
)

// Repository is the persistence used by the HTTP handlers
type Repository interface {
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	ListUsers(ctx context.Context) ([]*models.User, error)
	CreateUser(ctx context.Context, user *models.User) error
	UpdateUser(ctx context.Context, user *models.User) error
	DeactivateUser(ctx context.Context, id int64) error

	GetRole(ctx context.Context, id int64) (*models.Role, error)
	ListRoles(ctx context.Context) ([]*models.Role, error)
	ListPermissions(ctx context.Context) ([]*models.Permission, error)
	CreateRole(ctx context.Context, role *models.Role) error
	UpdateRole(ctx context.Context, role *models.Role) error

	CreateJob(ctx context.Context, job *models.DetectionJob) error
	GetJob(ctx context.Context, id string) (*models.DetectionJob, error)

	GetDetection(ctx context.Context, id int64) (*models.Detection, error)
	ListDetections(ctx context.Context, f database.DetectionFilter) ([]*models.Detection, int64, error)
	DetectionSummary(ctx context.Context, userID int64) ([]*models.UserDetectionSummary, error)
}

// ObjectStorage stores uploaded videos and serves previews
type ObjectStorage interface {
	UploadFile(ctx context.Context, objectName, filePath string) error
	Delete(ctx context.Context, objectName string) error
	GetURL(ctx context.Context, objectName string) (string, error)
}

// JobPublisher hands jobs to the worker
type JobPublisher interface {
	PublishJob(ctx context.Context, msg *models.JobMessage) error
}

// Cache holds report summaries and revoked tokens
type Cache interface {
	GetReportSummary(ctx context.Context, scope string) ([]*models.UserDetectionSummary, bool, error)
	SetReportSummary(ctx context.Context, scope string, summary []*models.UserDetectionSummary, ttl time.Duration) error
	RevokeToken(ctx context.Context, jti string, ttl time.Duration) error
}

// VideoProber reads stream information from an uploaded file
type VideoProber interface {
	Probe(ctx context.Context, inputPath string) (*detector.VideoInfo, error)
}

// HealthChecker is a dependency reported by /health
type HealthChecker interface {
	Health(ctx context.Context) error
}
