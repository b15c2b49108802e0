package main

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/therealutkarshpriyadarshi/tooldetect/internal/database"
	"github.com/therealutkarshpriyadarshi/tooldetect/internal/detector"
	"github.com/therealutkarshpriyadarshi/tooldetect/pkg/models"
)

// MockRepo is a mock implementation of Repository
type MockRepo struct {
	mock.Mock
}

func (m *MockRepo) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockRepo) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockRepo) ListUsers(ctx context.Context) ([]*models.User, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.User), args.Error(1)
}

func (m *MockRepo) CreateUser(ctx context.Context, user *models.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockRepo) UpdateUser(ctx context.Context, user *models.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockRepo) DeactivateUser(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockRepo) GetRole(ctx context.Context, id int64) (*models.Role, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Role), args.Error(1)
}

func (m *MockRepo) ListRoles(ctx context.Context) ([]*models.Role, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Role), args.Error(1)
}

func (m *MockRepo) ListPermissions(ctx context.Context) ([]*models.Permission, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Permission), args.Error(1)
}

func (m *MockRepo) CreateRole(ctx context.Context, role *models.Role) error {
	args := m.Called(ctx, role)
	return args.Error(0)
}

func (m *MockRepo) UpdateRole(ctx context.Context, role *models.Role) error {
	args := m.Called(ctx, role)
	return args.Error(0)
}

func (m *MockRepo) CreateJob(ctx context.Context, job *models.DetectionJob) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *MockRepo) GetJob(ctx context.Context, id string) (*models.DetectionJob, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.DetectionJob), args.Error(1)
}

func (m *MockRepo) GetDetection(ctx context.Context, id int64) (*models.Detection, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Detection), args.Error(1)
}

func (m *MockRepo) ListDetections(ctx context.Context, f database.DetectionFilter) ([]*models.Detection, int64, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]*models.Detection), args.Get(1).(int64), args.Error(2)
}

func (m *MockRepo) DetectionSummary(ctx context.Context, userID int64) ([]*models.UserDetectionSummary, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.UserDetectionSummary), args.Error(1)
}

// MockStorage is a mock implementation of ObjectStorage
type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) UploadFile(ctx context.Context, objectName, filePath string) error {
	args := m.Called(ctx, objectName, filePath)
	return args.Error(0)
}

func (m *MockStorage) Delete(ctx context.Context, objectName string) error {
	args := m.Called(ctx, objectName)
	return args.Error(0)
}

func (m *MockStorage) GetURL(ctx context.Context, objectName string) (string, error) {
	args := m.Called(ctx, objectName)
	return args.String(0), args.Error(1)
}

// MockQueue is a mock implementation of JobPublisher
type MockQueue struct {
	mock.Mock
}

func (m *MockQueue) PublishJob(ctx context.Context, msg *models.JobMessage) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

// MockCache is a mock implementation of Cache
type MockCache struct {
	mock.Mock
}

func (m *MockCache) GetReportSummary(ctx context.Context, scope string) ([]*models.UserDetectionSummary, bool, error) {
	args := m.Called(ctx, scope)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).([]*models.UserDetectionSummary), args.Bool(1), args.Error(2)
}

func (m *MockCache) SetReportSummary(ctx context.Context, scope string, summary []*models.UserDetectionSummary, ttl time.Duration) error {
	args := m.Called(ctx, scope, summary, ttl)
	return args.Error(0)
}

func (m *MockCache) RevokeToken(ctx context.Context, jti string, ttl time.Duration) error {
	args := m.Called(ctx, jti, ttl)
	return args.Error(0)
}

// MockProber is a mock implementation of VideoProber
type MockProber struct {
	mock.Mock
}

func (m *MockProber) Probe(ctx context.Context, inputPath string) (*detector.VideoInfo, error) {
	args := m.Called(ctx, inputPath)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*detector.VideoInfo), args.Error(1)
}
