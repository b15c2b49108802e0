package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/therealutkarshpriyadarshi/tooldetect/internal/config"
	"github.com/therealutkarshpriyadarshi/tooldetect/pkg/models"
)

type MockRepo struct {
	mock.Mock
}

func (m *MockRepo) ListStaleJobs(ctx context.Context, status string, before time.Time, limit int) ([]*models.DetectionJob, error) {
	args := m.Called(ctx, status, before, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.DetectionJob), args.Error(1)
}

func (m *MockRepo) UpdateJob(ctx context.Context, job *models.DetectionJob) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishJob(ctx context.Context, msg *models.JobMessage) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

var testCfg = config.SchedulerConfig{
	Enabled:           true,
	Interval:          time.Minute,
	RequeueAfter:      10 * time.Minute,
	ProcessingTimeout: time.Hour,
	BatchSize:         50,
}

func newTestSweeper(repo *MockRepo, pub *MockPublisher, now time.Time) *Sweeper {
	s := NewSweeper(testCfg, repo, pub, nil)
	s.now = func() time.Time { return now }
	return s
}

func TestSweep_RequeuesStaleQueuedJobs(t *testing.T) {
	repo := new(MockRepo)
	pub := new(MockPublisher)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	queued := &models.DetectionJob{ID: "job-1", UserID: 2, Status: models.JobStatusQueued}
	repo.On("ListStaleJobs", mock.Anything, models.JobStatusQueued, now.Add(-10*time.Minute), 50).
		Return([]*models.DetectionJob{queued}, nil)
	repo.On("ListStaleJobs", mock.Anything, models.JobStatusProcessing, now.Add(-time.Hour), 50).
		Return([]*models.DetectionJob{}, nil)
	pub.On("PublishJob", mock.Anything, &models.JobMessage{JobID: "job-1", UserID: 2}).Return(nil)
	repo.On("UpdateJob", mock.Anything, queued).Return(nil)

	res, err := newTestSweeper(repo, pub, now).Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Requeued: 1}, res)
	assert.Equal(t, models.JobStatusQueued, queued.Status)
	repo.AssertExpectations(t)
	pub.AssertExpectations(t)
}

func TestSweep_FailsTimedOutJobs(t *testing.T) {
	repo := new(MockRepo)
	pub := new(MockPublisher)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	stuck := &models.DetectionJob{ID: "job-2", UserID: 3, Status: models.JobStatusProcessing}
	repo.On("ListStaleJobs", mock.Anything, models.JobStatusQueued, mock.Anything, 50).
		Return([]*models.DetectionJob{}, nil)
	repo.On("ListStaleJobs", mock.Anything, models.JobStatusProcessing, now.Add(-time.Hour), 50).
		Return([]*models.DetectionJob{stuck}, nil)
	repo.On("UpdateJob", mock.Anything, stuck).Return(nil)

	res, err := newTestSweeper(repo, pub, now).Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Failed: 1}, res)
	assert.Equal(t, models.JobStatusFailed, stuck.Status)
	assert.Equal(t, TimeoutMessage, stuck.ErrorMsg)
	require.NotNil(t, stuck.CompletedAt)
	assert.Equal(t, now, *stuck.CompletedAt)
	pub.AssertNotCalled(t, "PublishJob", mock.Anything, mock.Anything)
	repo.AssertExpectations(t)
}

func TestSweep_PublishErrorStopsSweep(t *testing.T) {
	repo := new(MockRepo)
	pub := new(MockPublisher)
	now := time.Now()

	queued := &models.DetectionJob{ID: "job-1", UserID: 2, Status: models.JobStatusQueued}
	repo.On("ListStaleJobs", mock.Anything, models.JobStatusQueued, mock.Anything, 50).
		Return([]*models.DetectionJob{queued}, nil)
	pub.On("PublishJob", mock.Anything, mock.Anything).Return(errors.New("channel closed"))

	res, err := newTestSweeper(repo, pub, now).Sweep(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "job-1")
	assert.Equal(t, 0, res.Requeued)
	repo.AssertNotCalled(t, "UpdateJob", mock.Anything, mock.Anything)
}

func TestSweep_ListError(t *testing.T) {
	repo := new(MockRepo)
	pub := new(MockPublisher)

	repo.On("ListStaleJobs", mock.Anything, models.JobStatusQueued, mock.Anything, 50).
		Return(nil, errors.New("connection refused"))

	_, err := newTestSweeper(repo, pub, time.Now()).Sweep(context.Background())
	assert.ErrorContains(t, err, "failed to list queued jobs")
}

func TestSweep_DisabledPhases(t *testing.T) {
	repo := new(MockRepo)
	pub := new(MockPublisher)

	s := NewSweeper(config.SchedulerConfig{Interval: time.Minute}, repo, pub, nil)
	res, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{}, res)
	repo.AssertNotCalled(t, "ListStaleJobs", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSweeper_StartStop(t *testing.T) {
	repo := new(MockRepo)
	pub := new(MockPublisher)
	repo.On("ListStaleJobs", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]*models.DetectionJob{}, nil).Maybe()

	cfg := testCfg
	cfg.Interval = 5 * time.Millisecond
	s := NewSweeper(cfg, repo, pub, nil)

	s.Start(context.Background())
	s.Start(context.Background())
	time.Sleep(20 * time.Millisecond)
	s.Stop()
	s.Stop()
}
