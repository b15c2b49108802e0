package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/therealutkarshpriyadarshi/tooldetect/internal/config"
	"github.com/therealutkarshpriyadarshi/tooldetect/internal/logging"
	"github.com/therealutkarshpriyadarshi/tooldetect/internal/metrics"
	"github.com/therealutkarshpriyadarshi/tooldetect/pkg/models"
)

// TimeoutMessage is stored as the error of jobs stuck in processing
const TimeoutMessage = "processing timed out"

// Repository defines the job persistence the sweeper needs
type Repository interface {
	ListStaleJobs(ctx context.Context, status string, before time.Time, limit int) ([]*models.DetectionJob, error)
	UpdateJob(ctx context.Context, job *models.DetectionJob) error
}

// JobPublisher defines the interface for publishing jobs to queue
type JobPublisher interface {
	PublishJob(ctx context.Context, msg *models.JobMessage) error
}

// Result summarises one sweep
type Result struct {
	Requeued int
	Failed   int
}

// Sweeper periodically recovers jobs that were lost between the API and the worker.
// Queued jobs nobody picked up are published again; jobs stuck in processing
// past the timeout are marked failed.
type Sweeper struct {
	cfg       config.SchedulerConfig
	repo      Repository
	publisher JobPublisher
	logger    *logging.Logger
	now       func() time.Time

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSweeper creates a new job sweeper
func NewSweeper(cfg config.SchedulerConfig, repo Repository, publisher JobPublisher, logger *logging.Logger) *Sweeper {
	if logger == nil {
		logger = logging.Nop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	return &Sweeper{
		cfg:       cfg,
		repo:      repo,
		publisher: publisher,
		logger:    logger.WithComponent("scheduler"),
		now:       time.Now,
	}
}

// Start runs the sweep loop in the background until Stop is called
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.running = true

	go func() {
		defer close(s.done)
		s.Run(ctx)
	}()
	s.logger.Infof("job sweeper started, interval %s", s.cfg.Interval)
}

// Stop stops the sweep loop and waits for it to exit
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done
	s.logger.Info("job sweeper stopped")
}

// Run sweeps on every tick until ctx is cancelled
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res, err := s.Sweep(ctx)
			if err != nil {
				s.logger.ErrorWithErr("job sweep failed", err)
				metrics.RecordError("scheduler", "sweep")
				continue
			}
			if res.Requeued > 0 || res.Failed > 0 {
				s.logger.Infof("job sweep requeued %d and failed %d jobs", res.Requeued, res.Failed)
			}
		}
	}
}

// Sweep performs a single recovery pass
func (s *Sweeper) Sweep(ctx context.Context) (Result, error) {
	var res Result
	now := s.now()

	if s.cfg.RequeueAfter > 0 {
		jobs, err := s.repo.ListStaleJobs(ctx, models.JobStatusQueued, now.Add(-s.cfg.RequeueAfter), s.cfg.BatchSize)
		if err != nil {
			return res, fmt.Errorf("failed to list queued jobs: %w", err)
		}
		for _, job := range jobs {
			if err := s.requeue(ctx, job); err != nil {
				return res, err
			}
			res.Requeued++
		}
	}

	if s.cfg.ProcessingTimeout > 0 {
		jobs, err := s.repo.ListStaleJobs(ctx, models.JobStatusProcessing, now.Add(-s.cfg.ProcessingTimeout), s.cfg.BatchSize)
		if err != nil {
			return res, fmt.Errorf("failed to list processing jobs: %w", err)
		}
		for _, job := range jobs {
			job.Status = models.JobStatusFailed
			job.ErrorMsg = TimeoutMessage
			completed := now
			job.CompletedAt = &completed
			if err := s.repo.UpdateJob(ctx, job); err != nil {
				return res, fmt.Errorf("failed to fail job %s: %w", job.ID, err)
			}
			s.logger.LogJobEvent(job.ID, "timed_out", job.Status, nil)
			res.Failed++
		}
	}

	return res, nil
}

func (s *Sweeper) requeue(ctx context.Context, job *models.DetectionJob) error {
	msg := &models.JobMessage{JobID: job.ID, UserID: job.UserID}
	if err := s.publisher.PublishJob(ctx, msg); err != nil {
		return fmt.Errorf("failed to republish job %s: %w", job.ID, err)
	}
	// Touch updated_at so the job is not republished on the next tick
	if err := s.repo.UpdateJob(ctx, job); err != nil {
		return fmt.Errorf("failed to touch job %s: %w", job.ID, err)
	}
	s.logger.LogJobEvent(job.ID, "requeued", job.Status, nil)
	return nil
}
