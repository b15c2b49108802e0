package main

import (
	"context"
	"fmt"
	"time"

	"github.com/therealutkarshpriyadarshi/tooldetect/internal/config"
	"github.com/therealutkarshpriyadarshi/tooldetect/internal/logging"
	"github.com/therealutkarshpriyadarshi/tooldetect/internal/queue"
	"github.com/therealutkarshpriyadarshi/tooldetect/pkg/models"
)

// Locker is a distributed mutex keyed by resource name
type Locker interface {
	AcquireLock(ctx context.Context, resource string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, resource string) error
}

const minJobLockTTL = 30 * time.Minute

// jobLockTTL bounds how long one worker may hold a job.
// It never expires before the sweeper's processing timeout.
func jobLockTTL(cfg *config.Config) time.Duration {
	ttl := minJobLockTTL
	if cfg.Scheduler.ProcessingTimeout > ttl {
		ttl = cfg.Scheduler.ProcessingTimeout
	}
	d := cfg.Detector
	if d.MaxFrames > 0 && d.Timeout > 0 {
		if frames := time.Duration(d.MaxFrames) * d.Timeout; frames > ttl {
			ttl = frames
		}
	}
	return ttl
}

// withJobLock runs next only when no other worker holds the job.
// A message for a job that is already being processed is acknowledged and dropped.
func withJobLock(locker Locker, ttl time.Duration, logger *logging.Logger, next queue.Handler) queue.Handler {
	return func(ctx context.Context, msg *models.JobMessage) error {
		resource := fmt.Sprintf("job:%s", msg.JobID)

		acquired, err := locker.AcquireLock(ctx, resource, ttl)
		if err != nil {
			return fmt.Errorf("failed to acquire job lock: %w", err)
		}
		if !acquired {
			logger.WithJobID(msg.JobID).Warn("job is locked by another worker, skipping")
			return nil
		}
		defer func() {
			if err := locker.ReleaseLock(context.Background(), resource); err != nil {
				logger.WithJobID(msg.JobID).ErrorWithErr("failed to release job lock", err)
			}
		}()

		return next(ctx, msg)
	}
}
