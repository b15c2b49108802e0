package detector

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/therealutkarshpriyadarshi/tooldetect/internal/config"
	"github.com/therealutkarshpriyadarshi/tooldetect/internal/logging"
	"github.com/therealutkarshpriyadarshi/tooldetect/internal/metrics"
	"github.com/therealutkarshpriyadarshi/tooldetect/internal/storage"
	"github.com/therealutkarshpriyadarshi/tooldetect/internal/tracing"
	"github.com/therealutkarshpriyadarshi/tooldetect/pkg/models"
)

// Repository is the persistence the worker needs
type Repository interface {
	GetJob(ctx context.Context, id string) (*models.DetectionJob, error)
	UpdateJob(ctx context.Context, job *models.DetectionJob) error
	CreateDetection(ctx context.Context, d *models.Detection) error
}

// ObjectStore moves job files to and from object storage
type ObjectStore interface {
	DownloadFile(ctx context.Context, objectName, filePath string) error
	UploadFile(ctx context.Context, objectName, filePath string) error
}

// ReportCache is invalidated whenever a new detection row is written
type ReportCache interface {
	InvalidateReports(ctx context.Context) error
}

// VideoDecoder probes and decodes video files
type VideoDecoder interface {
	Probe(ctx context.Context, inputPath string) (*VideoInfo, error)
	OpenFrames(ctx context.Context, inputPath string, width, height int) (FrameSource, error)
}

// Service runs detection jobs
type Service struct {
	cfg      config.DetectorConfig
	repo     Repository
	store    ObjectStore
	cache    ReportCache
	decoder  VideoDecoder
	detector Detector
	counter  *Counter
	logger   *logging.Logger
}

// NewService creates a new detection service
func NewService(
	cfg config.DetectorConfig,
	repo Repository,
	store ObjectStore,
	cache ReportCache,
	decoder VideoDecoder,
	detector Detector,
	logger *logging.Logger,
) *Service {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Service{
		cfg:      cfg,
		repo:     repo,
		store:    store,
		cache:    cache,
		decoder:  decoder,
		detector: detector,
		counter:  NewCounter(cfg.Classes, cfg.ConfidenceThreshold),
		logger:   logger.WithComponent("detector"),
	}
}

// frameResult holds what survives the frame loop: the last frame and its output
type frameResult struct {
	frames     int
	counts     models.ClassCounts
	detections []Detection
	lastFrame  *image.RGBA
}

// ProcessJob runs detection over the job's video and stores the last frame's presence
func (s *Service) ProcessJob(ctx context.Context, msg *models.JobMessage) error {
	span, ctx := tracing.StartSpan(ctx, "detector.process_job")
	defer tracing.FinishSpan(span)
	tracing.SetTag(span, "job_id", msg.JobID)

	log := s.logger.WithJobID(msg.JobID)

	job, err := s.repo.GetJob(ctx, msg.JobID)
	if err != nil {
		tracing.LogError(span, err)
		return fmt.Errorf("failed to load job: %w", err)
	}
	// A failed job may be redelivered once and is retried from scratch
	if job.Status == models.JobStatusCompleted {
		log.Info("job already completed, skipping")
		return nil
	}
	if msg.UserID != 0 && msg.UserID != job.UserID {
		log.Warnf("message user %d does not own job, using job owner %d", msg.UserID, job.UserID)
	}

	// Update job status to processing
	start := time.Now()
	job.Status = models.JobStatusProcessing
	job.StartedAt = &start
	job.ErrorMsg = ""
	job.CompletedAt = nil
	if err := s.repo.UpdateJob(ctx, job); err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}
	metrics.RecordJobStarted()
	log.LogJobEvent(job.ID, "started", job.Status, map[string]interface{}{"user_id": job.UserID})

	err = s.runJob(ctx, job)
	duration := time.Since(start).Seconds()
	if err != nil {
		tracing.LogError(span, err)
		metrics.RecordJobCompleted(models.JobStatusFailed, duration)
		return s.failJob(ctx, job, err)
	}

	metrics.RecordJobCompleted(models.JobStatusCompleted, duration)
	log.LogJobEvent(job.ID, "completed", job.Status, map[string]interface{}{
		"frames":       job.FramesProcessed,
		"detection_id": job.DetectionID,
	})
	return nil
}

func (s *Service) runJob(ctx context.Context, job *models.DetectionJob) error {
	// Create temporary directory
	tempDir := filepath.Join(s.cfg.TempDir, job.ID)
	if err := os.MkdirAll(tempDir, 0755); err != nil {
		return fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer os.RemoveAll(tempDir)

	// Download source video
	inputPath := filepath.Join(tempDir, "input"+filepath.Ext(job.Filename))
	start := time.Now()
	err := s.store.DownloadFile(ctx, job.StorageKey, inputPath)
	s.logger.WithJobID(job.ID).LogStorageOperation("download", job.StorageKey, fileSize(inputPath), time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to download video: %w", err)
	}

	info, err := s.decoder.Probe(ctx, inputPath)
	if err != nil {
		return fmt.Errorf("failed to probe video: %w", err)
	}
	job.FPS = info.FPS
	job.Metadata = info.Metadata()

	result, err := s.detectFrames(ctx, job, inputPath)
	if err != nil {
		return err
	}
	job.FramesProcessed = result.frames

	if result.frames == 0 {
		s.logger.WithJobID(job.ID).Info("no frames decoded, nothing to export")
		return s.completeJob(ctx, job)
	}

	// Preview goes up before the row is written so a failed upload leaves no orphan row
	previewPath := filepath.Join(tempDir, "last_frame.jpg")
	if err := writePreview(previewPath, result.lastFrame, result.detections); err != nil {
		return err
	}
	previewKey := storage.PreviewKey(job.ID)
	start = time.Now()
	err = s.store.UploadFile(ctx, previewKey, previewPath)
	s.logger.WithJobID(job.ID).LogStorageOperation("upload", previewKey, fileSize(previewPath), time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to upload preview: %w", err)
	}

	detection := models.NewDetection(job.UserID, job.ID, result.counts, result.frames)
	if err := s.repo.CreateDetection(ctx, detection); err != nil {
		return fmt.Errorf("failed to save detection: %w", err)
	}
	metrics.RecordDetections(result.counts)

	job.DetectionID = &detection.ID
	job.PreviewKey = previewKey
	if err := s.completeJob(ctx, job); err != nil {
		return err
	}

	if s.cache != nil {
		if err := s.cache.InvalidateReports(ctx); err != nil {
			s.logger.WithJobID(job.ID).ErrorWithErr("failed to invalidate report cache", err)
		}
	}
	return nil
}

// detectFrames decodes the video and runs the model on every frame.
// Only the most recent frame's presence and detections are kept.
// Progress is written back to the job periodically so updated_at tracks a live worker.
func (s *Service) detectFrames(ctx context.Context, job *models.DetectionJob, inputPath string) (*frameResult, error) {
	frames, err := s.decoder.OpenFrames(ctx, inputPath, s.cfg.FrameWidth, s.cfg.FrameHeight)
	if err != nil {
		return nil, fmt.Errorf("failed to open video: %w", err)
	}
	defer frames.Close()

	result := &frameResult{}
	lastBeat := time.Now()
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if s.cfg.MaxFrames > 0 && result.frames >= s.cfg.MaxFrames {
			break
		}

		frame, err := frames.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to decode frame %d: %w", result.frames+1, err)
		}

		raw, err := s.detector.Detect(ctx, frame)
		if err != nil {
			return nil, fmt.Errorf("detection failed on frame %d: %w", result.frames+1, err)
		}
		detections := s.counter.Filter(raw)

		result.frames++
		result.counts = s.counter.Presence(detections)
		result.detections = detections
		result.lastFrame = frame

		if s.progressDue(result.frames, lastBeat) {
			s.reportProgress(ctx, job, result.frames)
			lastBeat = time.Now()
		}
	}
	return result, nil
}

func (s *Service) progressDue(frames int, lastBeat time.Time) bool {
	if s.cfg.ProgressEvery > 0 && frames%s.cfg.ProgressEvery == 0 {
		return true
	}
	return s.cfg.ProgressInterval > 0 && time.Since(lastBeat) >= s.cfg.ProgressInterval
}

// reportProgress stores the frame count. A failed write is logged, the loop keeps going.
func (s *Service) reportProgress(ctx context.Context, job *models.DetectionJob, frames int) {
	job.FramesProcessed = frames
	if err := s.repo.UpdateJob(ctx, job); err != nil {
		s.logger.WithJobID(job.ID).ErrorWithErr("failed to record progress", err)
		return
	}
	s.logger.WithJobID(job.ID).Debugf("processed %d frames", frames)
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}

func writePreview(path string, frame *image.RGBA, detections []Detection) error {
	Annotate(frame, detections)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create preview file: %w", err)
	}
	defer f.Close()

	if err := EncodeJPEG(f, frame); err != nil {
		return err
	}
	return f.Close()
}

func (s *Service) completeJob(ctx context.Context, job *models.DetectionJob) error {
	now := time.Now()
	job.Status = models.JobStatusCompleted
	job.CompletedAt = &now
	if err := s.repo.UpdateJob(ctx, job); err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}
	return nil
}

// failJob marks a job as failed and returns the original error
func (s *Service) failJob(ctx context.Context, job *models.DetectionJob, err error) error {
	now := time.Now()
	job.Status = models.JobStatusFailed
	job.ErrorMsg = err.Error()
	job.CompletedAt = &now

	if updateErr := s.repo.UpdateJob(ctx, job); updateErr != nil {
		s.logger.WithJobID(job.ID).ErrorWithErr("failed to mark job failed", updateErr)
	}
	s.logger.WithJobID(job.ID).WithError(err).Error("job failed")
	return err
}
