package detector

import (
	"context"
	"errors"
	"image"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/therealutkarshpriyadarshi/tooldetect/internal/config"
	"github.com/therealutkarshpriyadarshi/tooldetect/pkg/models"
)

type fakeRepo struct {
	jobs       map[string]*models.DetectionJob
	statuses   []string
	progress   []int
	detections []*models.Detection

	// failStatus makes the next update to that status fail once
	failStatus string
}

func (r *fakeRepo) GetJob(ctx context.Context, id string) (*models.DetectionJob, error) {
	job, ok := r.jobs[id]
	if !ok {
		return nil, errors.New("not found")
	}
	copied := *job
	return &copied, nil
}

func (r *fakeRepo) UpdateJob(ctx context.Context, job *models.DetectionJob) error {
	if r.failStatus != "" && job.Status == r.failStatus {
		r.failStatus = ""
		return errors.New("connection reset")
	}
	copied := *job
	r.jobs[job.ID] = &copied
	r.statuses = append(r.statuses, job.Status)
	r.progress = append(r.progress, job.FramesProcessed)
	return nil
}

// CreateDetection keeps one row per job like the detections table does
func (r *fakeRepo) CreateDetection(ctx context.Context, d *models.Detection) error {
	for i, existing := range r.detections {
		if existing.JobID == d.JobID {
			d.ID = existing.ID
			r.detections[i] = d
			return nil
		}
	}
	d.ID = int64(len(r.detections) + 1)
	r.detections = append(r.detections, d)
	return nil
}

type fakeStore struct {
	uploaded map[string][]byte
}

func (s *fakeStore) DownloadFile(ctx context.Context, objectName, filePath string) error {
	return os.WriteFile(filePath, []byte("video"), 0644)
}

func (s *fakeStore) UploadFile(ctx context.Context, objectName, filePath string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	s.uploaded[objectName] = data
	return nil
}

type fakeCache struct {
	invalidations int
}

func (c *fakeCache) InvalidateReports(ctx context.Context) error {
	c.invalidations++
	return nil
}

type sliceFrames struct {
	frames []*image.RGBA
	closed bool
}

func (f *sliceFrames) Next() (*image.RGBA, error) {
	if len(f.frames) == 0 {
		return nil, io.EOF
	}
	frame := f.frames[0]
	f.frames = f.frames[1:]
	return frame, nil
}

func (f *sliceFrames) Close() error {
	f.closed = true
	return nil
}

type fakeDecoder struct {
	info     *VideoInfo
	probeErr error
	source   *sliceFrames
}

func (d *fakeDecoder) Probe(ctx context.Context, inputPath string) (*VideoInfo, error) {
	if d.probeErr != nil {
		return nil, d.probeErr
	}
	return d.info, nil
}

func (d *fakeDecoder) OpenFrames(ctx context.Context, inputPath string, width, height int) (FrameSource, error) {
	return d.source, nil
}

// scriptedDetector returns one canned result per call
type scriptedDetector struct {
	results [][]Detection
	calls   int
	err     error
}

func (d *scriptedDetector) Detect(ctx context.Context, frame image.Image) ([]Detection, error) {
	if d.err != nil {
		return nil, d.err
	}
	var out []Detection
	if d.calls < len(d.results) {
		out = d.results[d.calls]
	}
	d.calls++
	return out, nil
}

func makeFrames(n int) *sliceFrames {
	frames := make([]*image.RGBA, n)
	for i := range frames {
		frames[i] = image.NewRGBA(image.Rect(0, 0, 64, 48))
	}
	return &sliceFrames{frames: frames}
}

type serviceFixture struct {
	svc      *Service
	repo     *fakeRepo
	store    *fakeStore
	cache    *fakeCache
	decoder  *fakeDecoder
	detector *scriptedDetector
}

func newFixture(t *testing.T, frames int, maxFrames int) *serviceFixture {
	cfg := config.DetectorConfig{
		ConfidenceThreshold: 0.25,
		FrameWidth:          64,
		FrameHeight:         48,
		MaxFrames:           maxFrames,
		Classes:             models.ToolClasses,
		TempDir:             t.TempDir(),
	}
	f := &serviceFixture{
		repo: &fakeRepo{jobs: map[string]*models.DetectionJob{
			"job-1": {ID: "job-1", UserID: 7, Filename: "clip.mp4", StorageKey: "videos/job-1/original/clip.mp4", Status: models.JobStatusQueued},
		}},
		store:    &fakeStore{uploaded: map[string][]byte{}},
		cache:    &fakeCache{},
		decoder:  &fakeDecoder{info: &VideoInfo{FPS: 30, Codec: "h264"}, source: makeFrames(frames)},
		detector: &scriptedDetector{},
	}
	f.svc = NewService(cfg, f.repo, f.store, f.cache, f.decoder, f.detector, nil)
	return f
}

func TestService_ProcessJob_KeepsLastFrame(t *testing.T) {
	f := newFixture(t, 3, 0)
	f.detector.results = [][]Detection{
		{{ClassID: 0, Confidence: 0.9, Box: image.Rect(1, 1, 10, 10)}},
		{{ClassID: 2, Confidence: 0.9, Box: image.Rect(1, 1, 10, 10)}},
		{
			{ClassID: 1, Confidence: 0.8, Box: image.Rect(5, 5, 20, 20)},
			{ClassID: 1, Confidence: 0.7, Box: image.Rect(30, 5, 40, 20)},
			{ClassID: 6, Confidence: 0.3, Box: image.Rect(2, 20, 30, 40)},
			{ClassID: 3, Confidence: 0.2, Box: image.Rect(2, 2, 4, 4)},
		},
	}

	err := f.svc.ProcessJob(context.Background(), &models.JobMessage{JobID: "job-1", UserID: 7})
	require.NoError(t, err)

	require.Len(t, f.repo.detections, 1)
	d := f.repo.detections[0]
	assert.Equal(t, int64(7), d.UserID)
	assert.Equal(t, "job-1", d.JobID)
	assert.Equal(t, 0, d.Drill, "earlier frames are discarded")
	assert.Equal(t, 0, d.Pliers)
	assert.Equal(t, 1, d.Hammer)
	assert.Equal(t, 1, d.Wrench)
	assert.Equal(t, 0, d.Scissors, "below threshold")
	assert.Equal(t, 2, d.Total())
	assert.Equal(t, 3, d.FramesProcessed)

	job := f.repo.jobs["job-1"]
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Equal(t, 3, job.FramesProcessed)
	assert.Equal(t, 30.0, job.FPS)
	require.NotNil(t, job.DetectionID)
	assert.Equal(t, d.ID, *job.DetectionID)
	assert.Equal(t, "detections/job-1/last_frame.jpg", job.PreviewKey)
	assert.NotNil(t, job.StartedAt)
	assert.NotNil(t, job.CompletedAt)
	assert.Equal(t, []string{models.JobStatusProcessing, models.JobStatusCompleted}, f.repo.statuses)

	assert.NotEmpty(t, f.store.uploaded["detections/job-1/last_frame.jpg"])
	assert.Equal(t, 1, f.cache.invalidations)
	assert.True(t, f.decoder.source.closed)
}

func TestService_ProcessJob_NoFrames(t *testing.T) {
	f := newFixture(t, 0, 0)

	err := f.svc.ProcessJob(context.Background(), &models.JobMessage{JobID: "job-1", UserID: 7})
	require.NoError(t, err)

	assert.Empty(t, f.repo.detections)
	assert.Empty(t, f.store.uploaded)
	assert.Equal(t, 0, f.cache.invalidations)

	job := f.repo.jobs["job-1"]
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Nil(t, job.DetectionID)
	assert.Equal(t, 0, job.FramesProcessed)
}

func TestService_ProcessJob_MaxFrames(t *testing.T) {
	f := newFixture(t, 5, 2)

	err := f.svc.ProcessJob(context.Background(), &models.JobMessage{JobID: "job-1"})
	require.NoError(t, err)

	assert.Equal(t, 2, f.detector.calls)
	require.Len(t, f.repo.detections, 1)
	assert.Equal(t, 2, f.repo.detections[0].FramesProcessed)
}

func TestService_ProcessJob_NoFPS(t *testing.T) {
	f := newFixture(t, 3, 0)
	f.decoder.probeErr = ErrNoFPS

	err := f.svc.ProcessJob(context.Background(), &models.JobMessage{JobID: "job-1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoFPS)

	job := f.repo.jobs["job-1"]
	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Contains(t, job.ErrorMsg, "could not retrieve FPS")
	assert.NotNil(t, job.CompletedAt)
	assert.Empty(t, f.repo.detections)
}

func TestService_ProcessJob_DetectorError(t *testing.T) {
	f := newFixture(t, 3, 0)
	f.detector.err = errors.New("model offline")

	err := f.svc.ProcessJob(context.Background(), &models.JobMessage{JobID: "job-1"})
	require.Error(t, err)

	job := f.repo.jobs["job-1"]
	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Contains(t, job.ErrorMsg, "model offline")
	assert.Empty(t, f.repo.detections)
	assert.Empty(t, f.store.uploaded)
}

func TestService_ProcessJob_SkipsCompleted(t *testing.T) {
	f := newFixture(t, 3, 0)
	f.repo.jobs["job-1"].Status = models.JobStatusCompleted

	err := f.svc.ProcessJob(context.Background(), &models.JobMessage{JobID: "job-1"})
	require.NoError(t, err)
	assert.Empty(t, f.repo.statuses)
	assert.Equal(t, 0, f.detector.calls)
}

func TestService_ProcessJob_UnknownJob(t *testing.T) {
	f := newFixture(t, 3, 0)

	err := f.svc.ProcessJob(context.Background(), &models.JobMessage{JobID: "missing"})
	assert.Error(t, err)
}

func TestService_ProcessJob_ReportsProgress(t *testing.T) {
	f := newFixture(t, 500, 0)
	f.svc.cfg.ProgressEvery = 100

	err := f.svc.ProcessJob(context.Background(), &models.JobMessage{JobID: "job-1", UserID: 7})
	require.NoError(t, err)

	assert.Equal(t, []string{
		models.JobStatusProcessing,
		models.JobStatusProcessing, models.JobStatusProcessing, models.JobStatusProcessing,
		models.JobStatusProcessing, models.JobStatusProcessing,
		models.JobStatusCompleted,
	}, f.repo.statuses)
	assert.Equal(t, []int{0, 100, 200, 300, 400, 500, 500}, f.repo.progress)
}

func TestService_ProcessJob_RetryAfterFailedCompletion(t *testing.T) {
	f := newFixture(t, 2, 0)
	f.detector.results = [][]Detection{
		{{ClassID: 0, Confidence: 0.9, Box: image.Rect(1, 1, 10, 10)}},
		{{ClassID: 4, Confidence: 0.9, Box: image.Rect(1, 1, 10, 10)}},
	}
	f.repo.failStatus = models.JobStatusCompleted
	msg := &models.JobMessage{JobID: "job-1", UserID: 7}

	err := f.svc.ProcessJob(context.Background(), msg)
	require.Error(t, err)
	assert.Equal(t, models.JobStatusFailed, f.repo.jobs["job-1"].Status)
	require.Len(t, f.repo.detections, 1)

	// Redelivery runs the whole job again
	f.decoder.source = makeFrames(2)
	f.detector.calls = 0
	require.NoError(t, f.svc.ProcessJob(context.Background(), msg))

	require.Len(t, f.repo.detections, 1)
	job := f.repo.jobs["job-1"]
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Empty(t, job.ErrorMsg)
	require.NotNil(t, job.DetectionID)
	assert.Equal(t, f.repo.detections[0].ID, *job.DetectionID)
	assert.Equal(t, 1, f.repo.detections[0].Screwdriver)
}
