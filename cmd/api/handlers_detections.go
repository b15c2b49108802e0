package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/therealutkarshpriyadarshi/tooldetect/internal/database"
	"github.com/therealutkarshpriyadarshi/tooldetect/internal/detector"
	"github.com/therealutkarshpriyadarshi/tooldetect/internal/metrics"
	"github.com/therealutkarshpriyadarshi/tooldetect/internal/middleware"
	"github.com/therealutkarshpriyadarshi/tooldetect/internal/storage"
	"github.com/therealutkarshpriyadarshi/tooldetect/pkg/models"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// uploadVideo stores a video and queues it for detection
func (api *API) uploadVideo(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	maxSize := api.cfg.Upload.MaxSize
	if maxSize > 0 && c.Request.ContentLength > maxSize+(1<<20) {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "File too large"})
		return
	}

	file, err := c.FormFile("video")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No video file provided"})
		return
	}
	if maxSize > 0 && file.Size > maxSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "File too large"})
		return
	}
	if !storage.IsAllowedExtension(file.Filename, api.cfg.Upload.AllowedExtensions) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unsupported file type"})
		return
	}

	// Save to temporary location
	if err := os.MkdirAll(api.cfg.Detector.TempDir, 0755); err != nil {
		api.respondError(c, err, "")
		return
	}
	tempPath := filepath.Join(api.cfg.Detector.TempDir, "upload-"+uuid.New().String()+filepath.Ext(file.Filename))
	if err := c.SaveUploadedFile(file, tempPath); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save file"})
		return
	}
	defer os.Remove(tempPath)

	ctx := c.Request.Context()
	info, err := api.prober.Probe(ctx, tempPath)
	if errors.Is(err, detector.ErrNoFPS) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Could not retrieve FPS from video"})
		return
	}
	if err != nil {
		api.log().WithError(err).Warn("probe rejected upload")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Could not read video file"})
		return
	}

	job := &models.DetectionJob{
		ID:       uuid.New().String(),
		UserID:   user.ID,
		Filename: file.Filename,
		Status:   models.JobStatusQueued,
		FPS:      info.FPS,
		Metadata: info.Metadata(),
	}
	job.StorageKey = storage.OriginalKey(job.ID, file.Filename)

	if err := api.storage.UploadFile(ctx, job.StorageKey, tempPath); err != nil {
		api.respondError(c, fmt.Errorf("failed to upload video: %w", err), "")
		return
	}
	metrics.RecordUpload(file.Size)

	if err := api.repo.CreateJob(ctx, job); err != nil {
		if delErr := api.storage.Delete(ctx, job.StorageKey); delErr != nil {
			api.log().WithJobID(job.ID).ErrorWithErr("failed to remove orphaned upload", delErr)
		}
		api.respondError(c, err, "")
		return
	}

	if err := api.queue.PublishJob(ctx, &models.JobMessage{JobID: job.ID, UserID: user.ID}); err != nil {
		// The row is queued already; the sweeper republishes it when enabled
		if !api.cfg.Scheduler.Enabled {
			api.respondError(c, fmt.Errorf("failed to queue job: %w", err), "")
			return
		}
		api.log().WithJobID(job.ID).WithError(err).Warn("publish failed, job left for the sweeper")
	}

	api.log().WithUserID(user.ID).LogJobEvent(job.ID, "queued", job.Status, map[string]interface{}{
		"filename": job.Filename,
		"size":     file.Size,
	})
	c.JSON(http.StatusAccepted, job)
}

// getJob returns a job to its owner or an admin
func (api *API) getJob(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)

	job, err := api.repo.GetJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		api.respondError(c, err, "Job not found")
		return
	}
	if !canSee(user, job.UserID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
		return
	}

	c.JSON(http.StatusOK, job)
}

// listDetections pages through detections. Non-admins only see their own.
func (api *API) listDetections(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)

	limit := queryInt(c, "limit", defaultPageSize)
	if limit <= 0 || limit > maxPageSize {
		limit = defaultPageSize
	}
	offset := queryInt(c, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	filter := database.DetectionFilter{Limit: limit, Offset: offset}
	if user.IsAdmin() {
		filter.UserID = int64(queryInt(c, "user_id", 0))
	} else {
		filter.UserID = user.ID
	}

	detections, total, err := api.repo.ListDetections(c.Request.Context(), filter)
	if err != nil {
		api.respondError(c, err, "")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"detections": detections,
		"total":      total,
		"limit":      limit,
		"offset":     offset,
	})
}

func (api *API) getDetection(c *gin.Context) {
	detection, ok := api.loadDetection(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"detection": detection,
		"total":     detection.Total(),
	})
}

// getDetectionPreview returns a presigned URL of the annotated last frame
func (api *API) getDetectionPreview(c *gin.Context) {
	detection, ok := api.loadDetection(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	job, err := api.repo.GetJob(ctx, detection.JobID)
	if err != nil {
		api.respondError(c, err, "Preview not available")
		return
	}
	if job.PreviewKey == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "Preview not available"})
		return
	}

	url, err := api.storage.GetURL(ctx, job.PreviewKey)
	if err != nil {
		api.respondError(c, err, "")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"url":        url,
		"expires_in": int(api.cfg.Storage.PresignExpiry.Seconds()),
	})
}

func (api *API) loadDetection(c *gin.Context) (*models.Detection, bool) {
	id, ok := paramID(c)
	if !ok {
		return nil, false
	}
	user, _ := middleware.CurrentUser(c)

	detection, err := api.repo.GetDetection(c.Request.Context(), id)
	if err != nil {
		api.respondError(c, err, "Detection not found")
		return nil, false
	}
	if !canSee(user, detection.UserID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Detection not found"})
		return nil, false
	}
	return detection, true
}

func canSee(user *models.User, ownerID int64) bool {
	return user != nil && (user.IsAdmin() || user.ID == ownerID)
}

func queryInt(c *gin.Context, key string, def int) int {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
