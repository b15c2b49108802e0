package main

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/therealutkarshpriyadarshi/tooldetect/internal/config"
	"github.com/therealutkarshpriyadarshi/tooldetect/internal/database"
	"github.com/therealutkarshpriyadarshi/tooldetect/internal/logging"
	"github.com/therealutkarshpriyadarshi/tooldetect/internal/metrics"
	"github.com/therealutkarshpriyadarshi/tooldetect/internal/middleware"
)

// API holds the handler dependencies
type API struct {
	repo    Repository
	storage ObjectStorage
	queue   JobPublisher
	cache   Cache
	prober  VideoProber
	auth    *middleware.Authenticator
	limiter *middleware.RateLimiter
	health  map[string]HealthChecker
	cfg     *config.Config
	logger  *logging.Logger
}

func (api *API) log() *logging.Logger {
	if api.logger == nil {
		return logging.Nop()
	}
	return api.logger
}

// Health check endpoint
func (api *API) healthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	checks := gin.H{}
	healthy := true
	for name, checker := range api.health {
		if err := checker.Health(ctx); err != nil {
			checks[name] = err.Error()
			healthy = false
			continue
		}
		checks[name] = "ok"
	}

	if !healthy {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "checks": checks})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "checks": checks})
}

// respondError maps repository errors onto HTTP statuses.
// notFound is the message used for a missing row.
func (api *API) respondError(c *gin.Context, err error, notFound string) {
	switch {
	case errors.Is(err, database.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": notFound})
	case errors.Is(err, database.ErrDuplicate):
		c.JSON(http.StatusConflict, gin.H{"error": "Resource already exists"})
	case errors.Is(err, database.ErrInvalidReference):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Referenced resource does not exist"})
	default:
		metrics.RecordError("api", "internal")
		api.log().WithField("path", c.FullPath()).ErrorWithErr("request failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

func paramID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid id"})
		return 0, false
	}
	return id, true
}
