package main

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/therealutkarshpriyadarshi/tooldetect/internal/cache"
	"github.com/therealutkarshpriyadarshi/tooldetect/internal/database"
	"github.com/therealutkarshpriyadarshi/tooldetect/internal/metrics"
	"github.com/therealutkarshpriyadarshi/tooldetect/internal/middleware"
	"github.com/therealutkarshpriyadarshi/tooldetect/internal/report"
)

// reportUserID is the user a report is scoped to, 0 meaning everyone
func reportUserID(c *gin.Context) int64 {
	user, _ := middleware.CurrentUser(c)
	if user.IsAdmin() {
		return 0
	}
	return user.ID
}

// reportSummary returns per-user aggregates, served from cache when possible
func (api *API) reportSummary(c *gin.Context) {
	ctx := c.Request.Context()
	userID := reportUserID(c)
	scope := cache.ReportScope(userID)

	if summary, found, err := api.cache.GetReportSummary(ctx, scope); err != nil {
		api.log().WithError(err).Warn("report cache read failed")
	} else if found {
		metrics.RecordCacheAccess("report", true)
		c.JSON(http.StatusOK, gin.H{"summary": summary, "cached": true})
		return
	}
	metrics.RecordCacheAccess("report", false)

	summary, err := api.repo.DetectionSummary(ctx, userID)
	if err != nil {
		api.respondError(c, err, "")
		return
	}

	if err := api.cache.SetReportSummary(ctx, scope, summary, api.cfg.Cache.ReportTTL); err != nil {
		api.log().WithError(err).Warn("report cache write failed")
	}

	c.JSON(http.StatusOK, gin.H{"summary": summary, "cached": false})
}

// exportReport downloads the caller's visible detections as csv or pdf
func (api *API) exportReport(c *gin.Context) {
	format := c.DefaultQuery("format", report.FormatCSV)
	if format != report.FormatCSV && format != report.FormatPDF {
		c.JSON(http.StatusBadRequest, gin.H{"error": "format must be csv or pdf"})
		return
	}

	rows, _, err := api.repo.ListDetections(c.Request.Context(), database.DetectionFilter{UserID: reportUserID(c)})
	if err != nil {
		api.respondError(c, err, "")
		return
	}

	now := time.Now()
	var buf bytes.Buffer
	if err := report.Write(&buf, format, rows, now); err != nil {
		api.respondError(c, err, "")
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", report.Filename(format, now)))
	c.Data(http.StatusOK, report.ContentType(format), buf.Bytes())
}
