package main

import (
	"github.com/gin-gonic/gin"
	"github.com/therealutkarshpriyadarshi/tooldetect/internal/middleware"
	"github.com/therealutkarshpriyadarshi/tooldetect/pkg/models"
)

func setupRouter(api *API) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	if api.logger != nil {
		router.Use(middleware.Logger(api.logger))
	}
	router.Use(middleware.Metrics())

	// Health check
	router.GET("/health", api.healthCheck)

	v1 := router.Group("/api/v1")

	// Auth
	login := v1.Group("/auth")
	if api.limiter != nil {
		login.Use(middleware.RateLimit(api.limiter))
	}
	login.POST("/login", api.login)

	authed := v1.Group("")
	authed.Use(api.auth.Middleware())
	{
		authed.POST("/auth/logout", api.logout)
		authed.GET("/auth/me", api.me)

		// Users
		authed.GET("/users", api.listUsers)
		admin := authed.Group("")
		admin.Use(middleware.RequireRole(models.RoleAdmin))
		{
			admin.POST("/users", api.createUser)
			admin.GET("/users/:id", api.getUser)
			admin.PUT("/users/:id", api.updateUser)
			admin.POST("/users/:id/deactivate", api.deactivateUser)

			// Roles
			admin.GET("/roles", api.listRoles)
			admin.POST("/roles", api.createRole)
			admin.GET("/roles/:id", api.getRole)
			admin.PUT("/roles/:id", api.updateRole)
			admin.GET("/permissions", api.listPermissions)
		}

		// Detections
		authed.POST("/detections", middleware.RequirePermission(models.PermissionDetect), api.uploadVideo)
		authed.GET("/jobs/:id", api.getJob)

		view := authed.Group("")
		view.Use(middleware.RequirePermission(models.PermissionView))
		{
			view.GET("/detections", api.listDetections)
			view.GET("/detections/:id", api.getDetection)
			view.GET("/detections/:id/preview", api.getDetectionPreview)

			// Reports
			view.GET("/reports/summary", api.reportSummary)
			view.GET("/reports/export", api.exportReport)
		}
	}

	return router
}
