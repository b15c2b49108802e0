package main

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/therealutkarshpriyadarshi/tooldetect/internal/database"
	"github.com/therealutkarshpriyadarshi/tooldetect/internal/metrics"
	"github.com/therealutkarshpriyadarshi/tooldetect/internal/middleware"
	"github.com/therealutkarshpriyadarshi/tooldetect/pkg/models"
)

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

type loginResponse struct {
	Token     string       `json:"token"`
	TokenType string       `json:"token_type"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *models.User `json:"user"`
}

// login exchanges credentials for a bearer token
func (api *API) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": validationMessage(err)})
		return
	}

	email := models.NormalizeEmail(req.Email)
	user, err := api.repo.GetUserByEmail(c.Request.Context(), email)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		api.respondError(c, err, "")
		return
	}

	if user == nil || !user.CheckPassword(req.Password) {
		metrics.RecordLogin("invalid")
		api.log().LogAuthEvent("login", email, c.ClientIP(), "invalid")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
		return
	}

	if !user.Active {
		metrics.RecordLogin("inactive")
		api.log().LogAuthEvent("login", email, c.ClientIP(), "inactive")
		c.JSON(http.StatusForbidden, gin.H{"error": "Account is deactivated"})
		return
	}

	token, claims, err := api.auth.GenerateToken(user)
	if err != nil {
		api.respondError(c, err, "")
		return
	}

	metrics.RecordLogin("success")
	api.log().LogAuthEvent("login", email, c.ClientIP(), "success")
	c.JSON(http.StatusOK, loginResponse{
		Token:     token,
		TokenType: "Bearer",
		ExpiresAt: claims.ExpiresAt.Time,
		User:      user,
	})
}

// logout revokes the presented token until it would have expired
func (api *API) logout(c *gin.Context) {
	claims, ok := middleware.ClaimsFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	ttl := time.Until(claims.ExpiresAt.Time)
	if err := api.cache.RevokeToken(c.Request.Context(), claims.ID, ttl); err != nil {
		api.respondError(c, err, "")
		return
	}

	api.log().LogAuthEvent("logout", claims.Email, c.ClientIP(), "success")
	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

// me returns the caller with the permissions their role grants
func (api *API) me(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	permissions := []string{}
	for _, code := range models.KnownPermissions {
		if code != models.PermissionAll && user.HasPermission(code) {
			permissions = append(permissions, code)
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"user":        user,
		"is_admin":    user.IsAdmin(),
		"permissions": permissions,
	})
}
