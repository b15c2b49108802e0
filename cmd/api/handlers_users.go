package main

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/therealutkarshpriyadarshi/tooldetect/internal/database"
	"github.com/therealutkarshpriyadarshi/tooldetect/internal/middleware"
	"github.com/therealutkarshpriyadarshi/tooldetect/pkg/models"
)

type userRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Name     string `json:"name" binding:"required,min=2,max=128"`
	Password string `json:"password" binding:"omitempty,min=8"`
	Active   *bool  `json:"active"`
	RoleID   int64  `json:"role_id" binding:"required"`
}

// listUsers returns every user to admins and only the caller to everyone else
func (api *API) listUsers(c *gin.Context) {
	caller, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	if !caller.IsAdmin() {
		c.JSON(http.StatusOK, gin.H{"users": []*models.User{caller}})
		return
	}

	users, err := api.repo.ListUsers(c.Request.Context())
	if err != nil {
		api.respondError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

func (api *API) getUser(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}

	user, err := api.repo.GetUserByID(c.Request.Context(), id)
	if err != nil {
		api.respondError(c, err, "User not found")
		return
	}
	c.JSON(http.StatusOK, user)
}

// resolveRole loads the role a user request points at. It writes the
// response and returns nil when the role is missing.
func (api *API) resolveRole(c *gin.Context, roleID int64) *models.Role {
	role, err := api.repo.GetRole(c.Request.Context(), roleID)
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Role does not exist"})
		return nil
	}
	if err != nil {
		api.respondError(c, err, "")
		return nil
	}
	return role
}

func (api *API) createUser(c *gin.Context) {
	var req userRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": validationMessage(err)})
		return
	}
	if req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "password is required"})
		return
	}

	ctx := c.Request.Context()
	email := models.NormalizeEmail(req.Email)
	if _, err := api.repo.GetUserByEmail(ctx, email); err == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "Email already exists"})
		return
	} else if !errors.Is(err, database.ErrNotFound) {
		api.respondError(c, err, "")
		return
	}

	role := api.resolveRole(c, req.RoleID)
	if role == nil {
		return
	}

	user := &models.User{
		Email:  email,
		Name:   req.Name,
		Active: true,
		RoleID: role.ID,
	}
	if req.Active != nil {
		user.Active = *req.Active
	}
	if err := user.SetPassword(req.Password); err != nil {
		api.respondError(c, err, "")
		return
	}

	if err := api.repo.CreateUser(ctx, user); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			c.JSON(http.StatusConflict, gin.H{"error": "Email already exists"})
			return
		}
		api.respondError(c, err, "")
		return
	}
	user.Role = role

	c.JSON(http.StatusCreated, user)
}

func (api *API) updateUser(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}

	var req userRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": validationMessage(err)})
		return
	}

	ctx := c.Request.Context()
	user, err := api.repo.GetUserByID(ctx, id)
	if err != nil {
		api.respondError(c, err, "User not found")
		return
	}

	email := models.NormalizeEmail(req.Email)
	if email != user.Email {
		other, err := api.repo.GetUserByEmail(ctx, email)
		if err == nil && other.ID != user.ID {
			c.JSON(http.StatusConflict, gin.H{"error": "Email already exists"})
			return
		}
		if err != nil && !errors.Is(err, database.ErrNotFound) {
			api.respondError(c, err, "")
			return
		}
	}

	caller, _ := middleware.CurrentUser(c)
	if req.Active != nil && !*req.Active && caller != nil && caller.ID == user.ID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "You cannot deactivate your own account"})
		return
	}

	role := api.resolveRole(c, req.RoleID)
	if role == nil {
		return
	}

	user.Email = email
	user.Name = req.Name
	user.RoleID = role.ID
	if req.Active != nil {
		user.Active = *req.Active
	}
	if req.Password != "" {
		if err := user.SetPassword(req.Password); err != nil {
			api.respondError(c, err, "")
			return
		}
	}

	if err := api.repo.UpdateUser(ctx, user); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			c.JSON(http.StatusConflict, gin.H{"error": "Email already exists"})
			return
		}
		api.respondError(c, err, "User not found")
		return
	}
	user.Role = role

	c.JSON(http.StatusOK, user)
}

func (api *API) deactivateUser(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}

	caller, ok := middleware.CurrentUser(c)
	if ok && caller.ID == id {
		c.JSON(http.StatusBadRequest, gin.H{"error": "You cannot deactivate your own account"})
		return
	}

	if err := api.repo.DeactivateUser(c.Request.Context(), id); err != nil {
		api.respondError(c, err, "User not found")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "User deactivated", "user_id": id})
}
