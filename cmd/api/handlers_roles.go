package main

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/therealutkarshpriyadarshi/tooldetect/internal/database"
	"github.com/therealutkarshpriyadarshi/tooldetect/pkg/models"
)

type roleRequest struct {
	Name        string   `json:"name" binding:"required,min=2,max=64"`
	Description string   `json:"description" binding:"max=255"`
	Permissions []string `json:"permissions" binding:"dive,permcode"`
}

func (api *API) listRoles(c *gin.Context) {
	roles, err := api.repo.ListRoles(c.Request.Context())
	if err != nil {
		api.respondError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, gin.H{"roles": roles})
}

func (api *API) listPermissions(c *gin.Context) {
	permissions, err := api.repo.ListPermissions(c.Request.Context())
	if err != nil {
		api.respondError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, gin.H{"permissions": permissions})
}

func (api *API) getRole(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}

	role, err := api.repo.GetRole(c.Request.Context(), id)
	if err != nil {
		api.respondError(c, err, "Role not found")
		return
	}
	c.JSON(http.StatusOK, role)
}

func (api *API) createRole(c *gin.Context) {
	var req roleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": validationMessage(err)})
		return
	}

	role := &models.Role{
		Name:        req.Name,
		Description: req.Description,
		Permissions: dedupe(req.Permissions),
	}
	if err := api.repo.CreateRole(c.Request.Context(), role); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			c.JSON(http.StatusConflict, gin.H{"error": "Role name already exists"})
			return
		}
		api.respondError(c, err, "")
		return
	}

	c.JSON(http.StatusCreated, role)
}

func (api *API) updateRole(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}

	var req roleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": validationMessage(err)})
		return
	}

	ctx := c.Request.Context()
	role, err := api.repo.GetRole(ctx, id)
	if err != nil {
		api.respondError(c, err, "Role not found")
		return
	}

	role.Name = req.Name
	role.Description = req.Description
	role.Permissions = dedupe(req.Permissions)
	if err := api.repo.UpdateRole(ctx, role); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			c.JSON(http.StatusConflict, gin.H{"error": "Role name already exists"})
			return
		}
		api.respondError(c, err, "Role not found")
		return
	}

	c.JSON(http.StatusOK, role)
}

func dedupe(codes []string) []string {
	seen := make(map[string]bool, len(codes))
	out := make([]string, 0, len(codes))
	for _, code := range codes {
		if seen[code] {
			continue
		}
		seen[code] = true
		out = append(out, code)
	}
	return out
}
