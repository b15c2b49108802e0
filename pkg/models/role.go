package models

import (
	"time"
)

// Built-in role names
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// Permission codes. PermissionAll grants every other permission.
const (
	PermissionAll    = "all"
	PermissionView   = "view"
	PermissionDetect = "detect"
)

// KnownPermissions lists the permission catalogue codes
var KnownPermissions = []string{PermissionAll, PermissionView, PermissionDetect}

// IsKnownPermission reports whether code is part of the catalogue
func IsKnownPermission(code string) bool {
	for _, p := range KnownPermissions {
		if p == code {
			return true
		}
	}
	return false
}

// Role is a named set of permissions assigned to users
type Role struct {
	ID          int64     `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	Permissions []string  `json:"permissions" db:"permissions"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// Permission is an entry of the permission catalogue
type Permission struct {
	Code        string `json:"code" db:"code"`
	Description string `json:"description" db:"description"`
}

// HasPermission reports whether the role grants code.
// A nil role or an empty permission set grants nothing.
func (r *Role) HasPermission(code string) bool {
	if r == nil || code == "" {
		return false
	}
	for _, p := range r.Permissions {
		if p == code || p == PermissionAll {
			return true
		}
	}
	return false
}
