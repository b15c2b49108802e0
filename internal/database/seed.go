package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/therealutkarshpriyadarshi/tooldetect/pkg/models"
)

// SeedUser describes an account created by Seed
type SeedUser struct {
	Email    string
	Name     string
	Password string
	Role     string
}

// SeedOptions controls the default data written by Seed
type SeedOptions struct {
	Roles []*models.Role
	Users []SeedUser
}

// DefaultSeed returns the built-in roles and accounts
func DefaultSeed() SeedOptions {
	return SeedOptions{
		Roles: []*models.Role{
			{Name: models.RoleAdmin, Description: "Full administration", Permissions: []string{models.PermissionAll}},
			{Name: models.RoleUser, Description: "User access", Permissions: []string{models.PermissionView, models.PermissionDetect}},
		},
		Users: []SeedUser{
			{Email: "admin@example.com", Name: "Administrator", Password: "Admin@1234", Role: models.RoleAdmin},
			{Email: "user01@example.com", Name: "User 01", Password: "User@1234", Role: models.RoleUser},
		},
	}
}

// SeedResult reports what Seed created and what already existed
type SeedResult struct {
	CreatedRoles []string
	CreatedUsers []string
	SkippedUsers []string
}

// Seed creates missing roles and users. Existing rows are left untouched.
func Seed(ctx context.Context, repo *Repository, opts SeedOptions) (*SeedResult, error) {
	result := &SeedResult{}
	roleIDs := make(map[string]int64, len(opts.Roles))

	for _, role := range opts.Roles {
		existing, err := repo.GetRoleByName(ctx, role.Name)
		switch {
		case err == nil:
			roleIDs[role.Name] = existing.ID
			continue
		case !errors.Is(err, ErrNotFound):
			return nil, fmt.Errorf("looking up role %s: %w", role.Name, err)
		}

		r := *role
		if err := repo.CreateRole(ctx, &r); err != nil {
			return nil, fmt.Errorf("creating role %s: %w", role.Name, err)
		}
		roleIDs[r.Name] = r.ID
		result.CreatedRoles = append(result.CreatedRoles, r.Name)
	}

	for _, su := range opts.Users {
		_, err := repo.GetUserByEmail(ctx, su.Email)
		switch {
		case err == nil:
			result.SkippedUsers = append(result.SkippedUsers, su.Email)
			continue
		case !errors.Is(err, ErrNotFound):
			return nil, fmt.Errorf("looking up user %s: %w", su.Email, err)
		}

		roleID, ok := roleIDs[su.Role]
		if !ok {
			return nil, fmt.Errorf("user %s references unknown role %s", su.Email, su.Role)
		}

		user := &models.User{Email: su.Email, Name: su.Name, Active: true, RoleID: roleID}
		if err := user.SetPassword(su.Password); err != nil {
			return nil, fmt.Errorf("hashing password for %s: %w", su.Email, err)
		}
		if err := repo.CreateUser(ctx, user); err != nil {
			return nil, fmt.Errorf("creating user %s: %w", su.Email, err)
		}
		result.CreatedUsers = append(result.CreatedUsers, user.Email)
	}

	return result, nil
}
