package database

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/therealutkarshpriyadarshi/tooldetect/pkg/models"
)

func selectRoles() squirrel.SelectBuilder {
	return psql.Select(
		"r.id", "r.name", "r.description", "r.created_at", "r.updated_at",
		"COALESCE(array_agg(rp.permission_code ORDER BY rp.permission_code) "+
			"FILTER (WHERE rp.permission_code IS NOT NULL), '{}') AS permissions",
	).
		From("roles r").
		LeftJoin("role_permissions rp ON rp.role_id = r.id").
		GroupBy("r.id")
}

func (r *Repository) getRole(ctx context.Context, where squirrel.Sqlizer) (*models.Role, error) {
	query, args, err := selectRoles().Where(where).ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select query: %w", err)
	}

	var role models.Role
	if err := pgxscan.Get(ctx, r.db, &role, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning role: %w", err)
	}
	return &role, nil
}

// GetRole retrieves a role with its permission set
func (r *Repository) GetRole(ctx context.Context, id int64) (*models.Role, error) {
	return r.getRole(ctx, squirrel.Eq{"r.id": id})
}

// GetRoleByName retrieves a role by its unique name
func (r *Repository) GetRoleByName(ctx context.Context, name string) (*models.Role, error) {
	return r.getRole(ctx, squirrel.Eq{"r.name": name})
}

// ListRoles retrieves all roles ordered by id
func (r *Repository) ListRoles(ctx context.Context) ([]*models.Role, error) {
	query, args, err := selectRoles().OrderBy("r.id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select query: %w", err)
	}

	var roles []*models.Role
	if err := pgxscan.Select(ctx, r.db, &roles, query, args...); err != nil {
		return nil, fmt.Errorf("scanning roles: %w", err)
	}
	return roles, nil
}

// ListPermissions returns the permission catalogue
func (r *Repository) ListPermissions(ctx context.Context) ([]*models.Permission, error) {
	query, args, err := psql.Select("code", "description").
		From("permissions").
		OrderBy("code").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select query: %w", err)
	}

	var perms []*models.Permission
	if err := pgxscan.Select(ctx, r.db, &perms, query, args...); err != nil {
		return nil, fmt.Errorf("scanning permissions: %w", err)
	}
	return perms, nil
}

// CreateRole inserts a role and its permission set in one transaction
func (r *Repository) CreateRole(ctx context.Context, role *models.Role) (err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	query, args, err := psql.Insert("roles").
		Columns("name", "description").
		Values(role.Name, role.Description).
		Suffix("RETURNING id, created_at, updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("building insert query: %w", err)
	}
	if err = tx.QueryRow(ctx, query, args...).Scan(&role.ID, &role.CreatedAt, &role.UpdatedAt); err != nil {
		return fmt.Errorf("inserting role: %w", mapError(err))
	}

	if err = insertRolePermissions(ctx, tx, role.ID, role.Permissions); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing role: %w", err)
	}
	return nil
}

// UpdateRole updates name and description and replaces the permission set
func (r *Repository) UpdateRole(ctx context.Context, role *models.Role) (err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	query, args, err := psql.Update("roles").
		Set("name", role.Name).
		Set("description", role.Description).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": role.ID}).
		Suffix("RETURNING created_at, updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("building update query: %w", err)
	}
	if err = tx.QueryRow(ctx, query, args...).Scan(&role.CreatedAt, &role.UpdatedAt); err != nil {
		return fmt.Errorf("updating role: %w", mapError(err))
	}

	query, args, err = psql.Delete("role_permissions").
		Where(squirrel.Eq{"role_id": role.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building delete query: %w", err)
	}
	if _, err = tx.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("clearing role permissions: %w", err)
	}

	if err = insertRolePermissions(ctx, tx, role.ID, role.Permissions); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing role: %w", err)
	}
	return nil
}

func insertRolePermissions(ctx context.Context, tx pgx.Tx, roleID int64, codes []string) error {
	if len(codes) == 0 {
		return nil
	}

	insert := psql.Insert("role_permissions").Columns("role_id", "permission_code")
	for _, code := range codes {
		insert = insert.Values(roleID, code)
	}
	query, args, err := insert.Suffix("ON CONFLICT DO NOTHING").ToSql()
	if err != nil {
		return fmt.Errorf("building insert query: %w", err)
	}
	if _, err := tx.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("inserting role permissions: %w", mapError(err))
	}
	return nil
}
