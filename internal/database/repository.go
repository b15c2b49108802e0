package database

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/therealutkarshpriyadarshi/tooldetect/pkg/models"
)

// Repository provides database operations
type Repository struct {
	db DBInterface
}

// NewRepository creates a new repository
func NewRepository(db DBInterface) *Repository {
	return &Repository{db: db}
}

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

// Users

// userRow is a user joined with its role
type userRow struct {
	models.User
	RoleName        string   `db:"role_name"`
	RoleDescription string   `db:"role_description"`
	RolePermissions []string `db:"role_permissions"`
}

func (r userRow) toModel() *models.User {
	u := r.User
	if r.RoleName != "" {
		u.Role = &models.Role{
			ID:          u.RoleID,
			Name:        r.RoleName,
			Description: r.RoleDescription,
			Permissions: r.RolePermissions,
		}
	}
	return &u
}

func selectUsers() squirrel.SelectBuilder {
	return psql.Select(
		"u.id", "u.email", "u.name", "u.password_hash", "u.active", "u.role_id",
		"u.created_at", "u.updated_at",
		"COALESCE(r.name, '') AS role_name",
		"COALESCE(r.description, '') AS role_description",
		"COALESCE((SELECT array_agg(rp.permission_code ORDER BY rp.permission_code) "+
			"FROM role_permissions rp WHERE rp.role_id = u.role_id), '{}') AS role_permissions",
	).
		From("users u").
		LeftJoin("roles r ON r.id = u.role_id")
}

func (r *Repository) getUser(ctx context.Context, where squirrel.Sqlizer) (*models.User, error) {
	query, args, err := selectUsers().Where(where).ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select query: %w", err)
	}

	var row userRow
	if err := pgxscan.Get(ctx, r.db, &row, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning user: %w", err)
	}
	return row.toModel(), nil
}

// GetUserByID retrieves a user with its role
func (r *Repository) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	return r.getUser(ctx, squirrel.Eq{"u.id": id})
}

// GetUserByEmail retrieves a user by normalized email
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getUser(ctx, squirrel.Eq{"u.email": models.NormalizeEmail(email)})
}

// ListUsers retrieves all users ordered by id
func (r *Repository) ListUsers(ctx context.Context) ([]*models.User, error) {
	query, args, err := selectUsers().OrderBy("u.id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select query: %w", err)
	}

	var rows []userRow
	if err := pgxscan.Select(ctx, r.db, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("scanning users: %w", err)
	}

	users := make([]*models.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, row.toModel())
	}
	return users, nil
}

// CreateUser inserts a user and fills in its generated fields
func (r *Repository) CreateUser(ctx context.Context, user *models.User) error {
	user.Email = models.NormalizeEmail(user.Email)

	query, args, err := psql.Insert("users").
		Columns("email", "name", "password_hash", "active", "role_id").
		Values(user.Email, user.Name, user.PasswordHash, user.Active, user.RoleID).
		Suffix("RETURNING id, created_at, updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("building insert query: %w", err)
	}

	if err := r.db.QueryRow(ctx, query, args...).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt); err != nil {
		return fmt.Errorf("inserting user: %w", mapError(err))
	}
	return nil
}

// UpdateUser writes every mutable user field
func (r *Repository) UpdateUser(ctx context.Context, user *models.User) error {
	user.Email = models.NormalizeEmail(user.Email)

	query, args, err := psql.Update("users").
		Set("email", user.Email).
		Set("name", user.Name).
		Set("password_hash", user.PasswordHash).
		Set("active", user.Active).
		Set("role_id", user.RoleID).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": user.ID}).
		Suffix("RETURNING updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("building update query: %w", err)
	}

	if err := r.db.QueryRow(ctx, query, args...).Scan(&user.UpdatedAt); err != nil {
		return fmt.Errorf("updating user: %w", mapError(err))
	}
	return nil
}

// DeactivateUser clears the active flag. Users are never deleted.
func (r *Repository) DeactivateUser(ctx context.Context, id int64) error {
	query, args, err := psql.Update("users").
		Set("active", false).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building update query: %w", err)
	}

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("deactivating user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
