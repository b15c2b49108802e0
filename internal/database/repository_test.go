package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/therealutkarshpriyadarshi/tooldetect/pkg/models"
)

var userCols = []string{
	"id", "email", "name", "password_hash", "active", "role_id", "created_at", "updated_at",
	"role_name", "role_description", "role_permissions",
}

var roleCols = []string{"id", "name", "description", "created_at", "updated_at", "permissions"}

func newMockRepo(t *testing.T) (*Repository, pgxmock.PgxPoolIface) {
	t.Helper()
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)
	return NewRepository(mockPool), mockPool
}

func TestRepository_GetUserByEmail(t *testing.T) {
	t.Run("Should load user with role and permissions", func(t *testing.T) {
		repo, mockPool := newMockRepo(t)
		now := time.Now()

		rows := mockPool.NewRows(userCols).
			AddRow(int64(1), "admin@example.com", "Administrator", "hash", true, int64(1), now, now,
				"admin", "Full administration", []string{"all"})
		mockPool.ExpectQuery("SELECT (.+) FROM users u LEFT JOIN roles r").
			WithArgs("admin@example.com").
			WillReturnRows(rows)

		user, err := repo.GetUserByEmail(context.Background(), "  Admin@Example.COM ")
		require.NoError(t, err)
		assert.Equal(t, int64(1), user.ID)
		require.NotNil(t, user.Role)
		assert.Equal(t, "admin", user.Role.Name)
		assert.True(t, user.HasPermission(models.PermissionDetect))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("Should return ErrNotFound for unknown email", func(t *testing.T) {
		repo, mockPool := newMockRepo(t)

		mockPool.ExpectQuery("SELECT (.+) FROM users u").
			WithArgs("nobody@example.com").
			WillReturnRows(mockPool.NewRows(userCols))

		_, err := repo.GetUserByEmail(context.Background(), "nobody@example.com")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestRepository_CreateUser(t *testing.T) {
	t.Run("Should insert user with normalized email", func(t *testing.T) {
		repo, mockPool := newMockRepo(t)
		now := time.Now()

		mockPool.ExpectQuery("INSERT INTO users").
			WithArgs("new@example.com", "New User", "hash", true, int64(2)).
			WillReturnRows(mockPool.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(int64(9), now, now))

		user := &models.User{Email: "New@Example.com", Name: "New User", PasswordHash: "hash", Active: true, RoleID: 2}
		require.NoError(t, repo.CreateUser(context.Background(), user))
		assert.Equal(t, int64(9), user.ID)
		assert.Equal(t, "new@example.com", user.Email)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("Should map unique violation to ErrDuplicate", func(t *testing.T) {
		repo, mockPool := newMockRepo(t)

		mockPool.ExpectQuery("INSERT INTO users").
			WithArgs("dup@example.com", "Dup", "hash", true, int64(2)).
			WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "users_email_key"})

		user := &models.User{Email: "dup@example.com", Name: "Dup", PasswordHash: "hash", Active: true, RoleID: 2}
		err := repo.CreateUser(context.Background(), user)
		assert.ErrorIs(t, err, ErrDuplicate)
	})

	t.Run("Should map foreign key violation to ErrInvalidReference", func(t *testing.T) {
		repo, mockPool := newMockRepo(t)

		mockPool.ExpectQuery("INSERT INTO users").
			WithArgs("x@example.com", "X", "hash", true, int64(99)).
			WillReturnError(&pgconn.PgError{Code: "23503", ConstraintName: "users_role_id_fkey"})

		user := &models.User{Email: "x@example.com", Name: "X", PasswordHash: "hash", Active: true, RoleID: 99}
		err := repo.CreateUser(context.Background(), user)
		assert.ErrorIs(t, err, ErrInvalidReference)
	})
}

func TestRepository_DeactivateUser(t *testing.T) {
	t.Run("Should clear active flag", func(t *testing.T) {
		repo, mockPool := newMockRepo(t)

		mockPool.ExpectExec("UPDATE users SET active").
			WithArgs(false, int64(5)).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		assert.NoError(t, repo.DeactivateUser(context.Background(), 5))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("Should return ErrNotFound when no row matches", func(t *testing.T) {
		repo, mockPool := newMockRepo(t)

		mockPool.ExpectExec("UPDATE users SET active").
			WithArgs(false, int64(5)).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		assert.ErrorIs(t, repo.DeactivateUser(context.Background(), 5), ErrNotFound)
	})
}

func TestRepository_UpdateRole(t *testing.T) {
	t.Run("Should replace permission set in a transaction", func(t *testing.T) {
		repo, mockPool := newMockRepo(t)
		now := time.Now()

		mockPool.ExpectBegin()
		mockPool.ExpectQuery("UPDATE roles").
			WithArgs("operators", "Shop floor", int64(3)).
			WillReturnRows(mockPool.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
		mockPool.ExpectExec("DELETE FROM role_permissions").
			WithArgs(int64(3)).
			WillReturnResult(pgxmock.NewResult("DELETE", 1))
		mockPool.ExpectExec("INSERT INTO role_permissions").
			WithArgs(int64(3), "view", int64(3), "detect").
			WillReturnResult(pgxmock.NewResult("INSERT", 2))
		mockPool.ExpectCommit()

		role := &models.Role{ID: 3, Name: "operators", Description: "Shop floor", Permissions: []string{"view", "detect"}}
		require.NoError(t, repo.UpdateRole(context.Background(), role))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("Should roll back on unknown permission", func(t *testing.T) {
		repo, mockPool := newMockRepo(t)
		now := time.Now()

		mockPool.ExpectBegin()
		mockPool.ExpectQuery("UPDATE roles").
			WithArgs("operators", "", int64(3)).
			WillReturnRows(mockPool.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
		mockPool.ExpectExec("DELETE FROM role_permissions").
			WithArgs(int64(3)).
			WillReturnResult(pgxmock.NewResult("DELETE", 1))
		mockPool.ExpectExec("INSERT INTO role_permissions").
			WithArgs(int64(3), "bogus").
			WillReturnError(&pgconn.PgError{Code: "23503"})
		mockPool.ExpectRollback()

		role := &models.Role{ID: 3, Name: "operators", Permissions: []string{"bogus"}}
		err := repo.UpdateRole(context.Background(), role)
		assert.ErrorIs(t, err, ErrInvalidReference)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("Should return ErrNotFound for missing role", func(t *testing.T) {
		repo, mockPool := newMockRepo(t)

		mockPool.ExpectBegin()
		mockPool.ExpectQuery("UPDATE roles").
			WithArgs("ghost", "", int64(42)).
			WillReturnRows(mockPool.NewRows([]string{"created_at", "updated_at"}))
		mockPool.ExpectRollback()

		err := repo.UpdateRole(context.Background(), &models.Role{ID: 42, Name: "ghost"})
		assert.ErrorIs(t, err, ErrNotFound)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestRepository_ListRoles(t *testing.T) {
	repo, mockPool := newMockRepo(t)
	now := time.Now()

	rows := mockPool.NewRows(roleCols).
		AddRow(int64(1), "admin", "Full administration", now, now, []string{"all"}).
		AddRow(int64(2), "user", "User access", now, now, []string{"detect", "view"})
	mockPool.ExpectQuery("SELECT (.+) FROM roles r LEFT JOIN role_permissions rp").
		WillReturnRows(rows)

	roles, err := repo.ListRoles(context.Background())
	require.NoError(t, err)
	require.Len(t, roles, 2)
	assert.Equal(t, []string{"detect", "view"}, roles[1].Permissions)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestRepository_ListDetections(t *testing.T) {
	repo, mockPool := newMockRepo(t)
	now := time.Now()

	mockPool.ExpectQuery("SELECT COUNT\\(\\*\\) FROM detections").
		WithArgs(int64(2)).
		WillReturnRows(mockPool.NewRows([]string{"count"}).AddRow(int64(1)))
	mockPool.ExpectQuery("SELECT (.+) FROM detections WHERE (.+) ORDER BY created_at DESC, id DESC LIMIT 10").
		WithArgs(int64(2)).
		WillReturnRows(mockPool.NewRows(detectionColumns).
			AddRow(int64(4), int64(2), "job-1", 1, 0, 0, 1, 0, 0, 0, 250, now))

	detections, total, err := repo.ListDetections(context.Background(), DetectionFilter{UserID: 2, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, detections, 1)
	assert.Equal(t, 2, detections[0].Total())
	assert.Equal(t, 250, detections[0].FramesProcessed)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestRepository_CreateDetection(t *testing.T) {
	repo, mockPool := newMockRepo(t)
	now := time.Now()

	mockPool.ExpectQuery("INSERT INTO detections (.+) ON CONFLICT \\(job_id\\) DO UPDATE SET (.+) RETURNING id, created_at").
		WithArgs(int64(2), "job-1", 1, 0, 0, 0, 0, 1, 0, 30).
		WillReturnRows(mockPool.NewRows([]string{"id", "created_at"}).AddRow(int64(11), now))

	d := models.NewDetection(2, "job-1", models.ClassCounts{"drill": 1, "tape-measure": 1}, 30)
	require.NoError(t, repo.CreateDetection(context.Background(), d))
	assert.Equal(t, int64(11), d.ID)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestRepository_UpdateJob(t *testing.T) {
	repo, mockPool := newMockRepo(t)

	mockPool.ExpectExec("UPDATE detection_jobs").
		WithArgs(models.JobStatusFailed, 0.0, 0, "boom", pgxmock.AnyArg(), "", pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), "job-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	job := &models.DetectionJob{ID: "job-1", Status: models.JobStatusFailed, ErrorMsg: "boom"}
	assert.ErrorIs(t, repo.UpdateJob(context.Background(), job), ErrNotFound)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestRepository_ListStaleJobs(t *testing.T) {
	repo, mockPool := newMockRepo(t)
	now := time.Now()
	before := now.Add(-10 * time.Minute)

	mockPool.ExpectQuery("SELECT (.+) FROM detection_jobs WHERE status = \\$1 AND updated_at < \\$2 ORDER BY updated_at ASC LIMIT 50").
		WithArgs(models.JobStatusQueued, before).
		WillReturnRows(mockPool.NewRows(jobColumns).
			AddRow("job-1", int64(2), "clip.mp4", "uploads/job-1/clip.mp4", models.JobStatusQueued, 25.0, 0,
				"", nil, "", []byte("{}"), nil, nil, now.Add(-time.Hour), now.Add(-time.Hour)))

	jobs, err := repo.ListStaleJobs(context.Background(), models.JobStatusQueued, before, 50)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "job-1", jobs[0].ID)
	assert.Equal(t, int64(2), jobs[0].UserID)
	assert.Nil(t, jobs[0].DetectionID)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestSeed_Idempotent(t *testing.T) {
	repo, mockPool := newMockRepo(t)
	now := time.Now()

	mockPool.ExpectQuery("SELECT (.+) FROM roles r").
		WithArgs("admin").
		WillReturnRows(mockPool.NewRows(roleCols).AddRow(int64(1), "admin", "Full administration", now, now, []string{"all"}))
	mockPool.ExpectQuery("SELECT (.+) FROM roles r").
		WithArgs("user").
		WillReturnRows(mockPool.NewRows(roleCols).AddRow(int64(2), "user", "User access", now, now, []string{"detect", "view"}))
	mockPool.ExpectQuery("SELECT (.+) FROM users u").
		WithArgs("admin@example.com").
		WillReturnRows(mockPool.NewRows(userCols).
			AddRow(int64(1), "admin@example.com", "Administrator", "hash", true, int64(1), now, now, "admin", "", []string{"all"}))
	mockPool.ExpectQuery("SELECT (.+) FROM users u").
		WithArgs("user01@example.com").
		WillReturnRows(mockPool.NewRows(userCols))
	mockPool.ExpectQuery("INSERT INTO users").
		WithArgs("user01@example.com", "User 01", pgxmock.AnyArg(), true, int64(2)).
		WillReturnRows(mockPool.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(int64(2), now, now))

	result, err := Seed(context.Background(), repo, DefaultSeed())
	require.NoError(t, err)
	assert.Empty(t, result.CreatedRoles)
	assert.Equal(t, []string{"user01@example.com"}, result.CreatedUsers)
	assert.Equal(t, []string{"admin@example.com"}, result.SkippedUsers)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestMapError(t *testing.T) {
	assert.Nil(t, mapError(nil))
	other := errors.New("boom")
	assert.Equal(t, other, mapError(other))
	assert.ErrorIs(t, mapError(&pgconn.PgError{Code: "23505"}), ErrDuplicate)
}
