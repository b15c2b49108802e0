package main

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/therealutkarshpriyadarshi/tooldetect/internal/config"
	"github.com/therealutkarshpriyadarshi/tooldetect/internal/middleware"
	"github.com/therealutkarshpriyadarshi/tooldetect/pkg/models"
)

type testEnv struct {
	api     *API
	router  *gin.Engine
	repo    *MockRepo
	storage *MockStorage
	queue   *MockQueue
	cache   *MockCache
	prober  *MockProber
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	require.NoError(t, registerValidators())

	env := &testEnv{
		repo:    new(MockRepo),
		storage: new(MockStorage),
		queue:   new(MockQueue),
		cache:   new(MockCache),
		prober:  new(MockProber),
	}

	cfg := &config.Config{
		Upload: config.UploadConfig{
			MaxSize:           1024,
			AllowedExtensions: []string{".mp4", ".avi"},
		},
		Detector: config.DetectorConfig{TempDir: t.TempDir()},
		Cache:    config.CacheConfig{ReportTTL: time.Minute},
		Storage:  config.StorageConfig{PresignExpiry: time.Hour},
	}

	env.api = &API{
		repo:    env.repo,
		storage: env.storage,
		queue:   env.queue,
		cache:   env.cache,
		prober:  env.prober,
		auth:    middleware.NewAuthenticator("test-secret", time.Hour, env.repo, nil),
		cfg:     cfg,
	}
	env.router = setupRouter(env.api)
	return env
}

func adminUser() *models.User {
	return &models.User{
		ID:     1,
		Email:  "admin@example.com",
		Name:   "Administrator",
		Active: true,
		RoleID: 1,
		Role:   &models.Role{ID: 1, Name: models.RoleAdmin, Permissions: []string{models.PermissionAll}},
	}
}

func regularUser() *models.User {
	return &models.User{
		ID:     2,
		Email:  "user01@example.com",
		Name:   "User 01",
		Active: true,
		RoleID: 2,
		Role: &models.Role{ID: 2, Name: models.RoleUser,
			Permissions: []string{models.PermissionView, models.PermissionDetect}},
	}
}

// tokenFor returns a bearer header for user and expects the auth lookup
func (e *testEnv) tokenFor(t *testing.T, user *models.User) string {
	t.Helper()
	token, _, err := e.api.auth.GenerateToken(user)
	require.NoError(t, err)
	e.repo.On("GetUserByID", mock.Anything, user.ID).Return(user, nil)
	return "Bearer " + token
}

func (e *testEnv) do(method, path, auth string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}
