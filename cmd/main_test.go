package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/truck-inspection/internal/config"
	"github.com/ukydev/truck-inspection/internal/draft"
	"github.com/ukydev/truck-inspection/internal/events"
	"github.com/ukydev/truck-inspection/internal/models"
)

func memoryConfig(t *testing.T) *config.Config {
	return &config.Config{
		StoreBackend:     "memory",
		DraftBackend:     "sqlite",
		DraftSQLitePath:  filepath.Join(t.TempDir(), "drafts.db"),
		DraftPrefix:      "draft",
		InspectionBudget: 10 * time.Minute,
		JWTSecret:        "test-secret",
		JWTExpiry:        time.Hour,
		AdminEmail:       "admin@example.com",
		AdminPassword:    "admin-password",
	}
}

func TestBuild_MemoryStoreServesAPI(t *testing.T) {
	srv, err := build(context.Background(), memoryConfig(t))
	require.NoError(t, err)
	defer srv.close()

	w := httptest.NewRecorder()
	srv.handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	srv.handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/catalog", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"exterior"`)

	w = httptest.NewRecorder()
	body := strings.NewReader(`{"email":"admin@example.com","password":"admin-password"}`)
	srv.handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/auth/login", body))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp models.LoginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, models.RoleAdmin, resp.User.Role)
}

func TestBuild_RejectsWeakAdminPassword(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.AdminPassword = "short"
	_, err := build(context.Background(), cfg)
	assert.Error(t, err)
}

func TestBuild_BadMongoURI(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.StoreBackend = "mongo"
	cfg.MongoURI = "not-a-uri"
	_, err := build(context.Background(), cfg)
	assert.Error(t, err)
}

func TestOpenDrafts(t *testing.T) {
	cfg := memoryConfig(t)

	cfg.DraftBackend = "memory"
	b, err := openDrafts(cfg)
	require.NoError(t, err)
	assert.IsType(t, &draft.MemoryBackend{}, b)

	cfg.DraftBackend = "sqlite"
	b, err = openDrafts(cfg)
	require.NoError(t, err)
	assert.IsType(t, &draft.SQLiteBackend{}, b)
	require.NoError(t, b.Close())

	cfg.DraftBackend = "redis"
	cfg.RedisAddr = ""
	_, err = openDrafts(cfg)
	assert.Error(t, err)
}

func TestOpenPublisher_DisabledWithoutBroker(t *testing.T) {
	cfg := memoryConfig(t)
	assert.Equal(t, events.NopPublisher{}, openPublisher(cfg))
}
