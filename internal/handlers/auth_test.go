package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/ukydev/truck-inspection/internal/auth"
	"github.com/ukydev/truck-inspection/internal/db"
	"github.com/ukydev/truck-inspection/internal/middleware"
	"github.com/ukydev/truck-inspection/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MockUserCollection is a mock implementation of UserCollection
type MockUserCollection struct {
	mock.Mock
}

func (m *MockUserCollection) InsertUser(ctx context.Context, user models.User) (primitive.ObjectID, error) {
	args := m.Called(ctx, user)
	return args.Get(0).(primitive.ObjectID), args.Error(1)
}

func (m *MockUserCollection) FindUserByID(ctx context.Context, id string) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserCollection) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserCollection) UpdateUser(ctx context.Context, id string, user models.User) error {
	args := m.Called(ctx, id, user)
	return args.Error(0)
}

func (m *MockUserCollection) UpdateLastLogin(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func loginRequest(t *testing.T, email, password string) *http.Request {
	t.Helper()
	body, err := json.Marshal(models.LoginRequest{Email: email, Password: password})
	if err != nil {
		t.Fatalf("Failed to marshal login request: %v", err)
	}
	return httptest.NewRequest("POST", "/api/auth/login", bytes.NewBuffer(body))
}

func TestAuthHandler_Login(t *testing.T) {
	authService := auth.NewService("test-secret", time.Hour)
	passwordHash, err := authService.HashPassword("password123")
	if err != nil {
		t.Fatalf("Failed to hash password: %v", err)
	}

	t.Run("successful login", func(t *testing.T) {
		mockUserCollection := new(MockUserCollection)
		handler := NewAuthHandler(authService, db.UserCollection(mockUserCollection))
		user := &models.User{
			ID:           primitive.NewObjectID(),
			Email:        "test@example.com",
			PasswordHash: passwordHash,
			Role:         models.RoleInspector,
			IsActive:     true,
		}
		mockUserCollection.On("FindUserByEmail", mock.Anything, "test@example.com").Return(user, nil)
		mockUserCollection.On("UpdateLastLogin", mock.Anything, user.ID.Hex()).Return(nil)

		w := httptest.NewRecorder()
		handler.Login(w, loginRequest(t, "test@example.com", "password123"))

		assert.Equal(t, http.StatusOK, w.Code)
		var response models.LoginResponse
		if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
			t.Fatalf("Failed to unmarshal response: %v", err)
		}
		assert.NotEmpty(t, response.Token)
		assert.NotEmpty(t, response.RefreshToken)
		assert.Equal(t, user.Email, response.User.Email)
		mockUserCollection.AssertExpectations(t)
	})

	t.Run("last login failure is not fatal", func(t *testing.T) {
		mockUserCollection := new(MockUserCollection)
		handler := NewAuthHandler(authService, db.UserCollection(mockUserCollection))
		user := &models.User{ID: primitive.NewObjectID(), Email: "test@example.com", PasswordHash: passwordHash, IsActive: true}
		mockUserCollection.On("FindUserByEmail", mock.Anything, "test@example.com").Return(user, nil)
		mockUserCollection.On("UpdateLastLogin", mock.Anything, user.ID.Hex()).Return(assert.AnError)

		w := httptest.NewRecorder()
		handler.Login(w, loginRequest(t, "test@example.com", "password123"))
		assert.Equal(t, http.StatusOK, w.Code)
		mockUserCollection.AssertExpectations(t)
	})

	t.Run("unknown user", func(t *testing.T) {
		mockUserCollection := new(MockUserCollection)
		handler := NewAuthHandler(authService, db.UserCollection(mockUserCollection))
		mockUserCollection.On("FindUserByEmail", mock.Anything, "ghost@example.com").Return(nil, db.ErrNotFound)

		w := httptest.NewRecorder()
		handler.Login(w, loginRequest(t, "ghost@example.com", "password123"))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		mockUserCollection.AssertExpectations(t)
	})

	t.Run("store failure", func(t *testing.T) {
		mockUserCollection := new(MockUserCollection)
		handler := NewAuthHandler(authService, db.UserCollection(mockUserCollection))
		mockUserCollection.On("FindUserByEmail", mock.Anything, "test@example.com").Return(nil, assert.AnError)

		w := httptest.NewRecorder()
		handler.Login(w, loginRequest(t, "test@example.com", "password123"))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		mockUserCollection.AssertExpectations(t)
	})

	t.Run("inactive user", func(t *testing.T) {
		mockUserCollection := new(MockUserCollection)
		handler := NewAuthHandler(authService, db.UserCollection(mockUserCollection))
		user := &models.User{ID: primitive.NewObjectID(), Email: "test@example.com", PasswordHash: passwordHash, IsActive: false}
		mockUserCollection.On("FindUserByEmail", mock.Anything, "test@example.com").Return(user, nil)

		w := httptest.NewRecorder()
		handler.Login(w, loginRequest(t, "test@example.com", "password123"))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		mockUserCollection.AssertExpectations(t)
	})
}

func TestAuthHandler_Register_DefaultsToInspector(t *testing.T) {
	authService := auth.NewService("test-secret", time.Hour)
	mockUserCollection := new(MockUserCollection)
	handler := NewAuthHandler(authService, db.UserCollection(mockUserCollection))

	id := primitive.NewObjectID()
	mockUserCollection.On("FindUserByEmail", mock.Anything, "new@example.com").Return(nil, db.ErrNotFound)
	mockUserCollection.On("InsertUser", mock.Anything, mock.MatchedBy(func(u models.User) bool {
		return u.Email == "new@example.com" && u.Role == models.RoleInspector && authService.CheckPassword("password123", u.PasswordHash)
	})).Return(id, nil)
	mockUserCollection.On("FindUserByID", mock.Anything, id.Hex()).Return(&models.User{ID: id, Email: "new@example.com", Role: models.RoleInspector}, nil)

	body, _ := json.Marshal(models.RegisterRequest{Email: "new@example.com", Password: "password123", Name: "New"})
	w := httptest.NewRecorder()
	handler.Register(w, httptest.NewRequest("POST", "/api/auth/register", bytes.NewBuffer(body)))

	assert.Equal(t, http.StatusCreated, w.Code)
	mockUserCollection.AssertExpectations(t)
}

func TestAuthHandler_GetProfile(t *testing.T) {
	authService := auth.NewService("test-secret", time.Hour)
	mockUserCollection := new(MockUserCollection)
	handler := NewAuthHandler(authService, db.UserCollection(mockUserCollection))

	w := httptest.NewRecorder()
	handler.GetProfile(w, httptest.NewRequest("GET", "/api/auth/profile", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	claims := &models.Claims{UserID: primitive.NewObjectID().Hex(), Email: "gone@example.com", Role: models.RoleViewer}
	mockUserCollection.On("FindUserByID", mock.Anything, claims.UserID).Return(nil, db.ErrNotFound)
	req := httptest.NewRequest("GET", "/api/auth/profile", nil)
	req = req.WithContext(context.WithValue(req.Context(), middleware.UserContextKey, claims))
	w = httptest.NewRecorder()
	handler.GetProfile(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
