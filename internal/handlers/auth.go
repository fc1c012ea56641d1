package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/truck-inspection/internal/auth"
	"github.com/ukydev/truck-inspection/internal/db"
	"github.com/ukydev/truck-inspection/internal/middleware"
	"github.com/ukydev/truck-inspection/internal/models"
)

// AuthHandler handles authentication requests
type AuthHandler struct {
	authService    *auth.Service
	userCollection db.UserCollection
}

// NewAuthHandler creates a new authentication handler
func NewAuthHandler(authService *auth.Service, userCollection db.UserCollection) *AuthHandler {
	return &AuthHandler{
		authService:    authService,
		userCollection: userCollection,
	}
}

// Login handles user login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var loginReq models.LoginRequest
	if !readJSON(w, r, &loginReq) {
		return
	}
	if loginReq.Email == "" || loginReq.Password == "" {
		http.Error(w, "Email and password are required", http.StatusBadRequest)
		return
	}

	user, err := h.userCollection.FindUserByEmail(r.Context(), loginReq.Email)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		writeError(w, err)
		return
	}

	response, err := h.authService.Login(user, loginReq.Password)
	switch {
	case errors.Is(err, auth.ErrUserInactive):
		http.Error(w, "Account is deactivated", http.StatusUnauthorized)
		return
	case errors.Is(err, auth.ErrInvalidCredentials):
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	case err != nil:
		writeError(w, err)
		return
	}

	if err := h.userCollection.UpdateLastLogin(r.Context(), user.ID.Hex()); err != nil {
		log.WithError(err).WithField("user_id", user.ID.Hex()).Warn("failed to update last login")
	}
	writeJSON(w, http.StatusOK, response)
}

// Register creates a dashboard account. Only administrators reach it.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var registerReq models.RegisterRequest
	if !readJSON(w, r, &registerReq) {
		return
	}

	if err := h.authService.ValidateEmail(registerReq.Email); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.authService.ValidatePassword(registerReq.Password); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if registerReq.Role == "" {
		registerReq.Role = models.RoleInspector
	}
	if !models.IsValidRole(registerReq.Role) {
		http.Error(w, "Invalid role", http.StatusBadRequest)
		return
	}

	_, err := h.userCollection.FindUserByEmail(r.Context(), registerReq.Email)
	switch {
	case err == nil:
		http.Error(w, "Email already exists", http.StatusConflict)
		return
	case !errors.Is(err, db.ErrNotFound):
		writeError(w, err)
		return
	}

	user, err := createUser(r.Context(), h.authService, h.userCollection, registerReq)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

// GetProfile returns the current user's profile
func (h *AuthHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		http.Error(w, "User context not found", http.StatusUnauthorized)
		return
	}

	user, err := h.userCollection.FindUserByID(r.Context(), claims.UserID)
	if err != nil {
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func createUser(ctx context.Context, svc *auth.Service, users db.UserCollection, req models.RegisterRequest) (*models.User, error) {
	hash, err := svc.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}
	user := models.User{
		Email:        strings.TrimSpace(req.Email),
		PasswordHash: hash,
		Role:         req.Role,
		Name:         strings.TrimSpace(req.Name),
		IsActive:     true,
	}
	id, err := users.InsertUser(ctx, user)
	if err != nil {
		return nil, err
	}
	return users.FindUserByID(ctx, id.Hex())
}

// SeedAdmin creates the administrator account when it does not exist yet.
func SeedAdmin(ctx context.Context, svc *auth.Service, users db.UserCollection, email, password string) error {
	if email == "" || password == "" {
		return nil
	}
	_, err := users.FindUserByEmail(ctx, email)
	switch {
	case err == nil:
		return nil
	case !errors.Is(err, db.ErrNotFound):
		return err
	}
	if err := svc.ValidatePassword(password); err != nil {
		return err
	}
	user, err := createUser(ctx, svc, users, models.RegisterRequest{Email: email, Password: password, Name: "Administrator", Role: models.RoleAdmin})
	if err != nil {
		return err
	}
	log.WithField("email", user.Email).Info("administrator account created")
	return nil
}
