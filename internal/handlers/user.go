package handlers

import (
	"context"
	"errors"
	"net/http"

	"match-call-backend/internal/middleware"
	"match-call-backend/internal/models"
	"match-call-backend/internal/services"
	"match-call-backend/internal/validation"

	"github.com/rs/zerolog/log"
)

// AccountService is what the user handler needs from the user service
type AccountService interface {
	Register(ctx context.Context, username, email, password string) (*models.User, *services.TokenPair, error)
	Login(ctx context.Context, username, password string) (*services.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*services.TokenPair, error)
	GetUser(ctx context.Context, userID string) (*models.User, error)
}

// UserHandler handles account HTTP requests
type UserHandler struct {
	userService AccountService
}

// NewUserHandler creates a new user handler
func NewUserHandler(userService AccountService) *UserHandler {
	return &UserHandler{
		userService: userService,
	}
}

// RegisterRequest is the body of POST /api/v1/auth/register
type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=3,max=32,alphanum"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// LoginRequest is the body of POST /api/v1/auth/login
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// RefreshRequest is the body of POST /api/v1/auth/refresh
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// RegisterResponse is returned on successful registration
type RegisterResponse struct {
	User *models.User `json:"user"`
	*services.TokenPair
}

// Register handles POST /api/v1/auth/register
func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := validation.Struct(&req); err != nil {
		respondValidation(w, err)
		return
	}

	user, tokens, err := h.userService.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrUserExists) {
			respondError(w, "Username or email already taken", http.StatusConflict)
			return
		}
		log.Error().Err(err).Str("username", req.Username).Msg("Failed to register user")
		respondError(w, "Failed to register user", http.StatusInternalServerError)
		return
	}

	log.Info().
		Str("user_id", user.ID).
		Str("username", user.Username).
		Msg("User registered")

	respondJSON(w, http.StatusCreated, RegisterResponse{User: user, TokenPair: tokens})
}

// Login handles POST /api/v1/auth/login
func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := validation.Struct(&req); err != nil {
		respondValidation(w, err)
		return
	}

	tokens, err := h.userService.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			respondError(w, "Invalid username or password", http.StatusUnauthorized)
			return
		}
		log.Error().Err(err).Str("username", req.Username).Msg("Failed to log in")
		respondError(w, "Failed to log in", http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, tokens)
}

// Refresh handles POST /api/v1/auth/refresh
func (h *UserHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := validation.Struct(&req); err != nil {
		respondValidation(w, err)
		return
	}

	tokens, err := h.userService.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, services.ErrInvalidToken) || errors.Is(err, services.ErrUserNotFound) {
			respondError(w, "Invalid refresh token", http.StatusUnauthorized)
			return
		}
		log.Error().Err(err).Msg("Failed to refresh token")
		respondError(w, "Failed to refresh token", http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, tokens)
}

// Me handles GET /api/v1/users/me
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	user, err := h.userService.GetUser(r.Context(), userID)
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			respondError(w, "User not found", http.StatusNotFound)
			return
		}
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to get user")
		respondError(w, "Failed to get user", http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, user)
}
