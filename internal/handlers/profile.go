package handlers

import (
	"context"
	"errors"
	"net/http"

	"match-call-backend/internal/middleware"
	"match-call-backend/internal/models"
	"match-call-backend/internal/services"

	"github.com/rs/zerolog/log"
)

// ProfileManager reads and writes the current user's profile
type ProfileManager interface {
	GetOwnProfile(ctx context.Context, userID string) (*models.Profile, error)
	UpdateProfile(ctx context.Context, userID string, p models.Profile) (*models.Profile, error)
}

// ProfileHandler handles profile HTTP requests
type ProfileHandler struct {
	profileService ProfileManager
}

// NewProfileHandler creates a new profile handler
func NewProfileHandler(profileService ProfileManager) *ProfileHandler {
	return &ProfileHandler{profileService: profileService}
}

// GetProfile handles GET /api/v1/profile/me
func (h *ProfileHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	profile, err := h.profileService.GetOwnProfile(ctx, userID)
	if err != nil {
		if errors.Is(err, services.ErrProfileNotFound) {
			respondError(w, "Profile not found", http.StatusNotFound)
			return
		}
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to get profile")
		respondError(w, "Failed to get profile", http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, profile)
}

// UpdateProfile handles PUT /api/v1/profile/me
func (h *ProfileHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req models.Profile
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	profile, err := h.profileService.UpdateProfile(ctx, userID, req)
	if err != nil {
		if respondValidation(w, err) {
			return
		}
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to update profile")
		respondError(w, "Failed to update profile", http.StatusInternalServerError)
		return
	}

	log.Info().Str("user_id", userID).Msg("Profile updated")
	respondJSON(w, http.StatusOK, profile)
}
