package handlers

import (
	"context"
	"net/http"

	"match-call-backend/internal/middleware"
	"match-call-backend/internal/services"
	"match-call-backend/internal/validation"

	"github.com/rs/zerolog/log"
)

// PhotoUploader presigns profile photo uploads
type PhotoUploader interface {
	UploadURL(ctx context.Context, userID, contentType string) (*services.UploadResponse, error)
}

// PhotoHandler handles profile photo uploads
type PhotoHandler struct {
	photoService PhotoUploader
}

// NewPhotoHandler creates a new photo handler
func NewPhotoHandler(photoService PhotoUploader) *PhotoHandler {
	return &PhotoHandler{
		photoService: photoService,
	}
}

// UploadRequest represents a request to get a pre-signed URL
type UploadRequest struct {
	ContentType string `json:"content_type" validate:"omitempty,oneof=image/jpeg image/png image/webp"`
}

// UploadPhoto handles POST /api/v1/profile/photos/upload
func (h *PhotoHandler) UploadPhoto(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req UploadRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := validation.Struct(&req); err != nil {
		respondValidation(w, err)
		return
	}

	if req.ContentType == "" {
		req.ContentType = "image/jpeg"
	}

	response, err := h.photoService.UploadURL(ctx, userID, req.ContentType)
	if err != nil {
		log.Error().
			Err(err).
			Str("user_id", userID).
			Msg("Failed to generate pre-signed URL")
		respondError(w, "Photo storage unavailable", http.StatusServiceUnavailable)
		return
	}

	log.Info().
		Str("user_id", userID).
		Str("key", response.Key).
		Msg("Pre-signed URL generated")

	respondJSON(w, http.StatusOK, response)
}
