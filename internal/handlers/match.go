package handlers

import (
	"context"
	"errors"
	"net/http"

	"match-call-backend/internal/middleware"
	"match-call-backend/internal/services"

	"github.com/rs/zerolog/log"
)

// MatchSubmitter is the front door of the matching engine
type MatchSubmitter interface {
	SubmitMatchRequest(ctx context.Context, userID string) (string, error)
	PoolSize(ctx context.Context) (int, error)
}

// MatchHandler handles match HTTP requests
type MatchHandler struct {
	matchService MatchSubmitter
}

// NewMatchHandler creates a new match handler
func NewMatchHandler(matchService MatchSubmitter) *MatchHandler {
	return &MatchHandler{matchService: matchService}
}

// MatchAccepted is returned once a request is on the request channel
type MatchAccepted struct {
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
}

// FindMatch handles POST /api/v1/match. The outcome arrives later as a
// match_found event on the user's live connection.
func (h *MatchHandler) FindMatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	requestID, err := h.matchService.SubmitMatchRequest(ctx, userID)
	if err != nil {
		writeSubmitError(w, userID, err)
		return
	}

	respondJSON(w, http.StatusAccepted, MatchAccepted{RequestID: requestID, Status: "searching"})
}

// PoolStatus handles GET /api/v1/match/pool
func (h *MatchHandler) PoolStatus(w http.ResponseWriter, r *http.Request) {
	size, err := h.matchService.PoolSize(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to read waiting pool size")
		respondError(w, "Waiting pool unavailable", http.StatusServiceUnavailable)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"waiting": size})
}

func writeSubmitError(w http.ResponseWriter, userID string, err error) {
	status := submitErrorStatus(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to submit match request")
	}
	respondError(w, submitErrorMessage(err), status)
}

func submitErrorStatus(err error) int {
	switch {
	case errors.Is(err, services.ErrProfileNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrTransportUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func submitErrorMessage(err error) string {
	switch {
	case errors.Is(err, services.ErrProfileNotFound):
		return "Profile not found"
	case errors.Is(err, services.ErrTransportUnavailable):
		return "Matching is temporarily unavailable"
	default:
		return "Failed to submit match request"
	}
}
