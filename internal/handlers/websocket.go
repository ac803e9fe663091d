package handlers

import (
	"context"
	"net/http"

	"match-call-backend/internal/middleware"
	"match-call-backend/internal/services"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const maxWSMessageSize = 4096

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Presence is the live connection table
type Presence interface {
	Register(userID string, conn services.Conn)
	Unregister(userID string, conn services.Conn)
	Notify(userID, event string, payload interface{}) (bool, error)
	SendError(userID, message string) error
}

// WebSocketHandler handles WebSocket connections
type WebSocketHandler struct {
	hub          Presence
	tokens       middleware.TokenValidator
	matchService MatchSubmitter
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(hub Presence, tokens middleware.TokenValidator, matchService MatchSubmitter) *WebSocketHandler {
	return &WebSocketHandler{
		hub:          hub,
		tokens:       tokens,
		matchService: matchService,
	}
}

// HandleWebSocket handles GET /ws?token=...
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		respondError(w, "token required", http.StatusUnauthorized)
		return
	}

	userID, err := h.tokens.ValidateJWT(token)
	if err != nil {
		respondError(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxWSMessageSize)

	h.hub.Register(userID, conn)
	defer h.hub.Unregister(userID, conn)

	ctx := r.Context()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Error().Err(err).Str("user_id", userID).Msg("WebSocket error")
			}
			return
		}

		var msg services.WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Warn().Err(err).Str("user_id", userID).Msg("Failed to parse WebSocket message")
			h.hub.SendError(userID, "Invalid message format")
			continue
		}

		h.handleMessage(ctx, userID, msg)
	}
}

func (h *WebSocketHandler) handleMessage(ctx context.Context, userID string, msg services.WSMessage) {
	switch msg.Type {
	case "register":
		// already registered on upgrade
	case "find_match":
		requestID, err := h.matchService.SubmitMatchRequest(ctx, userID)
		if err != nil {
			log.Warn().Err(err).Str("user_id", userID).Msg("find_match rejected")
			h.hub.SendError(userID, submitErrorMessage(err))
			return
		}
		if _, err := h.hub.Notify(userID, services.EventMatchRequested, map[string]string{"request_id": requestID}); err != nil {
			log.Error().Err(err).Str("user_id", userID).Msg("Failed to acknowledge find_match")
		}
	default:
		h.hub.SendError(userID, "Unknown message type")
	}
}
