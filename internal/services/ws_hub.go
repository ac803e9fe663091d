package services

import (
	"fmt"
	"sync"
	"time"

	"match-call-backend/internal/metrics"
	"match-call-backend/internal/models"

	"github.com/rs/zerolog/log"
)

// Event names pushed to live connections
const (
	EventMatchFound     = "match_found"
	EventMatchRequested = "match_requested"
	EventError          = "error"
)

// Delivery modes reported by DeliverMatch
const (
	DeliveryRoom   = "room"
	DeliveryDirect = "direct"
	DeliveryAbsent = "absent"
)

// Conn is a live client connection. *websocket.Conn satisfies it.
type Conn interface {
	WriteJSON(v interface{}) error
	Close() error
}

// WSMessage represents a WebSocket message
type WSMessage struct {
	Type      string      `json:"type"`
	Timestamp int64       `json:"timestamp,omitempty"`
	Message   string      `json:"message,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

// MatchNotification is the payload of a match_found event. Profiles holds
// the public profile of every partner the receiving side should see.
type MatchNotification struct {
	models.MatchResult
	Room     string                           `json:"room,omitempty"`
	Profiles map[string]*models.PublicProfile `json:"profiles,omitempty"`
}

type client struct {
	userID string
	conn   Conn
	wmu    sync.Mutex
}

func (c *client) write(msg WSMessage) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.conn.WriteJSON(msg)
}

// WSHub maps user IDs to the live connections held by this process. It is a
// delivery shortcut only and never decides who is waiting.
type WSHub struct {
	mu      sync.RWMutex
	clients map[string]*client
	rooms   map[string]map[string]struct{}
	now     func() time.Time
}

// NewWSHub creates a new WebSocket hub
func NewWSHub() *WSHub {
	return &WSHub{
		clients: make(map[string]*client),
		rooms:   make(map[string]map[string]struct{}),
		now:     time.Now,
	}
}

// Register maps userID to conn. A previous connection of the same user is
// replaced and closed.
func (h *WSHub) Register(userID string, conn Conn) {
	h.mu.Lock()
	prev, exists := h.clients[userID]
	h.clients[userID] = &client{userID: userID, conn: conn}
	if !exists {
		metrics.PresenceConnections.Inc()
	}
	h.mu.Unlock()

	if exists && prev.conn != conn {
		prev.conn.Close()
		log.Info().Str("user_id", userID).Msg("Replaced previous WebSocket connection")
	}

	log.Info().Str("user_id", userID).Msg("WebSocket connection registered")
}

// Unregister removes the mapping of userID if it still points at conn, and
// releases every room the user was in.
func (h *WSHub) Unregister(userID string, conn Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, exists := h.clients[userID]
	if !exists || c.conn != conn {
		return
	}
	delete(h.clients, userID)
	metrics.PresenceConnections.Dec()

	for room, members := range h.rooms {
		if _, ok := members[userID]; ok {
			delete(h.rooms, room)
		}
	}

	log.Info().Str("user_id", userID).Msg("WebSocket connection unregistered")
}

// Lookup reports whether userID has a live connection in this process
func (h *WSHub) Lookup(userID string) (Conn, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[userID]
	if !ok {
		return nil, false
	}
	return c.conn, true
}

// IsOnline checks if a user is connected to this process
func (h *WSHub) IsOnline(userID string) bool {
	_, ok := h.Lookup(userID)
	return ok
}

// Notify pushes event to userID. It reports false without error when the user
// is not connected here.
func (h *WSHub) Notify(userID, event string, payload interface{}) (bool, error) {
	h.mu.RLock()
	c, ok := h.clients[userID]
	h.mu.RUnlock()
	if !ok {
		return false, nil
	}

	msg := WSMessage{Type: event, Timestamp: h.now().UnixMilli(), Data: payload}
	if err := c.write(msg); err != nil {
		h.Unregister(userID, c.conn)
		c.conn.Close()
		return false, fmt.Errorf("failed to send %s to %s: %w", event, userID, err)
	}
	return true, nil
}

// SendError pushes an error event to userID
func (h *WSHub) SendError(userID, message string) error {
	h.mu.RLock()
	c, ok := h.clients[userID]
	h.mu.RUnlock()
	if !ok {
		return nil
	}
	return c.write(WSMessage{Type: EventError, Timestamp: h.now().UnixMilli(), Message: message})
}

// JoinRoom adds the connected users among userIDs to room and returns how
// many joined
func (h *WSHub) JoinRoom(room string, userIDs ...string) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	joined := 0
	for _, id := range userIDs {
		if _, ok := h.clients[id]; !ok {
			continue
		}
		members, exists := h.rooms[room]
		if !exists {
			members = make(map[string]struct{})
			h.rooms[room] = members
		}
		members[id] = struct{}{}
		joined++
	}
	return joined
}

// EmitToRoom pushes event to every member of room and returns the number of
// members reached
func (h *WSHub) EmitToRoom(room, event string, payload interface{}) int {
	h.mu.RLock()
	var targets []*client
	for id := range h.rooms[room] {
		if c, ok := h.clients[id]; ok {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	msg := WSMessage{Type: event, Timestamp: h.now().UnixMilli(), Data: payload}
	reached := 0
	for _, c := range targets {
		if err := c.write(msg); err != nil {
			log.Error().Err(err).Str("user_id", c.userID).Str("room", room).Msg("Failed to emit to room member")
			h.Unregister(c.userID, c.conn)
			c.conn.Close()
			continue
		}
		reached++
	}
	return reached
}

// ReleaseRoom forgets room. Members stay connected.
func (h *WSHub) ReleaseRoom(room string) {
	h.mu.Lock()
	delete(h.rooms, room)
	h.mu.Unlock()
}

// RoomCount returns the number of open rooms
func (h *WSHub) RoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

// MatchRoom names the room shared by the two users of a match
func MatchRoom(res models.MatchResult) string {
	return fmt.Sprintf("match:%s:%s", res.User1, res.User2)
}

// DeliverMatch pushes res to whichever matched users are connected here.
// When both are, they share a room for the single event, which is released
// right after. profiles is keyed by user ID and each side only gets its
// partner's entry on a direct delivery.
func (h *WSHub) DeliverMatch(res models.MatchResult, profiles map[string]*models.PublicProfile) string {
	local1 := h.IsOnline(res.User1)
	local2 := h.IsOnline(res.User2)

	mode := DeliveryAbsent
	switch {
	case local1 && local2:
		room := MatchRoom(res)
		joined := h.JoinRoom(room, res.User1, res.User2)
		if joined == 2 {
			n := MatchNotification{MatchResult: res, Room: room, Profiles: profiles}
			if h.EmitToRoom(room, EventMatchFound, n) > 0 {
				mode = DeliveryRoom
			}
			h.ReleaseRoom(room)
			break
		}
		h.ReleaseRoom(room)
		// a member dropped between lookup and join
		mode = h.deliverDirect(res, profiles, res.User1, res.User2)
	case local1:
		mode = h.deliverDirect(res, profiles, res.User1)
	case local2:
		mode = h.deliverDirect(res, profiles, res.User2)
	}

	metrics.MatchNotifications.WithLabelValues(mode).Inc()
	log.Info().
		Str("user1", res.User1).
		Str("user2", res.User2).
		Str("mode", mode).
		Msg("Match delivery")
	return mode
}

func (h *WSHub) deliverDirect(res models.MatchResult, profiles map[string]*models.PublicProfile, userIDs ...string) string {
	mode := DeliveryAbsent
	for _, id := range userIDs {
		n := MatchNotification{MatchResult: res}
		partner := res.PartnerOf(id)
		if p, ok := profiles[partner]; ok {
			n.Profiles = map[string]*models.PublicProfile{partner: p}
		}
		sent, err := h.Notify(id, EventMatchFound, n)
		if err != nil {
			log.Error().Err(err).Str("user_id", id).Msg("Failed to deliver match")
			continue
		}
		if sent {
			mode = DeliveryDirect
		}
	}
	return mode
}

// Close closes every registered connection
func (h *WSHub) Close() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[string]*client)
	h.rooms = make(map[string]map[string]struct{})
	h.mu.Unlock()

	for _, c := range clients {
		c.conn.Close()
		metrics.PresenceConnections.Dec()
	}
}
