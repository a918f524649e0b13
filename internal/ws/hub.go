package ws

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"project-chat/internal/models"
	"project-chat/internal/observability"
)

const reasonSlowConsumer = "send buffer full"

// Hub maintains active websocket rooms keyed by project id.
type Hub struct {
	rooms  map[string]map[*Session]struct{}
	mu     sync.RWMutex
	logger *zap.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		rooms:  make(map[string]map[*Session]struct{}),
		logger: logger,
	}
}

// Join registers a session under its room, creating the room if needed.
func (h *Hub) Join(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.rooms[s.RoomID]
	if !ok {
		members = make(map[*Session]struct{})
		h.rooms[s.RoomID] = members
	}
	members[s] = struct{}{}
}

// Leave removes a session and drops the room once it is empty. It reports
// whether the session was a member.
func (h *Hub) Leave(s *Session) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.rooms[s.RoomID]
	if !ok {
		return false
	}
	if _, ok := members[s]; !ok {
		return false
	}
	delete(members, s)
	if len(members) == 0 {
		delete(h.rooms, s.RoomID)
	}
	return true
}

// Broadcast sends event to every member of the room, the originator included.
// It returns the number of sessions the frame was queued for.
func (h *Hub) Broadcast(roomID string, event models.OutboundEvent) int {
	return h.BroadcastExcept(roomID, event, nil)
}

// BroadcastExcept sends event to every member of the room except one.
func (h *Hub) BroadcastExcept(roomID string, event models.OutboundEvent, except *Session) int {
	frame, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("encode outbound event", zap.String("type", event.Type), zap.Error(err))
		return 0
	}

	h.mu.RLock()
	members := make([]*Session, 0, len(h.rooms[roomID]))
	for s := range h.rooms[roomID] {
		if s != except {
			members = append(members, s)
		}
	}
	h.mu.RUnlock()

	sent := 0
	for _, s := range members {
		if s.enqueue(frame) {
			sent++
			continue
		}
		h.evict(s)
	}
	return sent
}

// evict drops a session that can no longer keep up with its room.
func (h *Hub) evict(s *Session) {
	if !h.Leave(s) {
		return
	}
	s.Close()
	observability.IncBroadcastEviction()
	h.logger.Warn("evicting slow websocket session",
		zap.String("room_id", s.RoomID),
		zap.String("conn_id", s.ID),
		zap.String("user_id", s.Identity.ID),
	)
	publishWSEvent(context.Background(), s.Info, s.RoomID, "ws_error", reasonSlowConsumer)
}

// MemberCount returns the number of sessions in a room.
func (h *Hub) MemberCount(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

// RoomCount returns the number of rooms with at least one member.
func (h *Hub) RoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

// Close drops every room and closes every session.
func (h *Hub) Close() {
	h.mu.Lock()
	rooms := h.rooms
	h.rooms = make(map[string]map[*Session]struct{})
	h.mu.Unlock()

	for _, members := range rooms {
		for s := range members {
			s.Close()
		}
	}
}
