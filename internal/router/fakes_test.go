package router

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"project-chat/internal/models"
	"project-chat/internal/repositories"
	"project-chat/internal/ws"
)

type broadcast struct {
	room   string
	event  models.OutboundEvent
	except *ws.Session
}

type recordingHub struct {
	mu     sync.Mutex
	events []broadcast
}

func (h *recordingHub) Broadcast(roomID string, event models.OutboundEvent) int {
	return h.BroadcastExcept(roomID, event, nil)
}

func (h *recordingHub) BroadcastExcept(roomID string, event models.OutboundEvent, except *ws.Session) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, broadcast{room: roomID, event: event, except: except})
	return 1
}

func (h *recordingHub) snapshot() []broadcast {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]broadcast, len(h.events))
	copy(out, h.events)
	return out
}

func (h *recordingHub) ofType(eventType string) []broadcast {
	var out []broadcast
	for _, b := range h.snapshot() {
		if b.event.Type == eventType {
			out = append(out, b)
		}
	}
	return out
}

// memStore is an in-memory MessageRepository.
type memStore struct {
	mu         sync.Mutex
	seq        int
	messages   map[string]models.Message
	createErr  error
	updateErr  error
	beforeSave func(models.NewMessage)
}

func newMemStore() *memStore {
	return &memStore{messages: map[string]models.Message{}}
}

func (s *memStore) CreateMessage(ctx context.Context, in models.NewMessage) (models.Message, error) {
	if s.beforeSave != nil {
		s.beforeSave(in)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return models.Message{}, s.createErr
	}
	s.seq++
	msg := models.SynthesizeMessage(in, fmt.Sprintf("%024x", s.seq), time.Now().UTC())
	msg.Persisted = true
	s.messages[msg.ID] = msg
	return msg, nil
}

func (s *memStore) GetMessage(ctx context.Context, id string) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[id]
	if !ok {
		return models.Message{}, repositories.ErrMessageNotFound
	}
	return clone(msg), nil
}

func (s *memStore) AddDeliveredTo(ctx context.Context, id, userID string) error {
	return s.mutate(id, func(m *models.Message) {
		if !m.IsDeliveredTo(userID) {
			m.DeliveredTo = append(m.DeliveredTo, userID)
		}
	})
}

func (s *memStore) AddReadBy(ctx context.Context, id, userID string) error {
	return s.mutate(id, func(m *models.Message) {
		if !m.IsReadBy(userID) {
			m.ReadBy = append(m.ReadBy, userID)
		}
	})
}

func (s *memStore) SetReactions(ctx context.Context, id string, reactions []models.Reaction) error {
	return s.mutate(id, func(m *models.Message) {
		m.Reactions = append([]models.Reaction{}, reactions...)
	})
}

func (s *memStore) ListConversationMessages(ctx context.Context, conversationID string, limit int64) ([]models.Message, error) {
	return nil, nil
}

func (s *memStore) mutate(id string, fn func(*models.Message)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return s.updateErr
	}
	msg, ok := s.messages[id]
	if !ok {
		return repositories.ErrMessageNotFound
	}
	fn(&msg)
	s.messages[id] = msg
	return nil
}

func (s *memStore) get(id string) models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clone(s.messages[id])
}

func clone(m models.Message) models.Message {
	m.Reactions = append([]models.Reaction{}, m.Reactions...)
	m.DeliveredTo = append([]string{}, m.DeliveredTo...)
	m.ReadBy = append([]string{}, m.ReadBy...)
	return m
}

type funcResponder func(ctx context.Context, prompt, apiKey string) (string, error)

func (f funcResponder) Complete(ctx context.Context, prompt, apiKey string) (string, error) {
	return f(ctx, prompt, apiKey)
}

func envelope(eventType string, payload any) models.Envelope {
	raw, _ := json.Marshal(payload)
	return models.Envelope{Type: eventType, Payload: raw}
}

func session(room, user string) *ws.Session {
	return ws.NewSession(nil, ws.ConnInfo{UserID: user}, models.Identity{ID: user, Name: user}, room, ws.SessionOptions{SendBuffer: 1})
}
