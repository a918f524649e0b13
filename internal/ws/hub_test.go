package ws

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"project-chat/internal/models"
)

func testSession(room, user string, buffer int) *Session {
	return NewSession(nil, ConnInfo{UserID: user}, models.Identity{ID: user}, room, SessionOptions{SendBuffer: buffer})
}

func drain(s *Session) []models.OutboundEvent {
	var out []models.OutboundEvent
	for {
		select {
		case frame := <-s.send:
			var ev struct {
				Type    string          `json:"type"`
				Payload json.RawMessage `json:"payload"`
			}
			_ = json.Unmarshal(frame, &ev)
			out = append(out, models.OutboundEvent{Type: ev.Type, Payload: ev.Payload})
		default:
			return out
		}
	}
}

func TestHubJoinAndLeave(t *testing.T) {
	hub := NewHub(zap.NewNop())
	s := testSession("room-1", "u1", 4)

	hub.Join(s)
	if hub.RoomCount() != 1 {
		t.Fatalf("expected room to be created")
	}

	assert.True(t, hub.Leave(s))
	if hub.RoomCount() != 0 {
		t.Fatalf("expected room to be removed")
	}
	assert.False(t, hub.Leave(s))
}

func TestHubBroadcastIncludesOriginator(t *testing.T) {
	hub := NewHub(zap.NewNop())
	a := testSession("room-1", "a", 4)
	b := testSession("room-1", "b", 4)
	other := testSession("room-2", "c", 4)
	hub.Join(a)
	hub.Join(b)
	hub.Join(other)

	sent := hub.Broadcast("room-1", models.OutboundEvent{Type: models.EventProjectMessage, Payload: "hi"})

	assert.Equal(t, 2, sent)
	assert.Len(t, drain(a), 1)
	assert.Len(t, drain(b), 1)
	assert.Empty(t, drain(other))
}

func TestHubBroadcastExcept(t *testing.T) {
	hub := NewHub(zap.NewNop())
	a := testSession("room-1", "a", 4)
	b := testSession("room-1", "b", 4)
	hub.Join(a)
	hub.Join(b)

	sent := hub.BroadcastExcept("room-1", models.OutboundEvent{Type: models.EventTyping}, a)

	assert.Equal(t, 1, sent)
	assert.Empty(t, drain(a))
	events := drain(b)
	require.Len(t, events, 1)
	assert.Equal(t, models.EventTyping, events[0].Type)
}

func TestHubEvictsSlowConsumer(t *testing.T) {
	hub := NewHub(zap.NewNop())
	slow := testSession("room-1", "slow", 1)
	fast := testSession("room-1", "fast", 8)
	hub.Join(slow)
	hub.Join(fast)

	hub.Broadcast("room-1", models.OutboundEvent{Type: "one"})
	hub.Broadcast("room-1", models.OutboundEvent{Type: "two"})

	assert.Equal(t, 1, hub.MemberCount("room-1"))
	select {
	case <-slow.Done():
	default:
		t.Fatalf("expected slow session to be closed")
	}
	assert.Len(t, drain(fast), 2)

	queued := drain(slow)
	require.Len(t, queued, 1)
	assert.Equal(t, "one", queued[0].Type)
}

func TestHubConcurrentJoinLeave(t *testing.T) {
	hub := NewHub(zap.NewNop())
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := testSession("room-1", "u", 64)
			hub.Join(s)
			hub.Broadcast("room-1", models.OutboundEvent{Type: "x"})
			hub.Leave(s)
		}()
	}
	wg.Wait()
	assert.Zero(t, hub.RoomCount())
}

func TestHubCloseClosesSessions(t *testing.T) {
	hub := NewHub(zap.NewNop())
	s := testSession("room-1", "u", 1)
	hub.Join(s)

	hub.Close()

	assert.Zero(t, hub.RoomCount())
	select {
	case <-s.Done():
	default:
		t.Fatalf("expected session to be closed")
	}
}
