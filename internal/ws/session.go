package ws

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"project-chat/internal/models"
)

const writeWait = 10 * time.Second

// SessionOptions bound a session's buffers and timers.
type SessionOptions struct {
	SendBuffer      int
	MaxMessageBytes int64
	PingInterval    time.Duration
	EventsPerSecond float64
	EventBurst      int
}

func (o SessionOptions) pongWait() time.Duration {
	return o.PingInterval * 2
}

// Session is one admitted connection. Identity and RoomID are fixed at
// admission and never change.
type Session struct {
	ID       string
	Identity models.Identity
	RoomID   string
	Info     ConnInfo

	conn    *websocket.Conn
	send    chan []byte
	limiter *rate.Limiter
	opts    SessionOptions

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// NewSession builds a session. conn may be nil in tests; such a session only
// buffers outbound frames.
func NewSession(conn *websocket.Conn, info ConnInfo, identity models.Identity, roomID string, opts SessionOptions) *Session {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 1
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		ID:       info.ConnID,
		Identity: identity,
		RoomID:   roomID,
		Info:     info,
		conn:     conn,
		send:     make(chan []byte, opts.SendBuffer),
		opts:     opts,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	if s.ID == "" {
		s.ID = newConnID()
	}
	if opts.EventsPerSecond > 0 {
		burst := opts.EventBurst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(opts.EventsPerSecond), burst)
	}
	return s
}

// enqueue hands a frame to the write pump without blocking. It reports false
// when the buffer is full or the session is closed.
func (s *Session) enqueue(frame []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- frame:
		return true
	default:
		return false
	}
}

// Throttle applies inbound flood control. It blocks until the next frame may
// be read, which pushes back on the peer through the socket instead of
// discarding its events. It reports whether the caller had to wait and fails
// once the session is closed.
func (s *Session) Throttle() (bool, error) {
	if s.limiter == nil {
		return false, nil
	}
	if s.limiter.Allow() {
		return false, nil
	}
	return true, s.limiter.Wait(s.ctx)
}

// Close stops the write pump. Safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.cancel()
	})
}

// Done is closed once the session is closed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// writePump is the only writer on conn.
func (s *Session) writePump() {
	ticker := time.NewTicker(s.opts.PingInterval)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case frame := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				s.Close()
				return
			}
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				s.Close()
				return
			}
		case <-s.done:
			s.flush()
			_ = s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

// flush writes frames queued before the session closed.
func (s *Session) flush() {
	for {
		select {
		case frame := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		default:
			return
		}
	}
}
