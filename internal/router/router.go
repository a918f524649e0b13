package router

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"project-chat/internal/assistant"
	"project-chat/internal/models"
	"project-chat/internal/observability"
	"project-chat/internal/repositories"
	"project-chat/internal/telemetry"
	"project-chat/internal/ws"
)

// Job outcomes recorded in the router events metric.
const (
	outcomeOK         = "ok"
	outcomeFallback   = "fallback"
	outcomeIgnored    = "ignored"
	outcomeDuplicate  = "duplicate"
	outcomeRejected   = "rejected"
	outcomeStoreError = "store_error"
	outcomePanic      = "panic"
)

const eventAssistantReply = "assistant-reply"

var ErrClosed = errors.New("router closed")

// Broadcaster fans events out to room members.
type Broadcaster interface {
	Broadcast(roomID string, event models.OutboundEvent) int
	BroadcastExcept(roomID string, event models.OutboundEvent, except *ws.Session) int
}

// Options tune the router.
type Options struct {
	// AITimeout bounds one assistant call. Zero means no bound.
	AITimeout time.Duration
	// AIFailureNotice broadcasts an ai-error event when the assistant fails.
	AIFailureNotice bool
	// StoreTimeout bounds the store calls of one event. Zero means no bound.
	StoreTimeout time.Duration
}

type job struct {
	event string
	run   func(ctx context.Context) string
}

type roomQueue struct {
	jobs []job
}

// Router processes room events. Events for one room run one at a time in
// acceptance order; different rooms run in parallel. Assistant calls run
// outside the room queue and re-enter it when they complete.
type Router struct {
	hub       Broadcaster
	messages  repositories.MessageRepository
	responder assistant.Responder
	audit     *telemetry.AuditEmitter
	logger    *zap.Logger
	opts      Options
	tracer    trace.Tracer

	baseCtx context.Context
	cancel  context.CancelFunc

	mu       sync.Mutex
	queues   map[string]*roomQueue
	draining bool
	closed   bool
	rooms    sync.WaitGroup
	pending  sync.WaitGroup

	now   func() time.Time
	newID func() string
}

// New constructs a Router.
func New(hub Broadcaster, messages repositories.MessageRepository, responder assistant.Responder, audit *telemetry.AuditEmitter, opts Options, logger *zap.Logger) *Router {
	ctx, cancel := context.WithCancel(context.Background())
	return &Router{
		hub:       hub,
		messages:  messages,
		responder: responder,
		audit:     audit,
		logger:    logger,
		opts:      opts,
		tracer:    otel.Tracer("project-chat/router"),
		baseCtx:   ctx,
		cancel:    cancel,
		queues:    make(map[string]*roomQueue),
		now:       time.Now,
		newID:     func() string { return primitive.NewObjectID().Hex() },
	}
}

// Dispatch decodes a frame from s and queues it on the session's room.
func (r *Router) Dispatch(s *ws.Session, env models.Envelope) {
	var j job
	switch env.Type {
	case models.EventProjectMessage:
		var p models.ProjectMessagePayload
		if !r.decode(s, env, &p) {
			return
		}
		j = job{event: env.Type, run: func(ctx context.Context) string { return r.handleProjectMessage(ctx, s, p) }}
	case models.EventMessageDelivered, models.EventMessageRead:
		var p models.AckPayload
		if !r.decode(s, env, &p) {
			return
		}
		event := env.Type
		j = job{event: event, run: func(ctx context.Context) string { return r.handleAck(ctx, s, event, p) }}
	case models.EventMessageReaction:
		var p models.ReactionPayload
		if !r.decode(s, env, &p) {
			return
		}
		j = job{event: env.Type, run: func(ctx context.Context) string { return r.handleReaction(ctx, s, p) }}
	case models.EventTyping, models.EventStopTyping:
		event := env.Type
		j = job{event: event, run: func(ctx context.Context) string { return r.handleTyping(s, event) }}
	default:
		observability.IncRouterEvent("unknown", outcomeRejected)
		r.logger.Debug("ignoring unknown event", zap.String("type", env.Type), zap.String("conn_id", s.ID))
		return
	}

	if err := r.enqueue(s.RoomID, j, false); err != nil {
		observability.IncRouterEvent(j.event, outcomeRejected)
	}
}

func (r *Router) decode(s *ws.Session, env models.Envelope, into any) bool {
	if len(env.Payload) == 0 {
		env.Payload = json.RawMessage("{}")
	}
	if err := json.Unmarshal(env.Payload, into); err != nil {
		observability.IncRouterEvent(env.Type, outcomeRejected)
		r.logger.Debug("dropping undecodable payload",
			zap.String("type", env.Type),
			zap.String("conn_id", s.ID),
			zap.Error(err),
		)
		return false
	}
	return true
}

// enqueue appends j to the room's queue and starts a drain goroutine if the
// room is idle. Internal jobs are still accepted while the router drains.
func (r *Router) enqueue(roomID string, j job, internal bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || (r.draining && !internal) {
		return ErrClosed
	}

	q, ok := r.queues[roomID]
	if !ok {
		q = &roomQueue{}
		r.queues[roomID] = q
		r.rooms.Add(1)
		go r.drain(roomID, q)
	}
	q.jobs = append(q.jobs, j)
	return nil
}

func (r *Router) drain(roomID string, q *roomQueue) {
	defer r.rooms.Done()
	for {
		r.mu.Lock()
		if len(q.jobs) == 0 {
			delete(r.queues, roomID)
			r.mu.Unlock()
			return
		}
		j := q.jobs[0]
		q.jobs[0] = job{}
		q.jobs = q.jobs[1:]
		r.mu.Unlock()

		r.run(roomID, j)
	}
}

func (r *Router) run(roomID string, j job) {
	ctx, cancel := r.jobContext()
	defer cancel()
	ctx, span := r.tracer.Start(ctx, "router."+j.event, trace.WithAttributes(attribute.String("room.id", roomID)))
	defer span.End()

	defer func() {
		if rec := recover(); rec != nil {
			observability.IncRouterEvent(j.event, outcomePanic)
			r.logger.Error("router job panicked",
				zap.String("room_id", roomID),
				zap.String("event", j.event),
				zap.Any("panic", rec),
			)
		}
	}()

	outcome := j.run(ctx)
	span.SetAttributes(attribute.String("router.outcome", outcome))
	observability.IncRouterEvent(j.event, outcome)
}

func (r *Router) jobContext() (context.Context, context.CancelFunc) {
	if r.opts.StoreTimeout > 0 {
		return context.WithTimeout(r.baseCtx, r.opts.StoreTimeout)
	}
	return context.WithCancel(r.baseCtx)
}

// Close stops accepting frames, waits for in-flight assistant calls and room
// queues, then cancels outstanding work. ctx bounds the wait.
func (r *Router) Close(ctx context.Context) error {
	r.mu.Lock()
	r.draining = true
	r.mu.Unlock()

	err := wait(ctx, &r.pending)
	if err != nil {
		r.cancel()
	}

	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	if waitErr := wait(ctx, &r.rooms); waitErr != nil && err == nil {
		err = waitErr
	}
	r.cancel()
	return err
}

func wait(ctx context.Context, wg *sync.WaitGroup) error {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
