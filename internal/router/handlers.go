package router

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"project-chat/internal/assistant"
	"project-chat/internal/models"
	"project-chat/internal/observability"
	"project-chat/internal/repositories"
	"project-chat/internal/telemetry"
	"project-chat/internal/ws"
)

const assistantFailureText = "assistant did not respond"

func (r *Router) handleProjectMessage(ctx context.Context, s *ws.Session, p models.ProjectMessagePayload) string {
	if strings.TrimSpace(p.Message) == "" {
		return outcomeRejected
	}

	var parent *string
	if p.ParentMessageID != nil && *p.ParentMessageID != "" {
		parent = p.ParentMessageID
	}

	msg, persisted := r.persist(ctx, models.NewMessage{
		ConversationID:  s.RoomID,
		Sender:          models.HumanSender(s.Identity),
		Body:            p.Message,
		ParentMessageID: parent,
	})
	r.hub.Broadcast(s.RoomID, models.OutboundEvent{Type: models.EventProjectMessage, Payload: msg})

	if prompt, ok := assistant.ExtractPrompt(p.Message); ok {
		r.askAssistant(s.RoomID, prompt, p.GoogleAPIKey)
	}

	if !persisted {
		return outcomeFallback
	}
	return outcomeOK
}

// persist stores the message, or synthesizes an unsaved copy when the store
// fails so the room still sees it.
func (r *Router) persist(ctx context.Context, in models.NewMessage) (models.Message, bool) {
	msg, err := r.messages.CreateMessage(ctx, in)
	if err == nil {
		return msg, true
	}

	observability.IncStoreFallback(string(in.Sender.Kind))
	r.logger.Error("persist message failed, broadcasting unsaved copy",
		zap.String("room_id", in.ConversationID),
		zap.String("sender_kind", string(in.Sender.Kind)),
		zap.Error(err),
	)
	var userID *string
	if in.Sender.ID != "" {
		id := in.Sender.ID
		userID = &id
	}
	r.audit.Emit(ctx, telemetry.LevelError, "message persistence failed: "+err.Error(), "", in.ConversationID, userID)

	return models.SynthesizeMessage(in, r.newID(), r.now().UTC()), false
}

// askAssistant runs the completion off the room queue. The reply is queued on
// the room like any other event.
func (r *Router) askAssistant(roomID, prompt, apiKey string) {
	r.mu.Lock()
	if r.draining {
		r.mu.Unlock()
		r.logger.Warn("skipping assistant request during shutdown", zap.String("room_id", roomID))
		return
	}
	r.pending.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.pending.Done()

		ctx, cancel := r.baseCtx, context.CancelFunc(func() {})
		if r.opts.AITimeout > 0 {
			ctx, cancel = context.WithTimeout(ctx, r.opts.AITimeout)
		}
		defer cancel()
		ctx, span := r.tracer.Start(ctx, "assistant.complete")

		start := time.Now()
		reply, err := r.responder.Complete(ctx, prompt, apiKey)
		span.End()

		if err != nil {
			observability.ObserveAssistant("error", time.Since(start))
			r.logger.Warn("assistant request failed", zap.String("room_id", roomID), zap.Error(err))
			if r.opts.AIFailureNotice {
				err := r.enqueue(roomID, job{event: models.EventAIError, run: func(context.Context) string {
					r.hub.Broadcast(roomID, models.OutboundEvent{
						Type:    models.EventAIError,
						Payload: models.AIErrorPayload{ProjectID: roomID, Error: assistantFailureText},
					})
					return outcomeOK
				}}, true)
				if err != nil {
					r.logger.Warn("dropping assistant failure notice", zap.String("room_id", roomID), zap.Error(err))
				}
			}
			return
		}
		observability.ObserveAssistant("ok", time.Since(start))

		err = r.enqueue(roomID, job{event: eventAssistantReply, run: func(ctx context.Context) string {
			msg, persisted := r.persist(ctx, models.NewMessage{
				ConversationID: roomID,
				Sender:         models.AssistantSender(),
				Body:           reply,
			})
			r.hub.Broadcast(roomID, models.OutboundEvent{Type: models.EventProjectMessage, Payload: msg})
			if !persisted {
				return outcomeFallback
			}
			return outcomeOK
		}}, true)
		if err != nil {
			r.logger.Warn("dropping assistant reply", zap.String("room_id", roomID), zap.Error(err))
		}
	}()
}

func (r *Router) handleAck(ctx context.Context, s *ws.Session, event string, p models.AckPayload) string {
	if p.MessageID == "" {
		return outcomeRejected
	}
	userID := r.actor(s, p.UserID, event)

	msg, outcome := r.loadRoomMessage(ctx, s, p.MessageID, event)
	if outcome != "" {
		return outcome
	}

	add := r.messages.AddDeliveredTo
	already := msg.IsDeliveredTo(userID)
	if event == models.EventMessageRead {
		add = r.messages.AddReadBy
		already = msg.IsReadBy(userID)
	}
	if already {
		return outcomeDuplicate
	}

	if err := add(ctx, msg.ID, userID); err != nil {
		return r.storeFailure(s, event, msg.ID, err)
	}

	r.hub.Broadcast(s.RoomID, models.OutboundEvent{
		Type:    event,
		Payload: models.AckPayload{MessageID: msg.ID, UserID: userID},
	})
	return outcomeOK
}

func (r *Router) handleReaction(ctx context.Context, s *ws.Session, p models.ReactionPayload) string {
	if p.MessageID == "" {
		return outcomeRejected
	}
	userID := r.actor(s, p.UserID, models.EventMessageReaction)

	msg, outcome := r.loadRoomMessage(ctx, s, p.MessageID, models.EventMessageReaction)
	if outcome != "" {
		return outcome
	}

	emoji := ""
	if p.Emoji != nil {
		emoji = strings.TrimSpace(*p.Emoji)
	}
	msg.Reactions = msg.ApplyReaction(userID, emoji)

	if err := r.messages.SetReactions(ctx, msg.ID, msg.Reactions); err != nil {
		return r.storeFailure(s, models.EventMessageReaction, msg.ID, err)
	}

	r.hub.Broadcast(s.RoomID, models.OutboundEvent{Type: models.EventMessageReaction, Payload: msg})
	return outcomeOK
}

func (r *Router) handleTyping(s *ws.Session, event string) string {
	r.hub.BroadcastExcept(s.RoomID, models.OutboundEvent{
		Type:    event,
		Payload: models.TypingPayload{UserID: s.Identity.ID, ProjectID: s.RoomID},
	}, s)
	return outcomeOK
}

// actor returns the verified participant id. A different claimed id in the
// payload is ignored.
func (r *Router) actor(s *ws.Session, claimed, event string) string {
	if claimed != "" && claimed != s.Identity.ID {
		r.logger.Debug("payload user id differs from session identity",
			zap.String("event", event),
			zap.String("claimed", claimed),
			zap.String("user_id", s.Identity.ID),
		)
	}
	return s.Identity.ID
}

// loadRoomMessage fetches a message of the session's room. A non-empty outcome
// means the event ends here.
func (r *Router) loadRoomMessage(ctx context.Context, s *ws.Session, messageID, event string) (models.Message, string) {
	msg, err := r.messages.GetMessage(ctx, messageID)
	if errors.Is(err, repositories.ErrMessageNotFound) {
		return models.Message{}, outcomeIgnored
	}
	if err != nil {
		return models.Message{}, r.storeFailure(s, event, messageID, err)
	}
	if msg.ConversationID != s.RoomID {
		return models.Message{}, outcomeIgnored
	}
	return msg, ""
}

func (r *Router) storeFailure(s *ws.Session, event, messageID string, err error) string {
	if errors.Is(err, repositories.ErrMessageNotFound) {
		return outcomeIgnored
	}
	r.logger.Error("message update failed",
		zap.String("event", event),
		zap.String("room_id", s.RoomID),
		zap.String("message_id", messageID),
		zap.Error(err),
	)
	return outcomeStoreError
}
