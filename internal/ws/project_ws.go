package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"project-chat/internal/auth"
	"project-chat/internal/models"
	"project-chat/internal/observability"
	"project-chat/internal/telemetry"
)

// EventDispatcher receives decoded frames from admitted sessions.
type EventDispatcher interface {
	Dispatch(s *Session, env models.Envelope)
}

// ProjectWebSocketHandler handles project chat websocket connections.
type ProjectWebSocketHandler struct {
	hub        *Hub
	gate       *Gate
	dispatcher EventDispatcher
	audit      *telemetry.AuditEmitter
	opts       SessionOptions
	logger     *zap.Logger
}

// NewProjectWebSocketHandler constructs a ProjectWebSocketHandler.
func NewProjectWebSocketHandler(hub *Hub, gate *Gate, dispatcher EventDispatcher, audit *telemetry.AuditEmitter, opts SessionOptions, logger *zap.Logger) *ProjectWebSocketHandler {
	return &ProjectWebSocketHandler{hub: hub, gate: gate, dispatcher: dispatcher, audit: audit, opts: opts, logger: logger}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle upgrades the connection, runs admission and starts the session pumps.
// Rejections are reported on the upgraded socket as a policy-violation close
// frame whose text is the admission reason.
func (h *ProjectWebSocketHandler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("project-chat/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	projectID := c.Param("project_id")
	if projectID == "" {
		projectID = c.Query("projectId")
	}
	span.SetAttributes(attribute.String("project.id", projectID))

	credential := credentialFromRequest(c)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	traceID := span.SpanContext().TraceID().String()
	meta := observability.ClientMetaFromRequest(c.Request)
	info := ConnInfo{
		ConnID:      newConnID(),
		DeviceID:    meta.DeviceID,
		IP:          meta.IP,
		RequestID:   meta.RequestID,
		TraceID:     traceID,
		ConnectedAt: time.Now(),
	}

	session, err := h.gate.Admit(ctx, projectID, credential, func(a Admission) *Session {
		info.UserID = a.Identity.ID
		return NewSession(conn, info, a.Identity, a.Project.RoomID(), h.opts)
	})
	if err != nil {
		h.reject(ctx, conn, info, projectID, err)
		span.SetStatus(codes.Error, err.Error())
		return
	}

	observability.IncWSActive(wsKind)
	publishWSEvent(ctx, session.Info, session.RoomID, "ws_connect", "")
	h.logger.Info("websocket session admitted",
		zap.String("room_id", session.RoomID),
		zap.String("conn_id", session.ID),
		zap.String("user_id", session.Identity.ID),
	)

	go session.writePump()
	go h.readLoop(session)
}

func (h *ProjectWebSocketHandler) reject(ctx context.Context, conn *websocket.Conn, info ConnInfo, projectID string, err error) {
	reason := ReasonAuthentication
	var admissionErr *AdmissionError
	if errors.As(err, &admissionErr) {
		reason = admissionErr.Reason
	}

	h.logger.Info("websocket admission rejected",
		zap.String("project_id", projectID),
		zap.String("reason", reason),
		zap.Error(err),
	)
	h.audit.Emit(ctx, telemetry.LevelWarn, "websocket rejected: "+reason, info.RequestID, projectID, nil)
	publishWSEvent(ctx, info, projectID, "ws_reject", reason)

	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason),
		time.Now().Add(writeWait))
	_ = conn.Close()
}

// readLoop decodes inbound frames until the connection drops.
func (h *ProjectWebSocketHandler) readLoop(s *Session) {
	var closeReason string
	defer func() {
		h.hub.Leave(s)
		s.Close()
		observability.DecWSActive(wsKind)
		publishWSEvent(context.Background(), s.Info, s.RoomID, "ws_disconnect", closeReason)
	}()

	s.conn.SetReadLimit(s.opts.MaxMessageBytes)
	_ = s.conn.SetReadDeadline(time.Now().Add(s.opts.pongWait()))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(s.opts.pongWait()))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				publishWSEvent(context.Background(), s.Info, s.RoomID, "ws_error", closeReason)
			}
			return
		}
		waited, err := s.Throttle()
		if err != nil {
			closeReason = err.Error()
			return
		}
		if waited {
			observability.IncWSEvent(wsKind, "throttled")
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(s.opts.pongWait()))

		var env models.Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Type == "" {
			observability.IncWSEvent(wsKind, "malformed_frame")
			h.logger.Debug("dropping malformed frame", zap.String("conn_id", s.ID), zap.Error(err))
			continue
		}
		h.dispatcher.Dispatch(s, env)
	}
}

func credentialFromRequest(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		token, err := auth.BearerToken(header)
		if err != nil {
			return ""
		}
		return token
	}
	return c.Query("token")
}
