package ws

import (
	"context"
	"crypto/rand"
	"encoding/hex"

	"project-chat/internal/observability"
)

const wsKind = "project"

func newConnID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return ""
	}
	return hex.EncodeToString(buf)
}

// publishWSEvent counts a lifecycle event and ships it to the event bus.
func publishWSEvent(ctx context.Context, info ConnInfo, projectID, event, reason string) {
	observability.IncWSEvent(wsKind, event)
	_ = observability.PublishEvent(ctx, observability.WSEventsRoutingKey, observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload: map[string]interface{}{
			"ws": map[string]interface{}{
				"kind":        wsKind,
				"resource_id": projectID,
				"event":       event,
				"conn_id":     info.ConnID,
				"duration_ms": info.durationMillis(),
				"reason":      reason,
			},
			"identity": map[string]interface{}{
				"user_id":   info.UserID,
				"device_id": info.DeviceID,
				"ip":        info.IP,
			},
		},
	}, observability.BuildHeaders(info.RequestID, info.TraceID))
}
