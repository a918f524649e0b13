package models

import "encoding/json"

// Event names shared by inbound and outbound frames.
const (
	EventProjectMessage   = "project-message"
	EventMessageDelivered = "message-delivered"
	EventMessageRead      = "message-read"
	EventMessageReaction  = "message-reaction"
	EventTyping           = "typing"
	EventStopTyping       = "stop-typing"
	EventAIError          = "ai-error"
)

// Envelope is an inbound websocket frame.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// OutboundEvent is broadcast to room members.
type OutboundEvent struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// ProjectMessagePayload is the body of an inbound project-message.
type ProjectMessagePayload struct {
	Message         string          `json:"message"`
	ParentMessageID *string         `json:"parentMessageId,omitempty"`
	Sender          json.RawMessage `json:"sender,omitempty"`
	GoogleAPIKey    string          `json:"googleApiKey,omitempty"`
}

// AckPayload is used for both delivery and read acknowledgements.
type AckPayload struct {
	MessageID string `json:"messageId"`
	UserID    string `json:"userId"`
}

// ReactionPayload adds, replaces or clears a reaction.
type ReactionPayload struct {
	MessageID string  `json:"messageId"`
	UserID    string  `json:"userId"`
	Emoji     *string `json:"emoji,omitempty"`
}

// TypingPayload is a transient typing indicator.
type TypingPayload struct {
	UserID    string `json:"userId"`
	ProjectID string `json:"projectId"`
}

// AIErrorPayload tells a room the assistant did not answer.
type AIErrorPayload struct {
	ProjectID string `json:"projectId"`
	Error     string `json:"error"`
}
